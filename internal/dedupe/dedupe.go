// Package dedupe flags near-duplicate prompt texts.
//
// Texts are compared by normalized fingerprint (exact match) and by
// Jaccard similarity over whitespace-delimited token sets. The comparison
// is a deliberate O(n·m) scan of the whole corpus; the corpus is bounded
// to tens of thousands of short records for a single user, so no inverted
// index is kept for this check.
package dedupe

import "strings"

const (
	// DefaultThreshold is the minimum Jaccard similarity flagged as a
	// duplicate.
	DefaultThreshold = 0.9

	// DefaultMinTokens is the minimum token count for similarity matching.
	// Below it a single shared token moves Jaccard by 0.2 or more, so only
	// exact fingerprint matches are flagged.
	DefaultMinTokens = 5
)

// Match is one corpus entry flagged as a duplicate of the probe text.
type Match struct {
	Index int     // Position in the corpus slice.
	Score float64 // Jaccard similarity; 1.0 for exact fingerprint matches.
	Exact bool
}

// Detector holds duplicate-detection tuning.
type Detector struct {
	Threshold float64
	MinTokens int
}

// NewDetector returns a detector with default tuning.
func NewDetector() *Detector {
	return &Detector{Threshold: DefaultThreshold, MinTokens: DefaultMinTokens}
}

// Fingerprint returns the normalized form of text used for exact
// comparison: lowercased, trimmed, inner whitespace collapsed.
func Fingerprint(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Jaccard returns |A∩B| / |A∪B| over the whitespace token sets of the two
// normalized texts. Two empty texts score 0.
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	inter := 0
	for tok := range setA {
		if setB[tok] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// Matches scans corpus for duplicates of text. Exact fingerprint matches
// are always flagged; similarity matches require both token sets to have
// at least MinTokens members.
func (d *Detector) Matches(text string, corpus []string) []Match {
	threshold := d.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	minTokens := d.MinTokens
	if minTokens <= 0 {
		minTokens = DefaultMinTokens
	}

	probe := Fingerprint(text)
	if probe == "" {
		return nil
	}
	probeTokens := len(tokenSet(probe))

	var matches []Match
	for i, existing := range corpus {
		fp := Fingerprint(existing)
		if fp == "" {
			continue
		}
		if fp == probe {
			matches = append(matches, Match{Index: i, Score: 1.0, Exact: true})
			continue
		}
		if probeTokens < minTokens || len(tokenSet(fp)) < minTokens {
			continue
		}
		if score := Jaccard(probe, fp); score >= threshold {
			matches = append(matches, Match{Index: i, Score: score})
		}
	}
	return matches
}

func tokenSet(normalized string) map[string]bool {
	fields := strings.Fields(strings.ToLower(normalized))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
