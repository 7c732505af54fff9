package dedupe

import (
	"fmt"
	"testing"
)

func TestFingerprint_Normalization(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Explain recursion to a child", "explain recursion to a child"},
		{"explain   recursion to a CHILD", "explain recursion to a child"},
		{"  Explain\trecursion\nto a child  ", "explain recursion to a child"},
		{"", ""},
		{"   \t\n  ", ""},
	}
	for _, tc := range cases {
		if got := Fingerprint(tc.in); got != tc.want {
			t.Errorf("Fingerprint(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFingerprint_WhitespaceAndCaseVariantsCollide(t *testing.T) {
	a := Fingerprint("Explain recursion to a child")
	b := Fingerprint("explain   recursion to a CHILD")
	if a != b {
		t.Errorf("fingerprints differ: %q vs %q", a, b)
	}
}

func TestJaccard_Symmetric(t *testing.T) {
	a := "write a short story about a lighthouse keeper"
	b := "write a long story about a lighthouse"
	if Jaccard(a, b) != Jaccard(b, a) {
		t.Errorf("Jaccard not symmetric: %v vs %v", Jaccard(a, b), Jaccard(b, a))
	}
}

func TestJaccard_Identity(t *testing.T) {
	texts := []string{
		"one",
		"two words",
		"a much longer text with many distinct tokens in it",
	}
	for _, text := range texts {
		if got := Jaccard(text, text); got != 1.0 {
			t.Errorf("Jaccard(%q, same) = %v, want 1.0", text, got)
		}
	}
}

func TestJaccard_Disjoint(t *testing.T) {
	if got := Jaccard("alpha beta gamma", "delta epsilon zeta"); got != 0 {
		t.Errorf("Jaccard disjoint = %v, want 0", got)
	}
}

func TestJaccard_BothEmpty(t *testing.T) {
	if got := Jaccard("", ""); got != 0 {
		t.Errorf("Jaccard empty = %v, want 0", got)
	}
}

func TestJaccard_PartialOverlap(t *testing.T) {
	// {a b c} vs {b c d}: intersection 2, union 4.
	if got := Jaccard("a b c", "b c d"); got != 0.5 {
		t.Errorf("Jaccard = %v, want 0.5", got)
	}
}

func TestJaccard_DuplicateTokensCountOnce(t *testing.T) {
	if got := Jaccard("go go go", "go"); got != 1.0 {
		t.Errorf("Jaccard = %v, want 1.0 (token sets, not bags)", got)
	}
}

func TestMatches_ExactNormalizedMatch(t *testing.T) {
	d := NewDetector()
	corpus := []string{"Explain recursion to a child", "Unrelated prompt entirely"}

	matches := d.Matches("explain   recursion to a CHILD", corpus)
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	if matches[0].Index != 0 || !matches[0].Exact || matches[0].Score != 1.0 {
		t.Errorf("match = %+v", matches[0])
	}
}

func TestMatches_SimilarityAboveThreshold(t *testing.T) {
	d := NewDetector()
	corpus := []string{"please summarize this long technical design document for review"}

	// One extra token over nine shared: 9/10 = 0.9, at the threshold.
	matches := d.Matches("please summarize this long technical design document for review today", corpus)
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	if matches[0].Exact {
		t.Error("similarity match flagged as exact")
	}
	if matches[0].Score < 0.89 || matches[0].Score > 0.91 {
		t.Errorf("Score = %v, want ~0.9", matches[0].Score)
	}
}

func TestMatches_BelowThreshold(t *testing.T) {
	d := NewDetector()
	corpus := []string{"please summarize this long technical design document for review"}

	matches := d.Matches("please draft a short marketing email for the product launch", corpus)
	if len(matches) != 0 {
		t.Errorf("matches = %d, want 0", len(matches))
	}
}

func TestMatches_ShortTextExemption(t *testing.T) {
	d := NewDetector()
	corpus := []string{"fix this bug"}

	// High overlap, but both sides under MinTokens: no similarity match.
	if matches := d.Matches("fix this bug now", corpus); len(matches) != 0 {
		t.Errorf("short text similarity match = %d, want 0", len(matches))
	}
	// Exact match still flagged regardless of length.
	if matches := d.Matches("FIX  this   bug", corpus); len(matches) != 1 {
		t.Errorf("short exact match = %d, want 1", len(matches))
	}
}

func TestMatches_EmptyProbe(t *testing.T) {
	d := NewDetector()
	if matches := d.Matches("   ", []string{"anything"}); matches != nil {
		t.Errorf("matches = %v, want nil", matches)
	}
}

func TestMatches_MultipleHits(t *testing.T) {
	d := NewDetector()
	corpus := []string{
		"Explain recursion to a child",
		"something else",
		"EXPLAIN RECURSION TO A CHILD",
	}
	matches := d.Matches("explain recursion to a child", corpus)
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].Index != 0 || matches[1].Index != 2 {
		t.Errorf("indices = %d,%d", matches[0].Index, matches[1].Index)
	}
}

func TestMatches_BoundedCorpusScanStaysCheap(t *testing.T) {
	d := NewDetector()
	corpus := make([]string, 2000)
	for i := range corpus {
		corpus[i] = fmt.Sprintf("corpus entry number %d with some filler words attached", i)
	}
	matches := d.Matches("a probe that matches nothing in the whole corpus at all", corpus)
	if len(matches) != 0 {
		t.Errorf("matches = %d, want 0", len(matches))
	}
}
