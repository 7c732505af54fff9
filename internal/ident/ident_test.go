package ident

import (
	"strings"
	"testing"
)

func TestNew_Format(t *testing.T) {
	var g Generator
	id := g.New(nil)
	if !strings.HasPrefix(id, "p_") {
		t.Errorf("id = %q, want p_ prefix", id)
	}
	if len(strings.Split(id, "_")) != 4 {
		t.Errorf("id = %q, want 4 segments", id)
	}
}

func TestNew_UniqueUnderTightLoop(t *testing.T) {
	var g Generator
	seen := make(map[string]bool, 10000)
	exists := func(id string) bool { return seen[id] }

	for i := 0; i < 10000; i++ {
		id := g.New(exists)
		if seen[id] {
			t.Fatalf("duplicate id after %d iterations: %s", i, id)
		}
		seen[id] = true
	}
}

func TestNew_NilExists(t *testing.T) {
	var g Generator
	if id := g.New(nil); id == "" {
		t.Error("empty id with nil exists check")
	}
}

func TestNew_FallbackAfterExhaustedRetries(t *testing.T) {
	var g Generator
	calls := 0
	// Claim every candidate is taken; the generator must still return an
	// id via the uuid fallback, and must stop probing after the bound.
	id := g.New(func(string) bool {
		calls++
		return true
	})
	if id == "" {
		t.Fatal("fallback returned empty id")
	}
	if calls != 10 {
		t.Errorf("collision checks = %d, want 10", calls)
	}
	// Fallback carries a uuid suffix, so it is longer than the normal form.
	if len(id) < 36 {
		t.Errorf("fallback id %q suspiciously short", id)
	}
}

func TestNew_FallbackIDsDiffer(t *testing.T) {
	var g Generator
	all := func(string) bool { return true }
	a := g.New(all)
	b := g.New(all)
	if a == b {
		t.Errorf("two fallback ids equal: %s", a)
	}
}
