package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

// run executes the CLI against a store in a temp dir and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func setTestStore(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PROMPTVAULT_DB", filepath.Join(dir, "vault.db"))
	t.Setenv("PROMPTVAULT_BACKUP_DIR", filepath.Join(dir, "backups"))
}

func TestCLI_Init(t *testing.T) {
	setTestStore(t)

	out, err := run(t, "init")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "store ready") {
		t.Errorf("out = %q", out)
	}
}

func TestCLI_AddListSearch(t *testing.T) {
	setTestStore(t)

	out, err := run(t, "add", "Explain recursion to a child",
		"-c", "teaching", "-t", "cs", "-t", "eli5")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "added p_") {
		t.Errorf("add out = %q", out)
	}

	out, err = run(t, "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Explain recursion") || !strings.Contains(out, "#cs #eli5") {
		t.Errorf("list out = %q", out)
	}

	out, err = run(t, "search", "recursion")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Explain recursion") {
		t.Errorf("search out = %q", out)
	}

	out, err = run(t, "search", "!!!")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "no prompts") {
		t.Errorf("garbled search out = %q", out)
	}
}

func TestCLI_DuplicateRefusedThenForced(t *testing.T) {
	setTestStore(t)

	if _, err := run(t, "add", "Explain recursion to a child"); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "add", "explain   recursion to a CHILD")
	if err == nil {
		t.Fatal("duplicate add succeeded")
	}
	if !strings.Contains(out, "refused") {
		t.Errorf("out = %q", out)
	}

	if _, err := run(t, "add", "explain   recursion to a CHILD", "--force"); err != nil {
		t.Fatalf("forced add failed: %v", err)
	}
}

func TestCLI_Backup(t *testing.T) {
	setTestStore(t)

	if _, err := run(t, "add", "Something worth keeping"); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "backup")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "prompts-") {
		t.Errorf("backup out = %q", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("a very long line of text", 10); got != "a very lo…" {
		t.Errorf("truncate = %q", got)
	}
	// Cuts on rune boundaries, never mid-codepoint.
	if got := truncate("héllø wörld çafé täble", 10); !utf8.ValidString(got) {
		t.Errorf("truncate produced invalid UTF-8: %q", got)
	}
	if got := truncate("ééééé", 3); got != "éé…" {
		t.Errorf("truncate = %q", got)
	}
}
