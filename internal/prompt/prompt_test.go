package prompt_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vireo-ai/vireo/internal/prompt"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadJoinsFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	soul := writeFile(t, dir, "SOUL.md", "You are Vireo.\n")
	rules := writeFile(t, dir, "RULES.md", "Answer briefly.\n")

	got := prompt.Load(soul, rules)
	want := "You are Vireo.\n\nAnswer briefly."
	if got != want {
		t.Errorf("Load() = %q, want %q", got, want)
	}
}

func TestLoadFallsBackOnMissingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	soul := writeFile(t, dir, "SOUL.md", "You are Vireo.")

	got := prompt.Load(soul, filepath.Join(dir, "missing.md"))
	if !strings.Contains(got, "voice assistant") {
		t.Errorf("Load() = %q, want default prompt", got)
	}

	got = prompt.Load(filepath.Join(dir, "missing.md"), soul)
	if !strings.Contains(got, "voice assistant") {
		t.Errorf("Load() = %q, want default prompt", got)
	}
}
