// Package prompt assembles the assistant's system prompt from its two source
// files: the personality file and the behavioral rules file.
package prompt

import (
	"log/slog"
	"os"
	"strings"
)

const (
	// DefaultSoulPath and DefaultRulesPath are relative to the working
	// directory the server is launched from.
	DefaultSoulPath  = "SOUL.md"
	DefaultRulesPath = "RULES.md"
)

// fallback is used when either prompt file cannot be read.
const fallback = "You are a helpful voice assistant. Keep your answers short " +
	"and conversational, as they will be spoken aloud."

// Load reads the personality and rules files and joins them with a blank
// line. When either read fails it logs a warning and returns the built-in
// default prompt instead.
func Load(soulPath, rulesPath string) string {
	if soulPath == "" {
		soulPath = DefaultSoulPath
	}
	if rulesPath == "" {
		rulesPath = DefaultRulesPath
	}

	soul, err := os.ReadFile(soulPath)
	if err != nil {
		slog.Warn("personality file unreadable, using default prompt", "path", soulPath, "error", err)
		return fallback
	}
	rules, err := os.ReadFile(rulesPath)
	if err != nil {
		slog.Warn("rules file unreadable, using default prompt", "path", rulesPath, "error", err)
		return fallback
	}

	return strings.TrimSpace(string(soul)) + "\n\n" + strings.TrimSpace(string(rules))
}
