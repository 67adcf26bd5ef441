// Package chunker prepares large daily files for extraction. Agent logs
// and transcripts easily reach tens of thousands of characters; a single
// completion cannot digest that, so the text is pre-filtered to drop
// low-signal lines and then split into section-aligned chunks.
package chunker

import (
	"fmt"
	"strings"
)

// Config controls splitting behavior.
type Config struct {
	MaxChunkSize  int  // bytes per chunk (default 4000)
	PreFilter     bool // strip low-signal lines before splitting
	MinLineLength int  // shorter trimmed lines are dropped (default 3)
}

// DefaultConfig returns the standard chunking settings.
func DefaultConfig() Config {
	return Config{MaxChunkSize: 4000, PreFilter: true, MinLineLength: 3}
}

const (
	maxKeptCodeBlockLines = 5
	fingerprintLen        = 40
)

// statusMarkers flag heartbeat and monitoring noise that carries no
// memory-worthy signal.
var statusMarkers = []string{
	"heartbeat_ok",
	"no alert needed",
	"no trend analysis",
	"pnl change since last",
	"under $100 threshold",
	"within normal range",
}

// PreFilter removes low-signal content: long code fences collapse to a
// one-line note, heartbeat/status lines and very short lines vanish, and
// near-identical lines (same 40-char prefix) keep only their first
// occurrence. Blank lines survive so section structure stays visible.
func PreFilter(text string) string {
	return preFilter(text, DefaultConfig().MinLineLength)
}

func preFilter(text string, minLineLength int) string {
	var filtered []string
	inCodeBlock := false
	var codeBlock []string
	seen := map[string]bool{}

	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)

		if strings.HasPrefix(stripped, "```") {
			if inCodeBlock {
				if len(codeBlock)-1 <= maxKeptCodeBlockLines {
					filtered = append(filtered, codeBlock...)
					filtered = append(filtered, line)
				} else {
					filtered = append(filtered, fmt.Sprintf("  [code block: %d lines omitted]", len(codeBlock)-1))
				}
				inCodeBlock = false
				codeBlock = nil
			} else {
				inCodeBlock = true
				codeBlock = []string{line}
			}
			continue
		}
		if inCodeBlock {
			codeBlock = append(codeBlock, line)
			continue
		}

		if stripped == "" {
			filtered = append(filtered, line)
			continue
		}
		if isStatusLine(stripped) {
			continue
		}
		if len(stripped) < minLineLength {
			continue
		}

		fingerprint := stripped
		if len(fingerprint) > fingerprintLen {
			fingerprint = fingerprint[:fingerprintLen]
		}
		if seen[fingerprint] {
			continue
		}
		seen[fingerprint] = true
		filtered = append(filtered, line)
	}

	return strings.Join(filtered, "\n")
}

func isStatusLine(stripped string) bool {
	lower := strings.ToLower(stripped)
	for _, marker := range statusMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Split breaks text into chunks of at most cfg.MaxChunkSize bytes,
// preferring breaks at "## " section headers once a chunk has grown past
// a quarter of the limit, and falling back to line boundaries.
func Split(text string, cfg Config) []string {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = DefaultConfig().MaxChunkSize
	}
	if cfg.MinLineLength <= 0 {
		cfg.MinLineLength = DefaultConfig().MinLineLength
	}
	if cfg.PreFilter {
		text = preFilter(text, cfg.MinLineLength)
	}

	if len(text) <= cfg.MaxChunkSize {
		return []string{text}
	}

	var chunks []string
	var current []string
	currentLen := 0

	flush := func() {
		chunks = append(chunks, strings.Join(current, "\n"))
		current = nil
		currentLen = 0
	}

	for _, line := range strings.Split(text, "\n") {
		lineLen := len(line) + 1

		if currentLen+lineLen > cfg.MaxChunkSize && len(current) > 0 {
			flush()
		}
		if strings.HasPrefix(line, "## ") && len(current) > 0 && currentLen > cfg.MaxChunkSize/4 {
			flush()
		}

		current = append(current, line)
		currentLen += lineLen
	}
	if len(current) > 0 {
		flush()
	}

	return chunks
}
