package chunker

import (
	"fmt"
	"strings"
	"testing"
)

// TestPreFilter_CodeBlocks verifies short fences survive and long ones
// collapse to a note
func TestPreFilter_CodeBlocks(t *testing.T) {
	short := "intro\n```\nline1\nline2\n```\noutro"
	got := PreFilter(short)
	if !strings.Contains(got, "line1") || !strings.Contains(got, "```") {
		t.Errorf("short code block was filtered: %q", got)
	}

	var b strings.Builder
	b.WriteString("intro\n```\n")
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "log line %d\n", i)
	}
	b.WriteString("```\noutro")
	got = PreFilter(b.String())
	if strings.Contains(got, "log line 3") {
		t.Errorf("long code block content survived: %q", got)
	}
	if !strings.Contains(got, "[code block: 20 lines omitted]") {
		t.Errorf("missing omission note: %q", got)
	}
	if !strings.Contains(got, "outro") {
		t.Errorf("content after code block lost: %q", got)
	}
}

// TestPreFilter_StatusLines verifies heartbeat noise is dropped
func TestPreFilter_StatusLines(t *testing.T) {
	text := "real content here\nHEARTBEAT_OK at 12:00\nportfolio within normal range\nmore content"
	got := PreFilter(text)
	if strings.Contains(got, "HEARTBEAT_OK") || strings.Contains(got, "normal range") {
		t.Errorf("status lines survived: %q", got)
	}
	if !strings.Contains(got, "real content here") || !strings.Contains(got, "more content") {
		t.Errorf("real content was dropped: %q", got)
	}
}

// TestPreFilter_ShortAndRepeatedLines verifies the length floor and the
// 40-char fingerprint dedup
func TestPreFilter_ShortAndRepeatedLines(t *testing.T) {
	repeated := strings.Repeat("status check: all systems nominal at this very hour\n", 5)
	text := "ok\n" + repeated + "unique closing line"
	got := PreFilter(text)

	if strings.HasPrefix(got, "ok") {
		t.Errorf("short line survived: %q", got)
	}
	if n := strings.Count(got, "status check"); n != 1 {
		t.Errorf("repeated line kept %d times, want 1", n)
	}
	if !strings.Contains(got, "unique closing line") {
		t.Errorf("unique line was dropped: %q", got)
	}
}

// TestSplit_SmallTextUnchanged verifies no splitting below the limit
func TestSplit_SmallTextUnchanged(t *testing.T) {
	text := "## Section\nsome content worth keeping"
	chunks := Split(text, Config{MaxChunkSize: 4000})
	if len(chunks) != 1 || chunks[0] != text {
		t.Errorf("Split(small) = %q, want original text", chunks)
	}
}

// TestSplit_SectionBoundaries verifies chunks prefer ## headers and
// respect the size cap
func TestSplit_SectionBoundaries(t *testing.T) {
	var b strings.Builder
	for s := 0; s < 6; s++ {
		fmt.Fprintf(&b, "## Section %d\n", s)
		for i := 0; i < 10; i++ {
			fmt.Fprintf(&b, "- note %d in section %d with enough text to carry real weight\n", i, s)
		}
	}
	chunks := Split(b.String(), Config{MaxChunkSize: 1500})

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 1500 {
			t.Errorf("chunk %d is %d bytes, exceeds limit", i, len(c))
		}
		if i > 0 && !strings.HasPrefix(c, "## Section") {
			t.Errorf("chunk %d does not start at a section header: %q", i, firstLine(c))
		}
	}

	joined := strings.Join(chunks, "\n")
	for s := 0; s < 6; s++ {
		if !strings.Contains(joined, fmt.Sprintf("## Section %d", s)) {
			t.Errorf("section %d missing from chunks", s)
		}
	}
}

// TestSplit_LongLinesHardBreak verifies headerless text still splits
func TestSplit_LongLinesHardBreak(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&b, "plain line %d with a reasonable amount of content on it\n", i)
	}
	chunks := Split(b.String(), Config{MaxChunkSize: 1000})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 1000 {
			t.Errorf("chunk %d is %d bytes, exceeds limit", i, len(c))
		}
	}
}

// TestSplit_PreFilterApplied verifies filtering happens inside Split
func TestSplit_PreFilterApplied(t *testing.T) {
	text := "real work happened today\nHEARTBEAT_OK\n"
	chunks := Split(text, Config{MaxChunkSize: 4000, PreFilter: true})
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if strings.Contains(chunks[0], "HEARTBEAT_OK") {
		t.Errorf("pre-filter not applied: %q", chunks[0])
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
