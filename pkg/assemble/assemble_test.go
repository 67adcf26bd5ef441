package assemble

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindgarden/engram/pkg/graph"
	"github.com/mindgarden/engram/pkg/store"
)

var fixedNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func newTestAssembler(t *testing.T) *Assembler {
	t.Helper()
	dir := t.TempDir()
	memoryDir := filepath.Join(dir, "memory")
	require.NoError(t, os.MkdirAll(memoryDir, 0o755))

	s, err := store.New(filepath.Join(memoryDir, "entities"))
	require.NoError(t, err)

	require.NoError(t, s.WriteContent("Marcus Chen", `# Marcus Chen
**Type:** person

## Facts
- Works at Acme Corp

## Timeline

### [[2026-08-24]]
- discussed → [[Project Alpha]]: kickoff planning

## Relations
- [[Project Alpha]]
`))
	require.NoError(t, s.WriteContent("Project Alpha", "# Project Alpha\n**Type:** project\n\n## Facts\n- Q3 priority\n"))

	g := graph.NewLog(filepath.Join(memoryDir, "graph.jsonl"))
	_, err = g.Append([]graph.Triplet{
		{Subject: "Marcus Chen", Predicate: "works_on", Object: "Project Alpha"},
	}, "2026-08-24")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(memoryDir, "2026-08-25.md"),
		[]byte("# 2026-08-25\n- standup with Marcus about the deadline\n- unrelated errand\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MEMORY.md"),
		[]byte("# Memory\n- Marcus prefers async communication\n"), 0o644))

	a := New(s, g, memoryDir, filepath.Join(dir, "MEMORY.md"))
	a.now = func() time.Time { return fixedNow }
	return a
}

// TestAssemble_AllPhases verifies each source type lands in the context
// and the manifest under a generous budget
func TestAssemble_AllPhases(t *testing.T) {
	a := newTestAssembler(t)

	res, err := a.Assemble(context.Background(), "Marcus Chen", DefaultOptions())
	require.NoError(t, err)

	assert.Contains(t, res.Context, "## Entity: Marcus Chen")
	assert.Contains(t, res.Context, "## Linked: Project Alpha")
	assert.Contains(t, res.Context, "## Graph Connections")
	assert.Contains(t, res.Context, "## Daily Log: 2026-08-25")
	assert.Contains(t, res.Context, "## Long-Term Memory")

	m := res.Manifest
	assert.NotEmpty(t, m.ID)
	assert.LessOrEqual(t, m.TokensUsed, m.TokenBudget)
	assert.Equal(t, m.TokenBudget-m.TokensUsed, m.TokensRemaining)
	assert.Equal(t, len(m.Loaded), m.LoadedCount)
	assert.Equal(t, len(m.Skipped), m.SkippedCount)

	types := map[string]bool{}
	for _, item := range m.Loaded {
		types[item.Type] = true
	}
	for _, typ := range []string{"entity", "linked_entity", "graph", "daily_log", "long_term_memory"} {
		assert.True(t, types[typ], "manifest missing loaded type %s", typ)
	}
}

// TestAssemble_BudgetNeverExceeded verifies the hard invariant across
// shrinking budgets
func TestAssemble_BudgetNeverExceeded(t *testing.T) {
	a := newTestAssembler(t)

	for _, budget := range []int{10, 25, 50, 100, 500} {
		opts := DefaultOptions()
		opts.TokenBudget = budget
		res, err := a.Assemble(context.Background(), "Marcus Chen", opts)
		require.NoError(t, err)
		assert.LessOrEqual(t, res.Manifest.TokensUsed, budget, "budget %d", budget)
	}
}

// TestAssemble_SkipReasons verifies over-budget items carry
// token_budget_exceeded and irrelevant logs carry no_relevant_content
func TestAssemble_SkipReasons(t *testing.T) {
	a := newTestAssembler(t)

	// a log with nothing about the query, big enough that it cannot be
	// loaded whole once the entity has eaten the budget
	filler := strings.Repeat("- filler line about nothing\n", 40)
	require.NoError(t, os.WriteFile(filepath.Join(a.memoryDir, "2026-08-24.md"), []byte(filler), 0o644))

	opts := DefaultOptions()
	opts.TokenBudget = EstimateTokens(mustReadEntity(t, a, "Marcus Chen")) + 5
	res, err := a.Assemble(context.Background(), "Marcus Chen", opts)
	require.NoError(t, err)

	reasons := map[string]string{}
	for _, item := range res.Manifest.Skipped {
		key := item.Type + "/" + item.Name + item.Date
		reasons[key] = item.Reason
	}
	assert.Equal(t, "no_relevant_content", reasons["daily_log/2026-08-24"])
}

// TestAssemble_TruncatesEntity verifies the 20-line fallback before a skip
func TestAssemble_TruncatesEntity(t *testing.T) {
	a := newTestAssembler(t)
	long := "# Big Entity\n**Type:** project\n\n## Facts\n" +
		strings.Repeat("- a fact about marcus budget planning\n", 60)
	require.NoError(t, a.store.WriteContent("Big Entity", long))

	opts := DefaultOptions()
	opts.TokenBudget = 220
	opts.IncludeGraph = false
	opts.IncludeMemory = false
	res, err := a.Assemble(context.Background(), "Big Entity", opts)
	require.NoError(t, err)

	require.NotEmpty(t, res.Manifest.Loaded)
	top := res.Manifest.Loaded[0]
	assert.Equal(t, "entity", top.Type)
	assert.True(t, top.Truncated)
	assert.Contains(t, res.Context, "(truncated)")
	assert.LessOrEqual(t, res.Manifest.TokensUsed, opts.TokenBudget)
}

// TestAssemble_ManifestAppended verifies the audit log grows and parses
func TestAssemble_ManifestAppended(t *testing.T) {
	a := newTestAssembler(t)

	_, err := a.Assemble(context.Background(), "Marcus Chen", DefaultOptions())
	require.NoError(t, err)
	_, err = a.Assemble(context.Background(), "Project Alpha", DefaultOptions())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(a.memoryDir, manifestFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var m Manifest
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &m))
	assert.Equal(t, "Project Alpha", m.Query)
	assert.NotEmpty(t, m.ID)
}

// TestAssemble_ManifestFailureNonFatal verifies assembly survives an
// unwritable manifest log
func TestAssemble_ManifestFailureNonFatal(t *testing.T) {
	a := newTestAssembler(t)
	// a directory at the manifest path makes the append fail
	require.NoError(t, os.MkdirAll(filepath.Join(a.memoryDir, manifestFile), 0o755))

	res, err := a.Assemble(context.Background(), "Marcus Chen", DefaultOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, res.Context)
}

// TestAssemble_Deterministic verifies repeated runs produce identical
// context for fixed inputs
func TestAssemble_Deterministic(t *testing.T) {
	a := newTestAssembler(t)

	first, err := a.Assemble(context.Background(), "Marcus Chen", DefaultOptions())
	require.NoError(t, err)
	second, err := a.Assemble(context.Background(), "Marcus Chen", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, first.Context, second.Context)
	assert.NotEqual(t, first.Manifest.ID, second.Manifest.ID)
}

// TestExtractRelevantLines verifies the context-window excerpting
func TestExtractRelevantLines(t *testing.T) {
	content := "line0\nline1\nline2\nmarcus was here\nline4\nline5\nline6\nline7"

	out := extractRelevantLines(content, "marcus", 1)
	assert.Equal(t, "line2\nmarcus was here\nline4", out)

	assert.Equal(t, "", extractRelevantLines(content, "absent", 1))
	// short query words are ignored
	assert.Equal(t, "", extractRelevantLines(content, "li", 1))
}

// TestEstimateTokens verifies the floor of one token
func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens(strings.Repeat("a", 8)))
}

func mustReadEntity(t *testing.T, a *Assembler, name string) string {
	t.Helper()
	e, err := a.store.Read(name)
	require.NoError(t, err)
	return e.Content
}
