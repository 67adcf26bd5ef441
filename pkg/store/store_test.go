package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const marcusFile = `# Marcus Chen
**Type:** person
**Also known as:** Marcus, M. Chen

## Facts
- Works at Acme Corp
- Prefers async communication

## Timeline

### [[2026-08-20]]
- discussed → [[Project Alpha]]: kickoff planning
- mentioned deadline concerns

### [[2026-08-25]]
- [[Sarah Kim]] introduced → this: at standup

## Relations
- [[Project Alpha]]
- [[Sarah Kim]]
`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "entities"))
	require.NoError(t, err)
	return s
}

// TestSanitize verifies the name → filename mapping
func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Marcus Chen", "Marcus-Chen"},
		{"  Marcus Chen  ", "Marcus-Chen"},
		{"O'Brien & Sons!", "OBrien--Sons"},
		{"already-hyphenated", "already-hyphenated"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.name); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

// TestParseEntity_FullFile verifies every section is extracted
func TestParseEntity_FullFile(t *testing.T) {
	e := ParseEntity("Marcus Chen", marcusFile)

	assert.Equal(t, "person", e.Type)
	assert.Equal(t, []string{"Marcus", "M. Chen"}, e.AlsoKnownAs)
	assert.Equal(t, []string{"Works at Acme Corp", "Prefers async communication"}, e.Facts)
	require.Len(t, e.Timeline, 2)
	assert.Equal(t, "2026-08-20", e.Timeline[0].Date)
	assert.Len(t, e.Timeline[0].Lines, 2)
	assert.Equal(t, []string{"Project Alpha", "Sarah Kim"}, e.Relations)
	assert.Equal(t, "2026-08-25", e.LastTimelineDate())
}

// TestParseEntity_MissingSections verifies the parser tolerates sparse files
func TestParseEntity_MissingSections(t *testing.T) {
	e := ParseEntity("Stub", "# Stub\n\nSome free text.\n")

	assert.Equal(t, "unknown", e.Type)
	assert.Empty(t, e.Facts)
	assert.Empty(t, e.Timeline)
	assert.Equal(t, "", e.LastTimelineDate())
}

// TestReadWrite_RoundTrip verifies a rendered entity parses back identically
func TestReadWrite_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	e := &Entity{
		Name:     "Project Alpha",
		Type:     "project",
		Facts:    []string{"Q3 priority"},
		Timeline: []TimelineEntry{{Date: "2026-08-20", Lines: []string{"kickoff"}}},
	}
	require.NoError(t, s.Write(e))

	got, err := s.Read("Project Alpha")
	require.NoError(t, err)
	assert.Equal(t, "project", got.Type)
	assert.Equal(t, []string{"Q3 priority"}, got.Facts)
	require.Len(t, got.Timeline, 1)
	assert.Equal(t, "2026-08-20", got.Timeline[0].Date)
}

// TestRead_NotFound verifies the sentinel surfaces through wrapping
func TestRead_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Read("Nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestFind_SubstringFallback verifies lookup without exact spelling
func TestFind_SubstringFallback(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteContent("Marcus Chen", marcusFile))

	path, err := s.Find("marcus")
	require.NoError(t, err)
	assert.Equal(t, "Marcus-Chen.md", filepath.Base(path))

	_, err = s.Find("zelda")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestSetType verifies the in-place type edit and confirmation message
func TestSetType(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteContent("Marcus Chen", marcusFile))

	msg, err := s.SetType("Marcus Chen", "colleague")
	require.NoError(t, err)
	assert.Contains(t, msg, "Updated")
	assert.Contains(t, msg, "colleague")

	e, err := s.Read("Marcus Chen")
	require.NoError(t, err)
	assert.Equal(t, "colleague", e.Type)
	// the rest of the file is untouched
	assert.Contains(t, e.Content, "### [[2026-08-25]]")
}

// TestAddFact covers insertion, section creation, and the duplicate no-op
func TestAddFact(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteContent("Marcus Chen", marcusFile))

	msg, err := s.AddFact("Marcus Chen", "Allergic to cilantro")
	require.NoError(t, err)
	assert.Contains(t, msg, "Added fact")

	msg, err = s.AddFact("Marcus Chen", "Allergic to cilantro")
	require.NoError(t, err)
	assert.Contains(t, msg, "already exists")

	e, _ := s.Read("Marcus Chen")
	count := strings.Count(e.Content, "Allergic to cilantro")
	assert.Equal(t, 1, count)
}

// TestAddFact_NoFactsSection verifies the section is created before Timeline
func TestAddFact_NoFactsSection(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteContent("Bare", "# Bare\n**Type:** tool\n\n## Timeline\n"))

	_, err := s.AddFact("Bare", "First fact")
	require.NoError(t, err)

	e, _ := s.Read("Bare")
	assert.Equal(t, []string{"First fact"}, e.Facts)
	assert.Less(t, strings.Index(e.Content, "## Facts"), strings.Index(e.Content, "## Timeline"))
}

// TestRemoveFact verifies case-insensitive substring removal
func TestRemoveFact(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteContent("Marcus Chen", marcusFile))

	msg, err := s.RemoveFact("Marcus Chen", "acme corp")
	require.NoError(t, err)
	assert.Contains(t, msg, "Removed fact")

	e, _ := s.Read("Marcus Chen")
	assert.Equal(t, []string{"Prefers async communication"}, e.Facts)

	msg, err = s.RemoveFact("Marcus Chen", "nonexistent")
	require.NoError(t, err)
	assert.Contains(t, msg, "No fact matching")
}

// TestRename covers title rewrite and the conflict sentinel
func TestRename(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteContent("Marcus Chen", marcusFile))
	require.NoError(t, s.WriteContent("Existing", "# Existing\n**Type:** person\n"))

	msg, err := s.Rename("Marcus Chen", "Marcus Chen-Wu")
	require.NoError(t, err)
	assert.Contains(t, msg, "Renamed")

	if _, err := os.Stat(s.Path("Marcus Chen")); !os.IsNotExist(err) {
		t.Errorf("old entity file still present, stat err = %v", err)
	}
	e, err := s.Read("Marcus Chen-Wu")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(e.Content, "# Marcus Chen-Wu\n"))

	_, err = s.Rename("Marcus Chen-Wu", "Existing")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.Rename("Ghost", "Anything")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestAliases covers persistence, single-hop resolution, and
// self-mapping cleanup
func TestAliases(t *testing.T) {
	s := newTestStore(t)

	assert.Equal(t, "Unmapped", s.ResolveAlias("Unmapped"))

	require.NoError(t, s.AddAlias("Marcus", "Marcus Chen"))
	assert.Equal(t, "Marcus Chen", s.ResolveAlias("Marcus"))
	assert.Equal(t, "Marcus Chen", s.ResolveAlias("marcus"))

	// aliasing to an alias collapses to the canonical target
	require.NoError(t, s.AddAlias("M. Chen", "Marcus"))
	assert.Equal(t, "Marcus Chen", s.ResolveAlias("M. Chen"))

	// self-mappings never persist
	require.NoError(t, s.SaveAliases(map[string]string{
		"Marcus":      "Marcus Chen",
		"Marcus Chen": "Marcus Chen",
	}))
	aliases, err := s.Aliases()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Marcus": "Marcus Chen"}, aliases)
}

// TestList verifies sorted listing that skips non-markdown files
func TestList(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteContent("Beta", "# Beta\n**Type:** project\n"))
	require.NoError(t, s.WriteContent("Alpha", "# Alpha\n**Type:** project\n"))
	require.NoError(t, s.SaveAliases(map[string]string{"A": "Alpha"}))

	entities, err := s.List()
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "Alpha", entities[0].Name)
	assert.Equal(t, "Beta", entities[1].Name)
}
