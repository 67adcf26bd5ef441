// Package decay implements temporal decay over the entity store:
// entities that stop appearing in timelines drift from active to stale
// to archive candidates, and archived entities drag their graph edges
// into staleness with them. Frequently accessed entities carry a counter
// that recall ranking can weigh.
package decay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/mindgarden/engram/pkg/graph"
	"github.com/mindgarden/engram/pkg/store"
)

// noReferenceStale is the DaysStale value for entities with no dated
// timeline entries at all.
const noReferenceStale = 9999

// Statuses, in priority order.
const (
	StatusProtected        = "protected"
	StatusArchiveCandidate = "archive_candidate"
	StatusStale            = "stale"
	StatusActive           = "active"
)

// Config tunes the decay thresholds.
type Config struct {
	ArchiveAfterDays   int
	StaleWarningDays   int
	MinTimelineEntries int
	ProtectedTypes     []string
}

// DefaultConfig returns the standard thresholds. Projects and tools are
// protected: active things should not decay out from under their users.
func DefaultConfig() Config {
	return Config{
		ArchiveAfterDays:   30,
		StaleWarningDays:   14,
		MinTimelineEntries: 1,
		ProtectedTypes:     []string{"project", "tool"},
	}
}

// Health is the decay assessment of one entity.
type Health struct {
	Name            string
	Type            string
	LastReferenced  string // YYYY-MM-DD, empty when the timeline has no dates
	TimelineEntries int
	DaysStale       int
	Status          string
	AccessCount     int
}

// Engine runs decay cycles over a store and its graph log.
type Engine struct {
	store *store.Store
	graph *graph.Log
	cfg   Config
	now   func() time.Time
}

// New creates a decay engine. graph may be nil; archival then skips
// edge marking.
func New(s *store.Store, g *graph.Log, cfg Config) *Engine {
	if cfg.ArchiveAfterDays == 0 && cfg.StaleWarningDays == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{store: s, graph: g, cfg: cfg, now: time.Now}
}

// ScanHealth assesses every entity in the store.
func (e *Engine) ScanHealth() ([]Health, error) {
	entities, err := e.store.List()
	if err != nil {
		return nil, err
	}
	today := e.today()

	var results []Health
	for _, ent := range entities {
		h := Health{
			Name:            ent.Name,
			Type:            ent.Type,
			LastReferenced:  ent.LastTimelineDate(),
			TimelineEntries: len(ent.Timeline),
			AccessCount:     ent.AccessCount,
			DaysStale:       noReferenceStale,
		}
		if h.LastReferenced != "" {
			if last, err := time.Parse("2006-01-02", h.LastReferenced); err == nil {
				h.DaysStale = int(today.Sub(last).Hours() / 24)
			}
		}

		switch {
		case slices.Contains(e.cfg.ProtectedTypes, h.Type):
			h.Status = StatusProtected
		case h.DaysStale >= e.cfg.ArchiveAfterDays:
			h.Status = StatusArchiveCandidate
		case h.DaysStale >= e.cfg.StaleWarningDays:
			h.Status = StatusStale
		default:
			h.Status = StatusActive
		}
		results = append(results, h)
	}
	return results, nil
}

// Run executes one decay cycle and returns the actions taken (or, in
// dry-run mode, the actions that would be taken). Entities with a rich
// timeline get a grace period of twice the archive threshold before
// they are moved.
func (e *Engine) Run(dryRun bool) ([]string, error) {
	health, err := e.ScanHealth()
	if err != nil {
		return nil, err
	}

	byStatus := map[string][]Health{}
	for _, h := range health {
		byStatus[h.Status] = append(byStatus[h.Status], h)
	}
	stale := byStatus[StatusStale]
	candidates := byStatus[StatusArchiveCandidate]

	actions := []string{fmt.Sprintf("📊 Health scan: %d active, %d stale, %d archive candidates, %d protected",
		len(byStatus[StatusActive]), len(stale), len(candidates), len(byStatus[StatusProtected]))}

	for _, h := range stale {
		actions = append(actions, fmt.Sprintf("⚠️ Stale (%dd): %s (%s)", h.DaysStale, h.Name, h.Type))
	}

	for _, h := range candidates {
		if h.TimelineEntries > e.cfg.MinTimelineEntries && h.DaysStale < e.cfg.ArchiveAfterDays*2 {
			actions = append(actions, fmt.Sprintf("⏳ Grace period: %s (%d entries, %dd stale)",
				h.Name, h.TimelineEntries, h.DaysStale))
			continue
		}
		if dryRun {
			actions = append(actions, fmt.Sprintf("🗄️ Would archive: %s (%dd stale)", h.Name, h.DaysStale))
			continue
		}
		if err := e.archive(h.Name); err != nil {
			return actions, err
		}
		actions = append(actions, fmt.Sprintf("🗄️ Archived: %s → archive/", h.Name))
	}

	if len(stale) == 0 && len(candidates) == 0 {
		actions = append(actions, "✅ All entities healthy")
	}
	return actions, nil
}

func (e *Engine) archive(name string) error {
	archiveDir := filepath.Join(e.store.Dir(), "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	src := e.store.Path(name)
	if err := os.Rename(src, filepath.Join(archiveDir, filepath.Base(src))); err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	if e.graph != nil {
		if err := e.graph.MarkStale(name); err != nil {
			return fmt.Errorf("mark graph stale for %s: %w", name, err)
		}
	}
	return nil
}

// Restore moves an archived entity back into the live store, falling
// back to a case-insensitive substring match when the exact name is not
// in the archive.
func (e *Engine) Restore(name string) (string, error) {
	archiveDir := filepath.Join(e.store.Dir(), "archive")
	archived := filepath.Join(archiveDir, store.Sanitize(name)+".md")

	if _, err := os.Stat(archived); err != nil {
		entries, err := os.ReadDir(archiveDir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		needle := strings.ToLower(name)
		found := ""
		for _, entry := range entries {
			stemName := strings.TrimSuffix(entry.Name(), ".md")
			if strings.HasSuffix(entry.Name(), ".md") && strings.Contains(strings.ToLower(stemName), needle) {
				found = filepath.Join(archiveDir, entry.Name())
				break
			}
		}
		if found == "" {
			return fmt.Sprintf("Entity '%s' not found in archive", name), nil
		}
		archived = found
	}

	base := filepath.Base(archived)
	if err := os.Rename(archived, filepath.Join(e.store.Dir(), base)); err != nil {
		return "", fmt.Errorf("restore %s: %w", name, err)
	}
	return fmt.Sprintf("Restored: %s from archive", strings.TrimSuffix(base, ".md")), nil
}

var accessedLineRe = regexp.MustCompile(`\*\*Accessed:\*\*\s*\d+`)
var typeLineRe = regexp.MustCompile(`(\*\*Type:\*\*.*)`)

// IncrementAccess bumps the entity's access counter, inserting it after
// the type line when absent. Missing entities are ignored.
func (e *Engine) IncrementAccess(name string) error {
	ent, err := e.store.Read(name)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	content := ent.Content
	next := ent.AccessCount + 1
	if accessedLineRe.MatchString(content) {
		content = accessedLineRe.ReplaceAllString(content, fmt.Sprintf("**Accessed:** %d", next))
	} else {
		replaced := false
		content = typeLineRe.ReplaceAllStringFunc(content, func(m string) string {
			if replaced {
				return m
			}
			replaced = true
			return fmt.Sprintf("%s\n**Accessed:** %d", m, next)
		})
	}
	return e.store.WriteContent(name, content)
}

func (e *Engine) today() time.Time {
	t := e.now()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
