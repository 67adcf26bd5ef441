// Package extraction turns daily logs into structured memory: entities
// with facts, subject→predicate→object triplets, and dated events. Large
// logs are pre-filtered and chunked, each chunk goes through one
// completion, and the per-chunk results are merged with dedup before
// they are folded into entity files and the graph log.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mindgarden/engram/pkg/chunker"
	"github.com/mindgarden/engram/pkg/graph"
	"github.com/mindgarden/engram/pkg/llm"
	"github.com/mindgarden/engram/pkg/store"
)

// ErrNoDailyLog indicates the requested date has no daily file.
var ErrNoDailyLog = errors.New("no daily log for date")

const extractPrompt = `Extract structured knowledge from this daily log. Output ONLY valid JSON.

{
  "entities": [
    {
      "name": "canonical name",
      "type": "person|company|project|tool|concept|role",
      "facts": ["permanent fact 1", "permanent fact 2"],
      "summary": "one-line description"
    }
  ],
  "triplets": [
    {"subject": "Entity1", "predicate": "verb_phrase", "object": "Entity2", "detail": "context"}
  ],
  "events": [
    {"description": "what happened", "entities": ["Entity1"], "significance": "low|medium|high"}
  ]
}

Rules:
- Canonical names: "Marcus" (not "Marcus Widing"), "OpenClaw" (not "openclaw/openclaw")
- Types: tools like Greptile/GitHub are "tool", not "person"
- Facts = permanent truths ("CTO of Sana Labs", "195k stars"). Events = temporal ("submitted PR on Feb 16")
- Predicates: active verbs ("submitted_pr", "applied_to", "contacted", "works_at", "merged")
- Skip low-significance routine items (heartbeats, status checks)
- Only medium/high significance events

DAILY LOG (%s):
%s
`

// Entity is one extracted entity with its permanent facts.
type Entity struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Facts   []string `json:"facts"`
	Summary string   `json:"summary,omitempty"`
}

// Event is one dated happening tying entities together.
type Event struct {
	Description  string   `json:"description"`
	Entities     []string `json:"entities"`
	Significance string   `json:"significance"`
}

// Result is the structured output of one completion.
type Result struct {
	Entities []Entity        `json:"entities"`
	Triplets []graph.Triplet `json:"triplets"`
	Events   []Event         `json:"events"`
}

// Summary reports what one extraction run produced.
type Summary struct {
	Date     string
	Chunks   int
	Entities int
	Triplets int
	Events   int
	Created  []string
	Updated  []string
}

// Extractor runs the daily-log extraction pipeline.
type Extractor struct {
	store     *store.Store
	graph     *graph.Log
	client    llm.Client
	memoryDir string
	chunkCfg  chunker.Config
	logger    *slog.Logger
}

// New creates an extractor reading daily logs from memoryDir.
func New(s *store.Store, g *graph.Log, client llm.Client, memoryDir string) *Extractor {
	return &Extractor{
		store:     s,
		graph:     g,
		client:    client,
		memoryDir: memoryDir,
		chunkCfg:  chunker.DefaultConfig(),
	}
}

// WithLogger sets the logger for progress reporting.
func (x *Extractor) WithLogger(logger *slog.Logger) *Extractor {
	x.logger = logger
	return x
}

// ExtractDate processes one daily log (date in YYYY-MM-DD form): chunked
// completions, merged results, entity-file upserts, graph append. A date
// whose header already appears in an entity file is skipped for that
// entity, so re-runs are idempotent.
func (x *Extractor) ExtractDate(ctx context.Context, date string) (*Summary, error) {
	data, err := os.ReadFile(filepath.Join(x.memoryDir, date+".md"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", date, ErrNoDailyLog)
	}
	if err != nil {
		return nil, fmt.Errorf("read daily log: %w", err)
	}

	chunks := chunker.Split(string(data), x.chunkCfg)
	if len(chunks) > 1 && x.logger != nil {
		x.logger.Info("large daily log, splitting", "date", date, "chunks", len(chunks))
	}

	var results []Result
	for i, chunk := range chunks {
		var r Result
		prompt := fmt.Sprintf(extractPrompt, date, chunk)
		if err := x.client.CompleteWithSchema(ctx, prompt, &r); err != nil {
			return nil, fmt.Errorf("extract chunk %d/%d: %w", i+1, len(chunks), err)
		}
		results = append(results, r)
	}

	merged := Merge(results)
	summary := &Summary{
		Date:     date,
		Chunks:   len(chunks),
		Entities: len(merged.Entities),
		Triplets: len(merged.Triplets),
		Events:   len(merged.Events),
	}

	for _, entity := range merged.Entities {
		created, changed, err := x.upsertEntity(entity, date, merged.Events, merged.Triplets)
		if err != nil {
			return summary, err
		}
		switch {
		case created:
			summary.Created = append(summary.Created, entity.Name)
		case changed:
			summary.Updated = append(summary.Updated, entity.Name)
		}
	}

	if len(merged.Triplets) > 0 {
		if _, err := x.graph.Append(merged.Triplets, date); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// Merge combines per-chunk results: entities merge by name (facts
// unioned), triplets dedup on (subject, predicate, object), events dedup
// on a 60-character description fingerprint.
func Merge(results []Result) Result {
	var merged Result
	entityIdx := map[string]int{}
	tripletSeen := map[string]bool{}
	eventSeen := map[string]bool{}

	for _, r := range results {
		for _, e := range r.Entities {
			if e.Name == "" {
				continue
			}
			if i, ok := entityIdx[e.Name]; ok {
				existing := map[string]bool{}
				for _, f := range merged.Entities[i].Facts {
					existing[f] = true
				}
				for _, f := range e.Facts {
					if !existing[f] {
						merged.Entities[i].Facts = append(merged.Entities[i].Facts, f)
					}
				}
				continue
			}
			entityIdx[e.Name] = len(merged.Entities)
			merged.Entities = append(merged.Entities, e)
		}

		for _, t := range r.Triplets {
			key := t.Subject + "\x00" + t.Predicate + "\x00" + t.Object
			if !tripletSeen[key] {
				tripletSeen[key] = true
				merged.Triplets = append(merged.Triplets, t)
			}
		}

		for _, ev := range r.Events {
			fp := strings.ToLower(ev.Description)
			if len(fp) > 60 {
				fp = fp[:60]
			}
			if !eventSeen[fp] {
				eventSeen[fp] = true
				merged.Events = append(merged.Events, ev)
			}
		}
	}
	return merged
}

// upsertEntity creates or updates one entity file for the date. Existing
// files get missing facts and a dated timeline block; dates already in
// the file are left alone.
func (x *Extractor) upsertEntity(entity Entity, date string, events []Event, triplets []graph.Triplet) (created, changed bool, err error) {
	existing, err := x.store.Read(entity.Name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, false, err
	}

	if existing != nil {
		if strings.Contains(existing.Content, "### [["+date+"]]") {
			return false, false, nil
		}
		content := mergeIntoExisting(existing.Content, entity, date, events, triplets)
		if content == "" {
			return false, false, nil
		}
		return false, true, x.store.WriteContent(entity.Name, content)
	}

	content := renderNew(entity, date, events, triplets)
	return true, false, x.store.WriteContent(entity.Name, content)
}

func mergeIntoExisting(existing string, entity Entity, date string, events []Event, triplets []graph.Triplet) string {
	lines := strings.Split(strings.TrimRight(existing, "\n"), "\n")

	for _, fact := range entity.Facts {
		if strings.Contains(existing, fact) {
			continue
		}
		for i, line := range lines {
			if !strings.HasPrefix(line, "## Facts") {
				continue
			}
			at := i + 1
			for at < len(lines) && !strings.HasPrefix(lines[at], "## ") {
				at++
			}
			lines = append(lines[:at], append([]string{"- " + fact}, lines[at:]...)...)
			break
		}
	}

	bullets := timelineBullets(entity.Name, events, triplets)
	if len(bullets) == 0 {
		return ""
	}
	block := "\n### [[" + date + "]]\n" + strings.Join(bullets, "\n")
	return strings.Join(lines, "\n") + block + "\n"
}

func renderNew(entity Entity, date string, events []Event, triplets []graph.Triplet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n**Type:** %s\n\n", entity.Name, entity.Type)

	if len(entity.Facts) > 0 {
		b.WriteString("## Facts\n")
		for _, fact := range entity.Facts {
			fmt.Fprintf(&b, "- %s\n", fact)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Timeline\n\n### [[%s]]\n", date)
	for _, bullet := range timelineBullets(entity.Name, events, triplets) {
		b.WriteString(bullet + "\n")
	}

	b.WriteString("\n## Relations\n")
	related := map[string]bool{}
	for _, t := range triplets {
		if t.Subject == entity.Name {
			related[t.Object] = true
		} else if t.Object == entity.Name {
			related[t.Subject] = true
		}
	}
	names := make([]string, 0, len(related))
	for name := range related {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "- [[%s]]\n", name)
	}
	return b.String()
}

// timelineBullets renders the dated bullets for one entity: events that
// mention it and triplets that touch it, in arrow notation.
func timelineBullets(name string, events []Event, triplets []graph.Triplet) []string {
	var bullets []string
	nameLower := strings.ToLower(name)
	for _, ev := range events {
		for _, mentioned := range ev.Entities {
			if strings.Contains(strings.ToLower(mentioned), nameLower) {
				bullets = append(bullets, "- "+ev.Description)
				break
			}
		}
	}
	for _, t := range triplets {
		switch name {
		case t.Subject:
			bullets = append(bullets, fmt.Sprintf("- %s → [[%s]]: %s", t.Predicate, t.Object, t.Detail))
		case t.Object:
			bullets = append(bullets, fmt.Sprintf("- [[%s]] %s → this: %s", t.Subject, t.Predicate, t.Detail))
		}
	}
	return bullets
}
