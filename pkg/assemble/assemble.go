// Package assemble builds token-budgeted context for a query instead of
// dumping the whole memory store at session start. Sources are tried in
// fixed priority order (entities, linked entities, graph, daily logs,
// long-term memory) and each loaded or skipped item is recorded in a
// manifest, appended to an audit log so budget decisions stay inspectable
// after the fact.
package assemble

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindgarden/engram/pkg/graph"
	"github.com/mindgarden/engram/pkg/lockfile"
	"github.com/mindgarden/engram/pkg/search"
	"github.com/mindgarden/engram/pkg/store"
)

const (
	charsPerToken    = 4
	manifestFile     = "context-manifests.jsonl"
	entityTruncLines = 20
	linkedLines      = 8
	maxLinked        = 5
	maxGraphLines    = 10
	excerptContext   = 3
)

// EstimateTokens approximates the token cost of text at ~4 characters
// per token, never less than 1.
func EstimateTokens(text string) int {
	return max(1, len(text)/charsPerToken)
}

// Options tunes one assembly. Zero values take defaults via
// ApplyDefaults; IncludeGraph and IncludeMemory default to true through
// DefaultOptions.
type Options struct {
	TokenBudget   int
	RecentDays    int
	MaxEntities   int
	MaxHops       int
	IncludeGraph  bool
	IncludeMemory bool
}

// DefaultOptions returns the standard assembly settings.
func DefaultOptions() Options {
	return Options{
		TokenBudget:   4000,
		RecentDays:    2,
		MaxEntities:   10,
		MaxHops:       1,
		IncludeGraph:  true,
		IncludeMemory: true,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.TokenBudget <= 0 {
		o.TokenBudget = d.TokenBudget
	}
	if o.RecentDays <= 0 {
		o.RecentDays = d.RecentDays
	}
	if o.MaxEntities <= 0 {
		o.MaxEntities = d.MaxEntities
	}
	if o.MaxHops < 0 {
		o.MaxHops = d.MaxHops
	}
}

// Item is one manifest entry, loaded or skipped.
type Item struct {
	Type      string  `json:"type"`
	Name      string  `json:"name,omitempty"`
	Date      string  `json:"date,omitempty"`
	Score     float64 `json:"score,omitempty"`
	Count     int     `json:"count,omitempty"`
	Tokens    int     `json:"tokens"`
	Truncated bool    `json:"truncated,omitempty"`
	Filtered  bool    `json:"filtered,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// Manifest documents one assembly: what went in, what was left out, and
// how much of the budget was spent.
type Manifest struct {
	ID              string  `json:"id"`
	Query           string  `json:"query"`
	TokenBudget     int     `json:"token_budget"`
	TokensUsed      int     `json:"tokens_used"`
	TokensRemaining int     `json:"tokens_remaining"`
	Utilization     float64 `json:"utilization"`
	Loaded          []Item  `json:"loaded"`
	Skipped         []Item  `json:"skipped"`
	LoadedCount     int     `json:"loaded_count"`
	SkippedCount    int     `json:"skipped_count"`
	Timestamp       string  `json:"timestamp"`
}

// Result is the assembled context plus its manifest.
type Result struct {
	Context  string
	Manifest Manifest
}

// Assembler holds the memory sources an assembly draws from.
type Assembler struct {
	store          *store.Store
	graph          *graph.Log
	memoryDir      string
	longTermMemory string
	logger         *slog.Logger
	now            func() time.Time
}

// New creates an assembler. memoryDir holds the daily logs and the
// manifest audit log; longTermMemory is the path to the distilled
// memory file.
func New(s *store.Store, g *graph.Log, memoryDir, longTermMemory string) *Assembler {
	return &Assembler{
		store:          s,
		graph:          g,
		memoryDir:      memoryDir,
		longTermMemory: longTermMemory,
		now:            time.Now,
	}
}

// WithLogger sets the logger for best-effort failure warnings.
func (a *Assembler) WithLogger(logger *slog.Logger) *Assembler {
	a.logger = logger
	return a
}

// Assemble selects context for query within the token budget. The
// result's TokensUsed never exceeds the budget; over-budget sources are
// truncated, excerpted, or skipped with a reason. The manifest is
// appended to the audit log best-effort: logging failure never fails
// the assembly.
func (a *Assembler) Assemble(ctx context.Context, query string, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	b := &budget{limit: opts.TokenBudget}
	matches, resolved, err := search.RankEntities(a.store, query)
	if err != nil {
		return nil, fmt.Errorf("rank entities: %w", err)
	}

	a.loadEntities(b, matches, opts.MaxEntities)
	if opts.MaxHops >= 1 && len(matches) > 0 {
		a.loadLinked(b, matches[0].Entity.Content)
	}
	if opts.IncludeGraph {
		a.loadGraph(b, resolved)
	}
	a.loadDailyLogs(b, resolved, opts.RecentDays)
	if opts.IncludeMemory {
		a.loadLongTermMemory(b, resolved)
	}

	m := Manifest{
		ID:              uuid.NewString(),
		Query:           query,
		TokenBudget:     opts.TokenBudget,
		TokensUsed:      b.used,
		TokensRemaining: opts.TokenBudget - b.used,
		Utilization:     math.Round(float64(b.used)/float64(opts.TokenBudget)*100) / 100,
		Loaded:          b.loaded,
		Skipped:         b.skipped,
		LoadedCount:     len(b.loaded),
		SkippedCount:    len(b.skipped),
		Timestamp:       a.now().Format(time.RFC3339),
	}
	a.logManifest(m)

	return &Result{
		Context:  strings.Join(b.parts, "\n\n---\n\n"),
		Manifest: m,
	}, nil
}

// budget accumulates context parts while enforcing the token limit.
type budget struct {
	limit   int
	used    int
	parts   []string
	loaded  []Item
	skipped []Item
}

// fits reports whether text can still be afforded.
func (b *budget) fits(tokens int) bool {
	return b.used+tokens <= b.limit
}

func (b *budget) add(part string, tokens int, item Item) {
	b.parts = append(b.parts, part)
	b.used += tokens
	item.Tokens = tokens
	b.loaded = append(b.loaded, item)
}

func (b *budget) skip(item Item, reason string) {
	item.Reason = reason
	b.skipped = append(b.skipped, item)
}

func (a *Assembler) loadEntities(b *budget, matches []search.Match, maxEntities int) {
	if len(matches) > maxEntities {
		matches = matches[:maxEntities]
	}
	for _, m := range matches {
		item := Item{Type: "entity", Name: m.Name, Score: round3(m.Score)}
		content := m.Entity.Content
		if est := EstimateTokens(content); b.fits(est) {
			b.add(fmt.Sprintf("## Entity: %s\n%s", m.Name, content), est, item)
			continue
		}

		truncated := firstLines(content, entityTruncLines)
		if est := EstimateTokens(truncated); b.fits(est) {
			item.Truncated = true
			b.add(fmt.Sprintf("## Entity: %s (truncated)\n%s", m.Name, truncated), est, item)
			continue
		}

		item.Tokens = EstimateTokens(content)
		b.skip(item, "token_budget_exceeded")
	}
}

func (a *Assembler) loadLinked(b *budget, topContent string) {
	links := graph.ExtractWikilinks(topContent)
	if len(links) > maxLinked {
		links = links[:maxLinked]
	}
	for _, link := range links {
		e, err := a.store.Read(link)
		if err != nil {
			continue
		}
		summary := firstLines(e.Content, linkedLines)
		est := EstimateTokens(summary)
		item := Item{Type: "linked_entity", Name: link}
		if b.fits(est) {
			b.add(fmt.Sprintf("## Linked: %s\n%s", link, summary), est, item)
		} else {
			item.Tokens = est
			b.skip(item, "token_budget_exceeded")
		}
	}
}

func (a *Assembler) loadGraph(b *budget, query string) {
	lines, err := a.graph.Search(query)
	if err != nil || len(lines) == 0 {
		return
	}
	if len(lines) > maxGraphLines {
		lines = lines[:maxGraphLines]
	}
	text := strings.Join(lines, "\n")
	est := EstimateTokens(text)
	if b.fits(est) {
		b.add("## Graph Connections\n"+text, est, Item{Type: "graph", Count: len(lines)})
	}
}

func (a *Assembler) loadDailyLogs(b *budget, query string, recentDays int) {
	today := a.now()
	for offset := 0; offset < recentDays; offset++ {
		date := today.AddDate(0, 0, -offset).Format("2006-01-02")
		data, err := os.ReadFile(filepath.Join(a.memoryDir, date+".md"))
		if err != nil {
			continue
		}
		content := string(data)
		item := Item{Type: "daily_log", Date: date}

		if est := EstimateTokens(content); b.fits(est) {
			b.add(fmt.Sprintf("## Daily Log: %s\n%s", date, content), est, item)
			continue
		}

		relevant := extractRelevantLines(content, query, excerptContext)
		if relevant == "" {
			item.Tokens = EstimateTokens(content)
			b.skip(item, "no_relevant_content")
			continue
		}
		if est := EstimateTokens(relevant); b.fits(est) {
			item.Filtered = true
			b.add(fmt.Sprintf("## Daily Log: %s (relevant excerpts)\n%s", date, relevant), est, item)
		} else {
			item.Tokens = EstimateTokens(content)
			b.skip(item, "token_budget_exceeded")
		}
	}
}

func (a *Assembler) loadLongTermMemory(b *budget, query string) {
	data, err := os.ReadFile(a.longTermMemory)
	if err != nil {
		return
	}
	content := string(data)
	item := Item{Type: "long_term_memory"}

	if est := EstimateTokens(content); b.fits(est) {
		b.add("## Long-Term Memory\n"+content, est, item)
		return
	}
	relevant := extractRelevantLines(content, query, excerptContext)
	if relevant == "" {
		return
	}
	if est := EstimateTokens(relevant); b.fits(est) {
		item.Filtered = true
		b.add("## Long-Term Memory (relevant excerpts)\n"+relevant, est, item)
	}
}

// extractRelevantLines returns the lines mentioning any query word of
// three or more characters, each with surrounding context lines.
func extractRelevantLines(content, query string, contextLines int) string {
	words := strings.Fields(strings.ToLower(query))
	lines := strings.Split(content, "\n")
	relevant := map[int]bool{}

	for i, line := range lines {
		lower := strings.ToLower(line)
		for _, w := range words {
			if len(w) < 3 || !strings.Contains(lower, w) {
				continue
			}
			for j := max(0, i-contextLines); j < min(len(lines), i+contextLines+1); j++ {
				relevant[j] = true
			}
			break
		}
	}
	if len(relevant) == 0 {
		return ""
	}

	indices := make([]int, 0, len(relevant))
	for i := range relevant {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = lines[idx]
	}
	return strings.Join(out, "\n")
}

// logManifest appends the manifest to the audit log. Failures are
// non-critical and only logged.
func (a *Assembler) logManifest(m Manifest) {
	data, err := json.Marshal(m)
	if err == nil {
		err = lockfile.LockedAppend(filepath.Join(a.memoryDir, manifestFile), append(data, '\n'), lockfile.DefaultTimeout)
	}
	if err != nil && a.logger != nil {
		a.logger.Warn("manifest log append failed", "error", err)
	}
}

func firstLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
