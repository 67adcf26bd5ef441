// Package dedup detects and merges duplicate entity files. Extraction
// tends to split one real-world thing across spellings ("steipete" vs
// "Peter Steinberger"); three detectors flag candidate pairs and an
// optional auto-merge folds the smaller file into the larger one. Every
// merge is bracketed by journal records so an interrupted run can be
// found and reconciled afterwards.
package dedup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindgarden/engram/pkg/graph"
	"github.com/mindgarden/engram/pkg/lockfile"
	"github.com/mindgarden/engram/pkg/store"
)

const (
	journalFile = "merge-journal.jsonl"

	// neighborOverlapThreshold is the Jaccard similarity over graph
	// neighbors above which two entities are flagged.
	neighborOverlapThreshold = 0.5
)

// Pair is a candidate duplicate: two entity file paths and why they
// were flagged.
type Pair struct {
	A      string
	B      string
	Reason string
}

// journalEntry is one merge-journal record. A begin without a matching
// done marks an interrupted merge.
type journalEntry struct {
	ID        string `json:"id"`
	Phase     string `json:"phase"` // "begin" | "done"
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Engine finds and merges duplicates over a store and graph log.
type Engine struct {
	store       *store.Store
	graph       *graph.Log
	journalPath string
	lockTimeout time.Duration
}

// New creates a dedup engine. The merge journal lives in memoryDir.
func New(s *store.Store, g *graph.Log, memoryDir string) *Engine {
	return &Engine{
		store:       s,
		graph:       g,
		journalPath: filepath.Join(memoryDir, journalFile),
		lockTimeout: lockfile.DefaultTimeout,
	}
}

// FindDuplicates runs the three detectors: configured alias pairs,
// mutual name references, and graph neighbor overlap. Pairs are
// deterministic for a fixed store and log.
func (e *Engine) FindDuplicates() ([]Pair, error) {
	entities, err := e.store.List()
	if err != nil {
		return nil, err
	}

	files := map[string]string{} // lowercase display name → path
	contents := map[string]string{}
	var names []string
	for _, ent := range entities {
		lower := strings.ToLower(ent.Name)
		files[lower] = e.store.Path(ent.Name)
		contents[lower] = strings.ToLower(ent.Content)
		names = append(names, lower)
	}
	sort.Strings(names)

	var pairs []Pair

	aliasPairs, err := e.store.AliasPairs()
	if err != nil {
		return nil, err
	}
	for _, ap := range aliasPairs {
		alias, canonical := strings.ToLower(ap[0]), strings.ToLower(ap[1])
		if files[alias] != "" && files[canonical] != "" {
			pairs = append(pairs, Pair{
				A:      files[canonical],
				B:      files[alias],
				Reason: fmt.Sprintf("configured alias: %s → %s", ap[0], ap[1]),
			})
		}
	}

	for i, a := range names {
		for _, b := range names[i+1:] {
			if strings.Contains(contents[b], a) && strings.Contains(contents[a], b) {
				pairs = append(pairs, Pair{A: files[a], B: files[b], Reason: "mutual references"})
			}
		}
	}

	neighbors, err := e.neighborSets()
	if err != nil {
		return nil, err
	}
	for i, a := range names {
		for _, b := range names[i+1:] {
			na, nb := neighbors[a], neighbors[b]
			if len(na) == 0 || len(nb) == 0 {
				continue
			}
			overlap, union := setOverlap(na, nb)
			if union > 0 && float64(overlap)/float64(union) > neighborOverlapThreshold {
				pairs = append(pairs, Pair{
					A:      files[a],
					B:      files[b],
					Reason: fmt.Sprintf("high graph overlap (%d/%d shared neighbors)", overlap, union),
				})
			}
		}
	}

	return pairs, nil
}

func (e *Engine) neighborSets() (map[string]map[string]bool, error) {
	triplets, err := e.graph.All()
	if err != nil {
		return nil, err
	}
	neighbors := map[string]map[string]bool{}
	add := func(from, to string) {
		if neighbors[from] == nil {
			neighbors[from] = map[string]bool{}
		}
		neighbors[from][to] = true
	}
	for _, t := range triplets {
		s, o := strings.ToLower(t.Subject), strings.ToLower(t.Object)
		add(s, o)
		add(o, s)
	}
	return neighbors, nil
}

var (
	dateHeaderRe = regexp.MustCompile(`### \[\[(\d{4}-\d{2}-\d{2})\]\]`)
	typeLineRe   = regexp.MustCompile(`(\*\*Type:\*\*.*)`)
)

// timelineBlocks splits content into chunks, each starting at a dated
// timeline header and running to the next one (or end of file).
func timelineBlocks(content string) []string {
	var blocks []string
	var current []string
	for _, line := range strings.Split(content, "\n") {
		if dateHeaderRe.MatchString(line) {
			if current != nil {
				blocks = append(blocks, strings.Join(current, "\n"))
			}
			current = []string{line}
			continue
		}
		if current != nil {
			current = append(current, line)
		}
	}
	if current != nil {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}

// MergeFiles folds secondary into primary: facts the primary lacks,
// timeline blocks for dates the primary lacks, and an also-known-as
// note. Returns a summary of the changes made.
func (e *Engine) MergeFiles(primaryPath, secondaryPath string, deleteSecondary bool) (string, error) {
	primaryData, err := os.ReadFile(primaryPath)
	if err != nil {
		return "", fmt.Errorf("read primary: %w", err)
	}
	secondaryData, err := os.ReadFile(secondaryPath)
	if err != nil {
		return "", fmt.Errorf("read secondary: %w", err)
	}
	primary := string(primaryData)
	secondary := string(secondaryData)
	secondaryStem := strings.TrimSuffix(filepath.Base(secondaryPath), ".md")

	var changes []string

	// facts the primary does not already contain verbatim
	var newFacts []string
	inFacts := false
	for _, line := range strings.Split(secondary, "\n") {
		switch {
		case strings.HasPrefix(line, "## Facts"):
			inFacts = true
			continue
		case strings.HasPrefix(line, "## "):
			inFacts = false
			continue
		}
		trimmed := strings.TrimSpace(line)
		if inFacts && strings.HasPrefix(trimmed, "- ") {
			fact := strings.TrimPrefix(trimmed, "- ")
			if !strings.Contains(primary, fact) {
				newFacts = append(newFacts, fact)
			}
		}
	}
	if len(newFacts) > 0 {
		primary = insertFacts(primary, newFacts)
		changes = append(changes, fmt.Sprintf("Added %d facts from %s", len(newFacts), secondaryStem))
	}

	// timeline blocks for dates missing from the primary
	for _, block := range timelineBlocks(secondary) {
		m := dateHeaderRe.FindStringSubmatch(block)
		if m == nil || strings.Contains(primary, m[0]) {
			continue
		}
		primary = strings.TrimRight(primary, "\n") + "\n" + strings.TrimSpace(block) + "\n"
		changes = append(changes, "Added timeline entry "+m[1])
	}

	// record the merged-away name as an alias
	aliasNote := "**Also known as:** " + strings.ReplaceAll(secondaryStem, "-", " ")
	if !strings.Contains(primary, aliasNote) {
		replaced := false
		primary = typeLineRe.ReplaceAllStringFunc(primary, func(m string) string {
			if replaced {
				return m
			}
			replaced = true
			return m + "\n" + aliasNote
		})
	}

	if err := lockfile.WriteLocked(primaryPath, []byte(primary), e.lockTimeout); err != nil {
		return "", fmt.Errorf("write merged entity: %w", err)
	}

	if deleteSecondary {
		if err := os.Remove(secondaryPath); err != nil {
			return "", fmt.Errorf("delete secondary: %w", err)
		}
		changes = append(changes, "Deleted "+filepath.Base(secondaryPath))
	}

	if len(changes) == 0 {
		return "No changes needed", nil
	}
	return strings.Join(changes, "; "), nil
}

func insertFacts(content string, facts []string) string {
	bullets := "- " + strings.Join(facts, "\n- ")
	if idx := strings.Index(content, "## Facts"); idx >= 0 {
		lines := strings.Split(content, "\n")
		for i, line := range lines {
			if !strings.HasPrefix(line, "## Facts") {
				continue
			}
			at := i + 1
			for at < len(lines) && !strings.HasPrefix(lines[at], "## ") {
				at++
			}
			inserted := append([]string{}, lines[:at]...)
			inserted = append(inserted, facts2bullets(facts)...)
			inserted = append(inserted, lines[at:]...)
			return strings.Join(inserted, "\n")
		}
	}
	if strings.Contains(content, "## Timeline") {
		return strings.Replace(content, "## Timeline", "## Facts\n"+bullets+"\n\n## Timeline", 1)
	}
	return content + "\n## Facts\n" + bullets + "\n"
}

func facts2bullets(facts []string) []string {
	out := make([]string, len(facts))
	for i, f := range facts {
		out[i] = "- " + f
	}
	return out
}

// Run reports duplicate pairs or, with autoMerge, folds each pair
// together with the larger file as primary. Pairs whose files were
// already consumed by an earlier merge in the same run are skipped.
func (e *Engine) Run(autoMerge bool) ([]string, error) {
	pairs, err := e.FindDuplicates()
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return []string{"No duplicates found"}, nil
	}

	var actions []string
	for _, p := range pairs {
		if !autoMerge {
			actions = append(actions, fmt.Sprintf("⚠️ Potential duplicate: %s ↔ %s (%s)",
				stem(p.A), stem(p.B), p.Reason))
			continue
		}

		primary, secondary, ok := choosePrimary(p.A, p.B)
		if !ok {
			continue
		}
		result, err := e.mergeJournaled(primary, secondary, p.Reason)
		if err != nil {
			return actions, err
		}
		actions = append(actions, fmt.Sprintf("Merged %s → %s (%s): %s",
			filepath.Base(secondary), filepath.Base(primary), p.Reason, result))
	}
	return actions, nil
}

// choosePrimary picks the larger file as merge target. A missing file
// (consumed by an earlier merge) disqualifies the pair.
func choosePrimary(a, b string) (primary, secondary string, ok bool) {
	infoA, errA := os.Stat(a)
	infoB, errB := os.Stat(b)
	if errA != nil || errB != nil {
		return "", "", false
	}
	if infoA.Size() >= infoB.Size() {
		return a, b, true
	}
	return b, a, true
}

// mergeJournaled wraps MergeFiles in begin/done journal records.
func (e *Engine) mergeJournaled(primary, secondary, reason string) (string, error) {
	id := uuid.NewString()
	if err := e.appendJournal(journalEntry{
		ID: id, Phase: "begin", Primary: stem(primary), Secondary: stem(secondary), Reason: reason,
	}); err != nil {
		return "", err
	}
	result, err := e.MergeFiles(primary, secondary, true)
	if err != nil {
		return "", err
	}
	if err := e.appendJournal(journalEntry{
		ID: id, Phase: "done", Primary: stem(primary), Secondary: stem(secondary),
	}); err != nil {
		return "", err
	}
	return result, nil
}

func (e *Engine) appendJournal(entry journalEntry) error {
	entry.Timestamp = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	if err := lockfile.LockedAppend(e.journalPath, append(data, '\n'), e.lockTimeout); err != nil {
		return fmt.Errorf("append merge journal: %w", err)
	}
	return nil
}

// Reconcile lists merges that began but never finished, for manual
// inspection after a crash.
func (e *Engine) Reconcile() ([]string, error) {
	data, err := os.ReadFile(e.journalPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read merge journal: %w", err)
	}

	begun := map[string]journalEntry{}
	var order []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry journalEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		switch entry.Phase {
		case "begin":
			begun[entry.ID] = entry
			order = append(order, entry.ID)
		case "done":
			delete(begun, entry.ID)
		}
	}

	var unfinished []string
	for _, id := range order {
		if entry, ok := begun[id]; ok {
			unfinished = append(unfinished, fmt.Sprintf("unfinished merge %s: %s → %s (%s)",
				entry.ID, entry.Secondary, entry.Primary, entry.Timestamp))
		}
	}
	return unfinished, nil
}

func setOverlap(a, b map[string]bool) (overlap, union int) {
	union = len(b)
	for k := range a {
		if b[k] {
			overlap++
		} else {
			union++
		}
	}
	return overlap, union
}

func stem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".md")
}
