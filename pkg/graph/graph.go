// Package graph maintains the knowledge-graph triplet log, an
// append-only JSONL file beside the entity store. The log is derived
// data: entity files stay the ground truth, and Reindex can rebuild the
// whole log from them after manual edits drift the two apart.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mindgarden/engram/pkg/lockfile"
	"github.com/mindgarden/engram/pkg/store"
)

// Triplet is one subject→predicate→object edge. Stale edges are kept in
// the log for audit; readers filter on the flag.
type Triplet struct {
	Subject    string `json:"subject"`
	Predicate  string `json:"predicate"`
	Object     string `json:"object"`
	Detail     string `json:"detail,omitempty"`
	Date       string `json:"date,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	Source     string `json:"source,omitempty"`
	Stale      bool   `json:"stale,omitempty"`
	ArchivedAt string `json:"archived_at,omitempty"`
}

// Log reads and appends the graph JSONL file.
type Log struct {
	path        string
	lockTimeout time.Duration
}

// NewLog creates a log over path. The file is created lazily on first
// append.
func NewLog(path string) *Log {
	return &Log{path: path, lockTimeout: lockfile.DefaultTimeout}
}

// Path returns the log's file path.
func (l *Log) Path() string { return l.path }

// All returns every triplet in the log. Malformed lines are skipped.
func (l *Log) All() ([]Triplet, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read graph log: %w", err)
	}

	var triplets []Triplet
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var t Triplet
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			continue
		}
		triplets = append(triplets, t)
	}
	return triplets, nil
}

// Append adds triplets under date, skipping any whose
// (date, subject, predicate, object) key is already present. Returns the
// number of triplets actually written.
func (l *Log) Append(triplets []Triplet, date string) (int, error) {
	existing, err := l.All()
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[tripletKey(t.Date, t.Subject, t.Predicate, t.Object)] = true
	}

	var buf strings.Builder
	added := 0
	now := time.Now().Format(time.RFC3339)
	for _, t := range triplets {
		key := tripletKey(date, t.Subject, t.Predicate, t.Object)
		if seen[key] {
			continue
		}
		seen[key] = true
		t.Date = date
		t.Timestamp = now
		line, err := json.Marshal(t)
		if err != nil {
			return added, fmt.Errorf("encode triplet: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
		added++
	}
	if added == 0 {
		return 0, nil
	}

	if err := lockfile.LockedAppend(l.path, []byte(buf.String()), l.lockTimeout); err != nil {
		return 0, fmt.Errorf("append graph log: %w", err)
	}
	return added, nil
}

// Search returns formatted lines for triplets whose subject, object, or
// detail contains query (case-insensitive).
func (l *Log) Search(query string) ([]string, error) {
	triplets, err := l.All()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var matches []string
	for _, t := range triplets {
		if strings.Contains(strings.ToLower(t.Subject), q) ||
			strings.Contains(strings.ToLower(t.Object), q) ||
			strings.Contains(strings.ToLower(t.Detail), q) {
			date := t.Date
			if date == "" {
				date = "?"
			}
			line := fmt.Sprintf("- [%s] %s → %s → %s", date, t.Subject, t.Predicate, t.Object)
			if t.Detail != "" {
				line += fmt.Sprintf(" (%s)", t.Detail)
			}
			matches = append(matches, line)
		}
	}
	return matches, nil
}

// MarkStale flags every triplet touching entityName (as subject or
// object, case-insensitive) as stale and stamps archived_at. Lines that
// do not parse are written back untouched.
func (l *Log) MarkStale(entityName string) error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read graph log: %w", err)
	}

	name := strings.ToLower(entityName)
	now := time.Now().Format(time.RFC3339)
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var t Triplet
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			out = append(out, line)
			continue
		}
		if strings.ToLower(t.Subject) == name || strings.ToLower(t.Object) == name {
			t.Stale = true
			t.ArchivedAt = now
		}
		encoded, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode triplet: %w", err)
		}
		out = append(out, string(encoded))
	}

	content := strings.Join(out, "\n") + "\n"
	return lockfile.WriteLocked(l.path, []byte(content), l.lockTimeout)
}

var (
	wikilinkRe = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	dateLinkRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	// "verb → [[Target]]: detail"
	forwardRe = regexp.MustCompile(`(\w[\w\s]*?)\s*→\s*\[\[([^\]]+)\]\](?::\s*(.*))?`)
	// "[[Source]] verb → this: detail"
	reverseRe = regexp.MustCompile(`\[\[([^\]]+)\]\]\s+(\w[\w\s]*?)\s*→\s*this(?::\s*(.*))?`)
)

// ExtractWikilinks returns the wikilink targets in text, deduplicated in
// order of first appearance. Date links are not entities and are skipped.
func ExtractWikilinks(text string) []string {
	seen := map[string]bool{}
	var links []string
	for _, m := range wikilinkRe.FindAllStringSubmatch(text, -1) {
		link := m[1]
		if seen[link] || dateLinkRe.MatchString(link) {
			continue
		}
		seen[link] = true
		links = append(links, link)
	}
	return links
}

// ExtractRelations parses one entity's content for relationship triplets:
// forward and reverse arrow patterns in timeline bullets, plus bare links
// under the Relations section (predicate "related_to") when no arrow
// pattern already covers them.
func ExtractRelations(name, content string) []Triplet {
	var relations []Triplet

	for _, m := range forwardRe.FindAllStringSubmatch(content, -1) {
		target := strings.TrimSpace(m[2])
		if dateLinkRe.MatchString(target) {
			continue
		}
		relations = append(relations, Triplet{
			Subject:   name,
			Predicate: strings.TrimSpace(m[1]),
			Object:    target,
			Detail:    strings.TrimSpace(m[3]),
		})
	}

	for _, m := range reverseRe.FindAllStringSubmatch(content, -1) {
		source := strings.TrimSpace(m[1])
		if dateLinkRe.MatchString(source) {
			continue
		}
		relations = append(relations, Triplet{
			Subject:   source,
			Predicate: strings.TrimSpace(m[2]),
			Object:    name,
			Detail:    strings.TrimSpace(m[3]),
		})
	}

	inRelations := false
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.TrimSpace(line) == "## Relations":
			inRelations = true
			continue
		case strings.HasPrefix(line, "## ") && inRelations:
			inRelations = false
		}
		if !inRelations {
			continue
		}
		for _, m := range wikilinkRe.FindAllStringSubmatch(line, -1) {
			link := m[1]
			if dateLinkRe.MatchString(link) {
				continue
			}
			covered := false
			for _, r := range relations {
				if r.Object == link || r.Subject == link {
					covered = true
					break
				}
			}
			if !covered {
				relations = append(relations, Triplet{
					Subject:   name,
					Predicate: "related_to",
					Object:    link,
				})
			}
		}
	}

	return relations
}

// Reindex rebuilds the log from the entity store. The old log is moved
// aside to <path>.bak first. Each entity's triplets carry its latest
// timeline date (today if it has none) and source "reindex". Returns the
// entity and triplet counts.
func (l *Log) Reindex(s *store.Store) (entityCount, tripletCount int, err error) {
	entities, err := s.List()
	if err != nil {
		return 0, 0, err
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })

	today := time.Now().Format("2006-01-02")
	now := time.Now().Format(time.RFC3339)
	seen := map[string]bool{}
	var buf strings.Builder

	for _, e := range entities {
		entityCount++
		date := e.LastTimelineDate()
		if date == "" {
			date = today
		}
		for _, t := range ExtractRelations(e.Name, e.Content) {
			key := tripletKey("", t.Subject, t.Predicate, t.Object)
			if seen[key] {
				continue
			}
			seen[key] = true
			t.Date = date
			t.Timestamp = now
			t.Source = "reindex"
			line, err := json.Marshal(t)
			if err != nil {
				return entityCount, tripletCount, fmt.Errorf("encode triplet: %w", err)
			}
			buf.Write(line)
			buf.WriteByte('\n')
			tripletCount++
		}
	}

	if _, err := os.Stat(l.path); err == nil {
		if err := os.Rename(l.path, l.path+".bak"); err != nil {
			return entityCount, 0, fmt.Errorf("back up graph log: %w", err)
		}
	}
	if err := lockfile.WriteLocked(l.path, []byte(buf.String()), l.lockTimeout); err != nil {
		return entityCount, 0, fmt.Errorf("write graph log: %w", err)
	}
	return entityCount, tripletCount, nil
}

func tripletKey(date, subject, predicate, object string) string {
	return date + "\x00" + subject + "\x00" + predicate + "\x00" + object
}
