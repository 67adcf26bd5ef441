// Package store provides the file-backed entity store: one markdown file
// per entity plus a flat JSON alias map, both owned exclusively by this
// package. Entity files double as human-readable documents and the only
// persisted representation of facts, timeline, and relations, so every
// mutation is a line-oriented edit that preserves untouched lines
// byte-for-byte.
package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Entity is a parsed view of an entity file. Content holds the raw file
// text and remains the ground truth; the structured fields are derived.
type Entity struct {
	Name        string
	Type        string
	AlsoKnownAs []string
	AccessCount int
	Facts       []string
	Timeline    []TimelineEntry
	Relations   []string
	Content     string
}

// TimelineEntry is one dated block under the Timeline section.
type TimelineEntry struct {
	Date  string // YYYY-MM-DD
	Lines []string
}

var (
	typeRe     = regexp.MustCompile(`\*\*Type:\*\*\s*(\w+)`)
	accessedRe = regexp.MustCompile(`\*\*Accessed:\*\*\s*(\d+)`)
	aliasRe    = regexp.MustCompile(`\*\*Also known as:\*\*\s*(.+)`)
	dateHdrRe  = regexp.MustCompile(`^### \[\[(\d{4}-\d{2}-\d{2})\]\]`)
	nonWordRe  = regexp.MustCompile(`[^\w\s-]`)
)

// Sanitize converts an entity name to its storage key: non-word characters
// stripped, surrounding whitespace trimmed, spaces replaced by hyphens.
func Sanitize(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(nonWordRe.ReplaceAllString(name, "")), " ", "-")
}

// DisplayName reverses the filename mapping (hyphens back to spaces).
func DisplayName(stem string) string {
	return strings.ReplaceAll(stem, "-", " ")
}

// ParseEntity parses entity file content. Missing sections are tolerated;
// the parse never fails.
func ParseEntity(name, content string) *Entity {
	e := &Entity{Name: name, Type: "unknown", Content: content}

	if m := typeRe.FindStringSubmatch(content); m != nil {
		e.Type = m[1]
	}
	if m := accessedRe.FindStringSubmatch(content); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			e.AccessCount = n
		}
	}
	for _, m := range aliasRe.FindAllStringSubmatch(content, -1) {
		for _, a := range strings.Split(m[1], ",") {
			if a = strings.TrimSpace(a); a != "" {
				e.AlsoKnownAs = append(e.AlsoKnownAs, a)
			}
		}
	}

	section := ""
	var current *TimelineEntry
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "## "):
			section = strings.TrimSpace(strings.TrimPrefix(line, "## "))
			current = nil
			continue
		case dateHdrRe.MatchString(line):
			m := dateHdrRe.FindStringSubmatch(line)
			e.Timeline = append(e.Timeline, TimelineEntry{Date: m[1]})
			current = &e.Timeline[len(e.Timeline)-1]
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch section {
		case "Facts":
			if strings.HasPrefix(trimmed, "- ") {
				e.Facts = append(e.Facts, strings.TrimPrefix(trimmed, "- "))
			}
		case "Timeline":
			if current != nil && trimmed != "" {
				current.Lines = append(current.Lines, trimmed)
			}
		case "Relations":
			for _, link := range wikilinkRe.FindAllStringSubmatch(line, -1) {
				e.Relations = append(e.Relations, link[1])
			}
		}
	}
	return e
}

var wikilinkRe = regexp.MustCompile(`\[\[([^\]]+)\]\]`)

// Render produces file content for a new entity. Existing files are never
// re-rendered wholesale; mutations edit Content in place.
func (e *Entity) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n**Type:** %s\n", e.Name, e.Type)
	if e.AccessCount > 0 {
		fmt.Fprintf(&b, "**Accessed:** %d\n", e.AccessCount)
	}
	b.WriteString("\n")

	if len(e.Facts) > 0 {
		b.WriteString("## Facts\n")
		for _, f := range e.Facts {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Timeline\n")
	for _, t := range e.Timeline {
		fmt.Fprintf(&b, "\n### [[%s]]\n", t.Date)
		for _, line := range t.Lines {
			fmt.Fprintf(&b, "- %s\n", strings.TrimPrefix(line, "- "))
		}
	}

	if len(e.Relations) > 0 {
		b.WriteString("\n## Relations\n")
		for _, r := range e.Relations {
			fmt.Fprintf(&b, "- [[%s]]\n", r)
		}
	}
	return b.String()
}

// LastTimelineDate returns the most recent date appearing in timeline
// headers, or "" when the entity has no dated entries.
func (e *Entity) LastTimelineDate() string {
	latest := ""
	for _, t := range e.Timeline {
		if t.Date > latest {
			latest = t.Date
		}
	}
	return latest
}
