package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mindgarden/engram/pkg/graph"
	"github.com/mindgarden/engram/pkg/store"
)

// linkedSummaryLines bounds how much of each linked entity a recall
// includes; the top match gets its full file, neighbors get a glance.
const (
	maxLinkedEntities  = 5
	linkedSummaryLines = 8
)

// Match is one scored entity.
type Match struct {
	Score  float64
	Name   string
	Entity *store.Entity
}

// RankEntities scores every stored entity against query and returns
// matches above the noise floor, best first. The query is passed through
// the alias map before scoring. Name score comes from the fuzzy ladder;
// content match contributes a flat 0.5 (whole query present) or 0.1
// (any query word present), whichever side scores higher wins.
func RankEntities(s *store.Store, query string) ([]Match, string, error) {
	query = s.ResolveAlias(query)
	queryLower := strings.ToLower(query)
	queryWords := strings.Fields(queryLower)

	entities, err := s.List()
	if err != nil {
		return nil, query, err
	}

	var matches []Match
	for _, e := range entities {
		nameScore := Score(query, e.Name)

		contentLower := strings.ToLower(e.Content)
		contentScore := 0.0
		if strings.Contains(contentLower, queryLower) {
			contentScore = 0.5
		} else {
			for _, w := range queryWords {
				if len(w) >= 3 && strings.Contains(contentLower, w) {
					contentScore = 0.1
					break
				}
			}
		}

		score := nameScore
		if contentScore > score {
			score = contentScore
		}
		if score > 0.1 {
			matches = append(matches, Match{Score: score, Name: e.Name, Entity: e})
		}
	}

	// ties break by name descending, keeping top-match selection stable
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Name > matches[j].Name
	})
	return matches, query, nil
}

// Recall renders a query answer: the top-matching entity's full file,
// summaries of the entities it links to, and matching graph triplets.
// With no entity match it falls back to a graph-only answer.
func Recall(s *store.Store, g *graph.Log, query string, hops int) (string, error) {
	matches, resolved, err := RankEntities(s, query)
	if err != nil {
		return "", err
	}

	graphLines, err := g.Search(resolved)
	if err != nil {
		return "", err
	}

	var results []string
	if len(matches) == 0 {
		results = append(results, fmt.Sprintf("No entities found matching '%s'", resolved))
		if len(graphLines) > 0 {
			results = append(results, "\n**Graph matches:**")
			results = append(results, graphLines...)
		}
		return strings.Join(results, "\n"), nil
	}

	top := matches[0].Entity
	results = append(results, top.Content)

	if hops >= 1 {
		for _, link := range firstN(graph.ExtractWikilinks(top.Content), maxLinkedEntities) {
			linked, err := s.Read(link)
			if err != nil {
				continue
			}
			summary := firstLines(linked.Content, linkedSummaryLines)
			results = append(results, fmt.Sprintf("\n---\n**Linked: [[%s]]**", link), summary)
		}
	}

	if len(graphLines) > 0 {
		results = append(results, "\n---\n**Graph connections:**")
		results = append(results, graphLines...)
	}

	return strings.Join(results, "\n"), nil
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func firstLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
