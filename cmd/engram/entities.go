package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List all known entities",
	RunE:  runEntities,
}

func init() {
	rootCmd.AddCommand(entitiesCmd)
	entitiesCmd.Flags().Bool("json", false, "Output as JSON")
}

type entitySummary struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	TimelineEntries int    `json:"timeline_entries"`
}

func runEntities(cmd *cobra.Command, args []string) error {
	e, err := openEngram()
	if err != nil {
		return err
	}

	entities, err := e.Store().List()
	if err != nil {
		return err
	}

	summaries := make([]entitySummary, 0, len(entities))
	for _, ent := range entities {
		t := ent.Type
		if t == "" {
			t = "unknown"
		}
		summaries = append(summaries, entitySummary{
			Name:            ent.Name,
			Type:            t,
			TimelineEntries: len(ent.Timeline),
		})
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	byType := map[string][]entitySummary{}
	for _, s := range summaries {
		byType[s.Type] = append(byType[s.Type], s)
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, t := range types {
		items := byType[t]
		fmt.Printf("\n%s (%d)\n", strings.ToUpper(t), len(items))
		for _, item := range items {
			fmt.Printf("  %s (%d entries)\n", item.Name, item.TimelineEntries)
		}
	}
	return nil
}
