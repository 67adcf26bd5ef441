package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show workspace statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	e, err := openEngram()
	if err != nil {
		return err
	}

	entities, err := e.Store().List()
	if err != nil {
		return err
	}
	triplets, err := e.Graph().All()
	if err != nil {
		return err
	}
	dates, _ := listDailyDates(e.Config().MemoryDir)

	fmt.Println("engram stats")
	fmt.Printf("  Entities:      %d\n", len(entities))
	fmt.Printf("  Triplets:      %d\n", len(triplets))
	fmt.Printf("  Daily files:   %d\n", len(dates))
	fmt.Printf("  Workspace:     %s\n", e.Config().Workspace)

	if len(entities) == 0 {
		return nil
	}

	types := map[string]int{}
	for _, ent := range entities {
		t := ent.Type
		if t == "" {
			t = "unknown"
		}
		types[t]++
	}
	names := make([]string, 0, len(types))
	for t := range types {
		names = append(names, t)
	}
	// most common first, name as tiebreak
	sort.Slice(names, func(i, j int) bool {
		if types[names[i]] != types[names[j]] {
			return types[names[i]] > types[names[j]]
		}
		return names[i] < names[j]
	})

	fmt.Println("\n  Entity types:")
	for _, t := range names {
		fmt.Printf("    %s: %d\n", t, types[t])
	}
	return nil
}
