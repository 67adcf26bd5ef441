package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mindgarden/engram/pkg/assemble"
)

var contextCmd = &cobra.Command{
	Use:   "context <query>",
	Short: "Assemble token-budget-aware context for a query",
	Args:  cobra.ExactArgs(1),
	RunE:  runContext,
}

func init() {
	rootCmd.AddCommand(contextCmd)
	contextCmd.Flags().Int("budget", 4000, "Token budget")
	contextCmd.Flags().Int("days", 2, "Recent daily logs to include")
	contextCmd.Flags().Int("max-entities", 10, "Max entities to load")
	contextCmd.Flags().Bool("manifest-only", false, "Only show manifest, not context")
}

func runContext(cmd *cobra.Command, args []string) error {
	e, err := openEngram()
	if err != nil {
		return err
	}

	budget, _ := cmd.Flags().GetInt("budget")
	days, _ := cmd.Flags().GetInt("days")
	maxEntities, _ := cmd.Flags().GetInt("max-entities")
	manifestOnly, _ := cmd.Flags().GetBool("manifest-only")

	opts := assemble.DefaultOptions()
	opts.TokenBudget = budget
	opts.RecentDays = days
	opts.MaxEntities = maxEntities

	result, err := e.Assemble(cmd.Context(), args[0], opts)
	if err != nil {
		return err
	}

	m := result.Manifest
	if manifestOnly {
		return json.NewEncoder(os.Stdout).Encode(m)
	}

	fmt.Println(result.Context)
	fmt.Println("\n--- Manifest ---")
	fmt.Printf("Tokens: %d/%d (%.0f%%)\n", m.TokensUsed, m.TokenBudget, m.Utilization*100)
	fmt.Printf("Loaded: %d sources\n", m.LoadedCount)
	if len(m.Skipped) > 0 {
		fmt.Printf("Skipped: %d sources\n", m.SkippedCount)
		for _, s := range m.Skipped {
			label := s.Name
			if label == "" {
				label = s.Date
			}
			fmt.Printf("  - %s: %s (%s)\n", s.Type, label, s.Reason)
		}
	}
	return nil
}
