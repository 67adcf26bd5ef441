package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mindgarden/engram/pkg/search"
)

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Query the knowledge graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecall,
}

func init() {
	rootCmd.AddCommand(recallCmd)
	recallCmd.Flags().Int("hops", 1, "Graph traversal depth")
}

func runRecall(cmd *cobra.Command, args []string) error {
	e, err := openEngram()
	if err != nil {
		return err
	}
	hops, _ := cmd.Flags().GetInt("hops")

	result, err := search.Recall(e.Store(), e.Graph(), args[0], hops)
	if err != nil {
		return err
	}
	fmt.Println(result)

	// Reinforce the top match so decay sees the access
	matches, _, err := search.RankEntities(e.Store(), args[0])
	if err == nil && len(matches) > 0 {
		_ = e.Decay().IncrementAccess(matches[0].Name)
	}
	return nil
}
