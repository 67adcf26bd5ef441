package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the graph from entity files (after manual edits)",
	RunE:  runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	e, err := openEngram()
	if err != nil {
		return err
	}

	fmt.Println("Reindexing graph from entity files...")
	entities, triplets, err := e.Reindex(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("  scanned %d entities\n", entities)
	fmt.Printf("  found %d relationships\n", triplets)
	if _, err := os.Stat(e.Graph().Path() + ".bak"); err == nil {
		fmt.Println("  old graph backed up to graph.jsonl.bak")
	}
	fmt.Println("Graph rebuilt.")
	return nil
}
