package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Detect and merge duplicate entities",
	Long: `Detect duplicate entities via configured aliases, mutual references,
and graph neighborhood overlap. Without --auto, duplicates are only
reported; with --auto, the smaller file is merged into the larger one
and the merge is journaled.`,
	RunE: runDedup,
}

func init() {
	rootCmd.AddCommand(dedupCmd)
	dedupCmd.Flags().Bool("auto", false, "Merge detected duplicates automatically")
	dedupCmd.Flags().Bool("reconcile", false, "List merges that began but never finished")
}

func runDedup(cmd *cobra.Command, args []string) error {
	e, err := openEngram()
	if err != nil {
		return err
	}

	if reconcile, _ := cmd.Flags().GetBool("reconcile"); reconcile {
		unfinished, err := e.Dedup().Reconcile()
		if err != nil {
			return err
		}
		if len(unfinished) == 0 {
			fmt.Println("No unfinished merges.")
			return nil
		}
		fmt.Println("Unfinished merges:")
		for _, m := range unfinished {
			fmt.Println("  " + m)
		}
		return nil
	}

	auto, _ := cmd.Flags().GetBool("auto")
	report, err := e.RunDedup(cmd.Context(), auto)
	if err != nil {
		return err
	}
	if len(report) == 0 {
		fmt.Println("No duplicates detected.")
		return nil
	}
	for _, line := range report {
		fmt.Println(line)
	}
	return nil
}
