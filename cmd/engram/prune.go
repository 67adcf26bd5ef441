package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mindgarden/engram/pkg/engram"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Archive stale entities, show what's going cold",
	RunE:  runPrune,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <entity>",
	Short: "Restore an archived entity",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

func init() {
	rootCmd.AddCommand(pruneCmd, restoreCmd)
	pruneCmd.Flags().Bool("dry-run", false, "Show what would be archived")
	pruneCmd.Flags().Int("days", 0, "Archive after N days inactive (overrides config)")
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if days, _ := cmd.Flags().GetInt("days"); days > 0 {
		cfg.Decay.ArchiveAfterDays = days
	}
	e, err := engram.New(cfg)
	if err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	actions, err := e.RunDecay(cmd.Context(), dryRun)
	if err != nil {
		return err
	}
	for _, action := range actions {
		fmt.Println(action)
	}
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	e, err := openEngram()
	if err != nil {
		return err
	}
	result, err := e.Decay().Restore(args[0])
	if err != nil {
		return err
	}
	fmt.Println(result)
	return nil
}
