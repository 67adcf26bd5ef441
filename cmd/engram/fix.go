package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mindgarden/engram/pkg/store"
)

var fixCmd = &cobra.Command{
	Use:   "fix {type|name|add-fact|rm-fact} <entity> <value>",
	Short: "Correct entity data without re-extracting",
	Long: `Correct entity data in place: reclassify, rename, or edit facts.

Examples:
  engram fix type "Greptile" tool
  engram fix name "Marcus" "Marcus Chen"
  engram fix add-fact "Marcus Chen" "Prefers async communication"
  engram fix rm-fact "Marcus Chen" "Works at Initech"`,
	Args: cobra.ExactArgs(3),
	RunE: runFix,
}

func init() {
	rootCmd.AddCommand(fixCmd)
}

func runFix(cmd *cobra.Command, args []string) error {
	e, err := openEngram()
	if err != nil {
		return err
	}
	result, err := applyFix(e.Store(), args[0], args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Println(result)
	return nil
}

// applyFix dispatches one fix action. A missing entity comes back as a
// message rather than an error, so the CLI reports it without aborting.
func applyFix(s *store.Store, action, entity, value string) (string, error) {
	var result string
	var err error
	switch action {
	case "type":
		result, err = s.SetType(entity, value)
	case "name":
		result, err = s.Rename(entity, value)
	case "add-fact":
		result, err = s.AddFact(entity, value)
	case "rm-fact":
		result, err = s.RemoveFact(entity, value)
	default:
		return "", fmt.Errorf("unknown fix action %q (want type, name, add-fact, or rm-fact)", action)
	}
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("Entity '%s' not found", entity), nil
	}
	return result, err
}
