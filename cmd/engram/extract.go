package main

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract entities from daily logs",
	Long: `Extract entities, relationships, and events from daily log files
into the knowledge graph. Without flags, today's log is processed.`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringP("date", "d", "", "Specific date (YYYY-MM-DD)")
	extractCmd.Flags().Bool("all", false, "Process all daily files")
}

var dailyFileRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func runExtract(cmd *cobra.Command, args []string) error {
	e, err := openEngram()
	if err != nil {
		return err
	}

	all, _ := cmd.Flags().GetBool("all")
	date, _ := cmd.Flags().GetString("date")

	var dates []string
	switch {
	case all:
		dates, err = listDailyDates(e.Config().MemoryDir)
		if err != nil {
			return err
		}
	case date != "":
		dates = []string{date}
	default:
		dates = []string{time.Now().Format("2006-01-02")}
	}

	for _, d := range dates {
		summary, err := e.Extract(cmd.Context(), d)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d entities, %d triplets, %d events", d,
			summary.Entities, summary.Triplets, summary.Events)
		if len(summary.Created) > 0 {
			fmt.Printf(" (new: %s)", strings.Join(summary.Created, ", "))
		}
		fmt.Println()
	}
	return nil
}

func listDailyDates(memoryDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(memoryDir, "2*-*-*.md"))
	if err != nil {
		return nil, err
	}
	var dates []string
	for _, f := range files {
		stem := strings.TrimSuffix(filepath.Base(f), ".md")
		if dailyFileRe.MatchString(stem) {
			dates = append(dates, stem)
		}
	}
	sort.Strings(dates)
	if len(dates) == 0 {
		return nil, fmt.Errorf("no daily logs found in %s", memoryDir)
	}
	return dates, nil
}
