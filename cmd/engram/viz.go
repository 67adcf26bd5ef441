package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var vizCmd = &cobra.Command{
	Use:   "viz",
	Short: "Visualize the knowledge graph as Mermaid",
	RunE:  runViz,
}

func init() {
	rootCmd.AddCommand(vizCmd)
}

// mermaidID makes an entity name safe as a Mermaid node identifier.
func mermaidID(name string) string {
	return strings.NewReplacer(" ", "_", "#", "Nr", ".", "").Replace(name)
}

func runViz(cmd *cobra.Command, args []string) error {
	e, err := openEngram()
	if err != nil {
		return err
	}

	if _, err := os.Stat(e.Graph().Path()); err != nil {
		fmt.Println("No graph data yet. Run 'engram extract' first.")
		return nil
	}

	triplets, err := e.Graph().All()
	if err != nil {
		return err
	}

	seen := map[string]bool{}
	fmt.Println("graph LR")
	for _, t := range triplets {
		s := mermaidID(t.Subject)
		o := mermaidID(t.Object)
		key := s + "-" + t.Predicate + "-" + o
		if seen[key] {
			continue
		}
		seen[key] = true
		fmt.Printf("    %s -->|%s| %s\n", s, t.Predicate, o)
	}
	return nil
}
