package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a new engram workspace",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

const configTemplate = `# engram configuration
workspace: %s
memory_dir: memory
entities_dir: memory/entities
graph_file: memory/graph.jsonl
long_term_memory: MEMORY.md

extraction:
  provider: openai        # openai, ollama, compatible, lmstudio, vllm, groq
  model: gpt-4o-mini
  temperature: 0.1

decay:
  archive_after_days: 30
  stale_warning_days: 14
`

func runInit(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) == 1 {
		path = args[0]
	}
	workspace, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fmt.Printf("Initializing engram workspace at %s\n", workspace)

	if err := os.MkdirAll(filepath.Join(workspace, "memory", "entities"), 0o755); err != nil {
		return fmt.Errorf("create memory/entities: %w", err)
	}
	fmt.Println("  created memory/entities/")

	created, err := writeIfAbsent(filepath.Join(workspace, "engram.yaml"),
		fmt.Sprintf(configTemplate, workspace))
	if err != nil {
		return err
	}
	report(created, "engram.yaml")

	created, err = writeIfAbsent(filepath.Join(workspace, "MEMORY.md"), "# Long-term Memory\n\n")
	if err != nil {
		return err
	}
	report(created, "MEMORY.md")

	today := time.Now().Format("2006-01-02")
	created, err = writeIfAbsent(filepath.Join(workspace, "memory", today+".md"),
		fmt.Sprintf("# %s\n\n## Notes\n\n", today))
	if err != nil {
		return err
	}
	report(created, "memory/"+today+".md")

	fmt.Println("\nReady. Next steps:")
	fmt.Println("  1. Set your LLM key: export OPENAI_API_KEY=your-key")
	fmt.Printf("  2. Write notes in memory/%s.md\n", today)
	fmt.Println("  3. Run: engram extract")
	fmt.Println("  4. Query: engram recall \"topic\"")
	return nil
}

func writeIfAbsent(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func report(created bool, name string) {
	if created {
		fmt.Printf("  created %s\n", name)
	} else {
		fmt.Printf("  %s already exists\n", name)
	}
}
