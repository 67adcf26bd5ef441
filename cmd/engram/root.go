package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mindgarden/engram/pkg/decay"
	"github.com/mindgarden/engram/pkg/engram"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "File-backed memory for AI agents",
	Long: `engram maintains a knowledge graph for AI agents on plain files:
markdown entity files, a JSONL triplet log, and daily notes.

Write notes in memory/YYYY-MM-DD.md, extract them into structured
memory, then recall entities or assemble token-budgeted context.

Examples:
  engram init
  engram extract --date 2026-08-28
  engram recall "Marcus"
  engram context "auth redesign" --budget 2000`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to engram.yaml config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed output")
}

// initConfig loads engram.yaml and the ENGRAM_* environment overrides.
// A missing config file is fine; every setting has a default.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("engram")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("ENGRAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

// loadConfig builds the engine configuration from viper.
func loadConfig() engram.Config {
	cfg := engram.Config{
		Workspace:      viper.GetString("workspace"),
		MemoryDir:      viper.GetString("memory_dir"),
		EntitiesDir:    viper.GetString("entities_dir"),
		GraphFile:      viper.GetString("graph_file"),
		LongTermMemory: viper.GetString("long_term_memory"),
		Provider:       viper.GetString("extraction.provider"),
		Model:          viper.GetString("extraction.model"),
		APIKey:         viper.GetString("extraction.api_key"),
		BaseURL:        viper.GetString("extraction.base_url"),
		Temperature:    viper.GetFloat64("extraction.temperature"),
		Decay: decay.Config{
			ArchiveAfterDays:   viper.GetInt("decay.archive_after_days"),
			StaleWarningDays:   viper.GetInt("decay.stale_warning_days"),
			MinTimelineEntries: viper.GetInt("decay.min_timeline_entries"),
			ProtectedTypes:     viper.GetStringSlice("decay.protected_types"),
		},
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.ApplyDefaults()
	return cfg
}

// openEngram constructs the engine from the loaded configuration.
func openEngram() (*engram.Engram, error) {
	e, err := engram.New(loadConfig())
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return e.WithLogger(logger), nil
}
