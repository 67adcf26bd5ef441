// Package engram provides a file-backed memory system for AI agents:
// markdown entity files, a JSONL knowledge graph, token-budgeted context
// assembly, and LLM-driven extraction from daily logs.
package engram

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/mindgarden/engram/pkg/assemble"
	"github.com/mindgarden/engram/pkg/decay"
	"github.com/mindgarden/engram/pkg/dedup"
	"github.com/mindgarden/engram/pkg/extraction"
	"github.com/mindgarden/engram/pkg/graph"
	"github.com/mindgarden/engram/pkg/llm"
	"github.com/mindgarden/engram/pkg/metrics"
	"github.com/mindgarden/engram/pkg/store"
)

// Config holds configuration for the memory system. All paths derive
// from Workspace unless set explicitly.
type Config struct {
	// Workspace is the root directory holding memory/ and MEMORY.md
	Workspace string

	// MemoryDir holds daily logs, the graph, and journals (default: Workspace/memory)
	MemoryDir string

	// EntitiesDir holds entity markdown files (default: MemoryDir/entities)
	EntitiesDir string

	// GraphFile is the JSONL triplet log (default: MemoryDir/graph.jsonl)
	GraphFile string

	// LongTermMemory is the curated summary file (default: Workspace/MEMORY.md)
	LongTermMemory string

	// Provider selects the LLM backend (default: "openai")
	Provider string

	// Model overrides the provider's default model
	Model string

	// APIKey authenticates against hosted providers
	APIKey string

	// BaseURL overrides the provider's endpoint
	BaseURL string

	// Temperature for extraction completions (default: 0)
	Temperature float64

	// Decay holds the lifecycle thresholds
	Decay decay.Config
}

// ApplyDefaults resolves unset fields from Workspace.
func (c *Config) ApplyDefaults() {
	if c.Workspace == "" {
		c.Workspace = "."
	}
	if c.MemoryDir == "" {
		c.MemoryDir = filepath.Join(c.Workspace, "memory")
	}
	if c.EntitiesDir == "" {
		c.EntitiesDir = filepath.Join(c.MemoryDir, "entities")
	}
	if c.GraphFile == "" {
		c.GraphFile = filepath.Join(c.MemoryDir, "graph.jsonl")
	}
	if c.LongTermMemory == "" {
		c.LongTermMemory = filepath.Join(c.Workspace, "MEMORY.md")
	}
	if c.Provider == "" {
		c.Provider = llm.ProviderOpenAI
	}
	if c.Decay.ArchiveAfterDays == 0 && c.Decay.StaleWarningDays == 0 {
		c.Decay = decay.DefaultConfig()
	}
}

// Engram is the main entry point for the memory system.
type Engram struct {
	config    Config
	store     *store.Store
	graph     *graph.Log
	assembler *assemble.Assembler
	decay     *decay.Engine
	dedup     *dedup.Engine
	client    llm.Client
	extractor *extraction.Extractor
	metrics   metrics.Collector
	logger    *slog.Logger
}

// New creates an Engram instance rooted at cfg.Workspace. The LLM client
// is constructed eagerly but only contacted by Extract.
func New(cfg Config) (*Engram, error) {
	cfg.ApplyDefaults()

	s, err := store.New(cfg.EntitiesDir)
	if err != nil {
		return nil, fmt.Errorf("init entity store: %w", err)
	}
	g := graph.NewLog(cfg.GraphFile)

	client, err := llm.NewProvider(cfg.Provider, llm.Options{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return nil, err
	}

	return &Engram{
		config:    cfg,
		store:     s,
		graph:     g,
		assembler: assemble.New(s, g, cfg.MemoryDir, cfg.LongTermMemory),
		decay:     decay.New(s, g, cfg.Decay),
		dedup:     dedup.New(s, g, cfg.MemoryDir),
		client:    client,
		extractor: extraction.New(s, g, client, cfg.MemoryDir),
		metrics:   metrics.NewNoopCollector(),
	}, nil
}

// WithMetrics sets the metrics collector.
func (e *Engram) WithMetrics(collector metrics.Collector) *Engram {
	if collector != nil {
		e.metrics = collector
	}
	return e
}

// WithLogger sets the logger, propagated to subsystems that report
// progress.
func (e *Engram) WithLogger(logger *slog.Logger) *Engram {
	e.logger = logger
	e.assembler.WithLogger(logger)
	e.extractor.WithLogger(logger)
	return e
}

// Config returns the resolved configuration.
func (e *Engram) Config() Config { return e.config }

// Store returns the entity store.
func (e *Engram) Store() *store.Store { return e.store }

// Graph returns the triplet log.
func (e *Engram) Graph() *graph.Log { return e.graph }

// Assembler returns the context assembler.
func (e *Engram) Assembler() *assemble.Assembler { return e.assembler }

// Decay returns the lifecycle engine.
func (e *Engram) Decay() *decay.Engine { return e.decay }

// Dedup returns the duplicate-detection engine.
func (e *Engram) Dedup() *dedup.Engine { return e.dedup }

// Client returns the configured LLM client.
func (e *Engram) Client() llm.Client { return e.client }

// Extract runs the extraction pipeline for one date (YYYY-MM-DD),
// recording operation metrics.
func (e *Engram) Extract(ctx context.Context, date string) (*extraction.Summary, error) {
	start := time.Now()
	summary, err := e.extractor.ExtractDate(ctx, date)
	e.record(ctx, "extract", start, err)
	if err == nil {
		e.recordStorageCounts(ctx)
	}
	return summary, err
}

// Assemble builds token-budgeted context for query, recording operation
// metrics.
func (e *Engram) Assemble(ctx context.Context, query string, opts assemble.Options) (*assemble.Result, error) {
	start := time.Now()
	result, err := e.assembler.Assemble(ctx, query, opts)
	e.record(ctx, "assemble", start, err)
	return result, err
}

// RunDecay executes one decay cycle, recording operation metrics and,
// after a live run, refreshed storage counts.
func (e *Engram) RunDecay(ctx context.Context, dryRun bool) ([]string, error) {
	start := time.Now()
	actions, err := e.decay.Run(dryRun)
	e.record(ctx, "decay", start, err)
	if err == nil && !dryRun {
		e.recordStorageCounts(ctx)
	}
	return actions, err
}

// RunDedup runs duplicate detection, recording operation metrics; with
// autoMerge the storage counts are refreshed afterwards.
func (e *Engram) RunDedup(ctx context.Context, autoMerge bool) ([]string, error) {
	start := time.Now()
	report, err := e.dedup.Run(autoMerge)
	e.record(ctx, "dedup", start, err)
	if err == nil && autoMerge {
		e.recordStorageCounts(ctx)
	}
	return report, err
}

// Reindex rebuilds the graph log from entity files, recording operation
// metrics and the resulting storage counts.
func (e *Engram) Reindex(ctx context.Context) (int, int, error) {
	start := time.Now()
	entities, triplets, err := e.graph.Reindex(e.store)
	e.record(ctx, "reindex", start, err)
	if err == nil {
		e.metrics.SetStorageCount(ctx, "entities", int64(entities))
		e.metrics.SetStorageCount(ctx, "triplets", int64(triplets))
	}
	return entities, triplets, err
}

func (e *Engram) record(ctx context.Context, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		e.metrics.RecordOperation(ctx, operation, "error", elapsed)
		e.metrics.RecordError(ctx, operation, ClassifyError(err))
		return
	}
	e.metrics.RecordOperation(ctx, operation, "success", elapsed)
}

// recordStorageCounts refreshes the entity and triplet gauges after a
// mutating operation. Best effort: listing failures leave the gauges as
// they were.
func (e *Engram) recordStorageCounts(ctx context.Context) {
	if entities, err := e.store.List(); err == nil {
		e.metrics.SetStorageCount(ctx, "entities", int64(len(entities)))
	}
	if triplets, err := e.graph.All(); err == nil {
		e.metrics.SetStorageCount(ctx, "triplets", int64(len(triplets)))
	}
}
