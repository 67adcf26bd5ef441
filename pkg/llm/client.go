// Package llm provides completion clients for the extraction pipeline:
// an OpenAI-compatible backend (OpenAI itself, LM Studio, vLLM, Groq,
// any conforming endpoint) and a native Ollama backend.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Client is the completion boundary. Implementations must be safe for
// concurrent use.
type Client interface {
	// Complete sends a prompt and returns the raw completion text.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithSchema sends a prompt expecting a JSON response and
	// unmarshals it into schema (a pointer to the target struct).
	CompleteWithSchema(ctx context.Context, prompt string, schema any) error
}

// Options configures a provider built by NewProvider. Zero values take
// provider-specific defaults.
type Options struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
}

// Provider keys accepted by NewProvider. The compatible aliases all
// speak the OpenAI chat-completions dialect and differ only in default
// base URL.
const (
	ProviderOpenAI     = "openai"
	ProviderOllama     = "ollama"
	ProviderCompatible = "compatible"
	ProviderLMStudio   = "lmstudio"
	ProviderVLLM       = "vllm"
	ProviderGroq       = "groq"
)

var compatibleBaseURLs = map[string]string{
	ProviderCompatible: "http://localhost:1234/v1",
	ProviderLMStudio:   "http://localhost:1234/v1",
	ProviderVLLM:       "http://localhost:8000/v1",
	ProviderGroq:       "https://api.groq.com/openai/v1",
}

// NewProvider builds a client for the named provider key.
func NewProvider(provider string, opts Options) (Client, error) {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		c := NewOpenAIClient(opts.APIKey)
		if opts.Model != "" {
			c.Model = opts.Model
		}
		if opts.BaseURL != "" {
			c.BaseURL = opts.BaseURL
		}
		c.Temperature = opts.Temperature
		return c, nil

	case ProviderCompatible, ProviderLMStudio, ProviderVLLM, ProviderGroq:
		c := NewOpenAIClient(opts.APIKey)
		c.BaseURL = compatibleBaseURLs[strings.ToLower(provider)]
		if opts.BaseURL != "" {
			c.BaseURL = opts.BaseURL
		}
		c.Model = "default"
		if opts.Model != "" {
			c.Model = opts.Model
		}
		c.Temperature = opts.Temperature
		return c, nil

	case ProviderOllama:
		baseURL := opts.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := opts.Model
		if model == "" {
			model = "llama3.2"
		}
		return NewOllamaClient(baseURL, model, opts.Temperature), nil

	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
