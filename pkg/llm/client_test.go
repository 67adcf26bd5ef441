package llm

import (
	"strings"
	"testing"
)

func TestNewProvider_Keys(t *testing.T) {
	tests := []struct {
		key         string
		wantBaseURL string
	}{
		{"openai", "https://api.openai.com/v1"},
		{"compatible", "http://localhost:1234/v1"},
		{"lmstudio", "http://localhost:1234/v1"},
		{"vllm", "http://localhost:8000/v1"},
		{"groq", "https://api.groq.com/openai/v1"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			c, err := NewProvider(tt.key, Options{APIKey: "k"})
			if err != nil {
				t.Fatalf("NewProvider(%q): %v", tt.key, err)
			}
			oc, ok := c.(*OpenAIClient)
			if !ok {
				t.Fatalf("NewProvider(%q) returned %T, want *OpenAIClient", tt.key, c)
			}
			if oc.BaseURL != tt.wantBaseURL {
				t.Errorf("base URL = %q, want %q", oc.BaseURL, tt.wantBaseURL)
			}
		})
	}
}

func TestNewProvider_Ollama(t *testing.T) {
	c, err := NewProvider("ollama", Options{Model: "mistral"})
	if err != nil {
		t.Fatalf("NewProvider(ollama): %v", err)
	}
	oc, ok := c.(*OllamaClient)
	if !ok {
		t.Fatalf("NewProvider(ollama) returned %T, want *OllamaClient", c)
	}
	if oc.model != "mistral" {
		t.Errorf("model = %q, want mistral", oc.model)
	}
	if oc.baseURL != "http://localhost:11434" {
		t.Errorf("baseURL = %q", oc.baseURL)
	}
}

func TestNewProvider_Overrides(t *testing.T) {
	c, err := NewProvider("groq", Options{Model: "llama-3.1-70b", BaseURL: "http://proxy:9999/v1"})
	if err != nil {
		t.Fatal(err)
	}
	oc := c.(*OpenAIClient)
	if oc.Model != "llama-3.1-70b" || oc.BaseURL != "http://proxy:9999/v1" {
		t.Errorf("overrides not applied: model=%q baseURL=%q", oc.Model, oc.BaseURL)
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider("telepathy", Options{})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), "telepathy") {
		t.Errorf("error should name the provider: %v", err)
	}
}
