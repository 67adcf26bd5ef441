package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaClient implements Client against a local Ollama server.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
}

// NewOllamaClient creates a client for baseURL (typically
// "http://localhost:11434") and the given model.
func NewOllamaClient(baseURL, model string, temperature float64) *OllamaClient {
	return &OllamaClient{
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		client: &http.Client{
			Timeout: 300 * time.Second, // local models can be slow
		},
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete sends a prompt and returns the raw completion text.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := c.generate(ctx, prompt, "")
	if err != nil {
		return "", err
	}
	return result.Response, nil
}

// CompleteWithSchema requests JSON-formatted output and unmarshals it
// into schema.
func (c *OllamaClient) CompleteWithSchema(ctx context.Context, prompt string, schema any) error {
	result, err := c.generate(ctx, prompt, "json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(result.Response), schema); err != nil {
		return fmt.Errorf("unmarshal schema: %w (response: %s)", err, result.Response)
	}
	return nil
}

func (c *OllamaClient) generate(ctx context.Context, prompt, format string) (*ollamaGenerateResponse, error) {
	reqBody := ollamaGenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Format:  format,
		Options: &ollamaOptions{Temperature: c.temperature},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}
