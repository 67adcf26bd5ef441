package engram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/mindgarden/engram/pkg/extraction"
	"github.com/mindgarden/engram/pkg/store"
)

func TestClassifyError_NotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"store sentinel", store.ErrNotFound},
		{"wrapped store sentinel", fmt.Errorf("entity %q: %w", "Marcus", store.ErrNotFound)},
		{"missing daily log", fmt.Errorf("2026-01-01: %w", extraction.ErrNoDailyLog)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != ErrTypeNotFound {
				t.Errorf("ClassifyError() = %v, want %v", got, ErrTypeNotFound)
			}
		})
	}
}

func TestClassifyError_Conflict(t *testing.T) {
	err := fmt.Errorf("entity %q: %w", "Marcus Chen", store.ErrConflict)
	if got := ClassifyError(err); got != ErrTypeConflict {
		t.Errorf("ClassifyError() = %v, want %v", got, ErrTypeConflict)
	}
}

func TestClassifyError_Timeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"context deadline", context.DeadlineExceeded},
		{"wrapped deadline", fmt.Errorf("extract: %w", context.DeadlineExceeded)},
		{"string timeout", fmt.Errorf("operation timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != ErrTypeTimeout {
				t.Errorf("ClassifyError() = %v, want %v", got, ErrTypeTimeout)
			}
		})
	}
}

func TestClassifyError_Provider(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"api error", fmt.Errorf("API error: insufficient quota")},
		{"rate limit", fmt.Errorf("rate limit exceeded")},
		{"retries exhausted", fmt.Errorf("failed after 3 retries: HTTP 503")},
		{"ollama", fmt.Errorf("ollama returned 500: out of memory")},
		{"connection refused", fmt.Errorf("connection refused")},
		{"net.OpError", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != ErrTypeProvider {
				t.Errorf("ClassifyError() = %v, want %v for error: %v", got, ErrTypeProvider, tt.err)
			}
		})
	}
}

func TestClassifyError_Validation(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unmarshal", fmt.Errorf("unmarshal llm response: unexpected end of JSON input")},
		{"invalid input", fmt.Errorf("invalid date format")},
		{"cannot be empty", fmt.Errorf("query cannot be empty")},
		{"must be", fmt.Errorf("budget must be positive")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != ErrTypeValidation {
				t.Errorf("ClassifyError() = %v, want %v", got, ErrTypeValidation)
			}
		})
	}
}

func TestClassifyError_IO(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"permission denied", fmt.Errorf("open memory/graph.jsonl: permission denied")},
		{"read-only fs", fmt.Errorf("write temp file: read-only file system")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != ErrTypeIO {
				t.Errorf("ClassifyError() = %v, want %v", got, ErrTypeIO)
			}
		})
	}
}

func TestClassifyError_Unknown(t *testing.T) {
	err := fmt.Errorf("some random error")
	if got := ClassifyError(err); got != ErrTypeUnknown {
		t.Errorf("ClassifyError() = %v, want %v", got, ErrTypeUnknown)
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if got := ClassifyError(nil); got != "" {
		t.Errorf("ClassifyError(nil) = %v, want empty string", got)
	}
}
