package engram

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"strings"

	"github.com/mindgarden/engram/pkg/extraction"
	"github.com/mindgarden/engram/pkg/store"
)

// Error type constants for classification
const (
	ErrTypeNotFound   = "not_found"
	ErrTypeConflict   = "conflict"
	ErrTypeTimeout    = "timeout"
	ErrTypeProvider   = "provider"
	ErrTypeValidation = "validation"
	ErrTypeIO         = "io"
	ErrTypeUnknown    = "unknown"
)

// ClassifyError inspects an error and returns its type classification.
// This enables grouping errors by category in metrics and logs.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	// Sentinel errors first: they survive wrapping
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, extraction.ErrNoDailyLog) {
		return ErrTypeNotFound
	}
	if errors.Is(err, store.ErrConflict) {
		return ErrTypeConflict
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTypeTimeout
	}

	errStrLower := strings.ToLower(err.Error())

	if strings.Contains(errStrLower, "timeout") || strings.Contains(errStrLower, "deadline exceeded") {
		return ErrTypeTimeout
	}

	// Provider errors: anything the LLM backends produce
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return ErrTypeProvider
	}
	if strings.Contains(errStrLower, "api error") ||
		strings.Contains(errStrLower, "rate limit") ||
		strings.Contains(errStrLower, "llm") ||
		strings.Contains(errStrLower, "ollama") ||
		strings.Contains(errStrLower, "http 4") ||
		strings.Contains(errStrLower, "http 5") ||
		strings.Contains(errStrLower, "connection refused") ||
		strings.Contains(errStrLower, "no such host") ||
		strings.Contains(errStrLower, "failed after") {
		return ErrTypeProvider
	}

	// Filesystem errors from the workspace
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return ErrTypeIO
	}
	if strings.Contains(errStrLower, "permission denied") ||
		strings.Contains(errStrLower, "no such file") ||
		strings.Contains(errStrLower, "read-only") {
		return ErrTypeIO
	}

	if strings.Contains(errStrLower, "unmarshal") ||
		strings.Contains(errStrLower, "invalid") ||
		strings.Contains(errStrLower, "malformed") ||
		strings.Contains(errStrLower, "required") ||
		strings.Contains(errStrLower, "cannot be empty") ||
		strings.Contains(errStrLower, "must be") {
		return ErrTypeValidation
	}

	return ErrTypeUnknown
}
