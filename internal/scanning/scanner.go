package scanning

import (
	"context"
	"errors"
	"strings"
)

// ErrNotConfigured is returned by engine constructors when no usable credential is present
var ErrNotConfigured = errors.New("ocr engine not configured")

// Engine defines the interface for OCR back-ends
type Engine interface {
	// Name identifies the engine, e.g. "openai"
	Name() string
	// Available reports whether the engine holds a usable credential
	Available() bool
	// Extract reads a document. Provider and network errors are returned as Failure, never panics.
	Extract(ctx context.Context, req Request) Result
}

var placeholderKeys = map[string]struct{}{
	"changeme":      {},
	"change-me":     {},
	"placeholder":   {},
	"dummy":         {},
	"none":          {},
	"null":          {},
	"todo":          {},
	"xxx":           {},
	"sk-xxx":        {},
	"sk-...":        {},
	"your-api-key":  {},
	"your_api_key":  {},
	"api-key-here":  {},
	"insert-key":    {},
	"replace-me":    {},
	"<api-key>":     {},
	"${api_key}":    {},
	"your-key-here": {},
}

// IsPlaceholderKey reports whether key is empty or a well-known template value
func IsPlaceholderKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return true
	}
	if _, ok := placeholderKeys[k]; ok {
		return true
	}
	if strings.HasPrefix(k, "your-") || strings.HasPrefix(k, "your_") {
		return true
	}
	return strings.HasPrefix(k, "<") && strings.HasSuffix(k, ">")
}
