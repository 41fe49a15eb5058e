package scanning

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	// DefaultMaxRetries is the number of retries applied to transient provider errors
	DefaultMaxRetries = 3
	// DefaultTimeoutMs bounds a single Extract call, retries included
	DefaultTimeoutMs = 30000
)

// ErrInvalidRequest is wrapped by every request validation error
var ErrInvalidRequest = errors.New("invalid ocr request")

// ValidationError describes one failed request constraint
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

// Request is the input to a single OCR attempt
type Request struct {
	FilePath   string   `json:"file_path"`
	Language   string   `json:"language,omitempty"` // optional hint, e.g. "en" or "de"
	MaxRetries int      `json:"max_retries"`
	TimeoutMs  int      `json:"timeout_ms"`
	Hints      []string `json:"hints,omitempty"`
}

// RequestOption customises a Request built by NewRequest
type RequestOption func(*Request)

// WithLanguage sets the expected document language
func WithLanguage(lang string) RequestOption {
	return func(r *Request) { r.Language = strings.TrimSpace(lang) }
}

// WithMaxRetries overrides the retry budget
func WithMaxRetries(n int) RequestOption {
	return func(r *Request) { r.MaxRetries = n }
}

// WithTimeoutMs overrides the timeout in milliseconds
func WithTimeoutMs(ms int) RequestOption {
	return func(r *Request) { r.TimeoutMs = ms }
}

// WithHints appends free-text extraction hints
func WithHints(hints ...string) RequestOption {
	return func(r *Request) {
		for _, h := range hints {
			if h = strings.TrimSpace(h); h != "" {
				r.Hints = append(r.Hints, h)
			}
		}
	}
}

// NewRequest builds a Request with default retry and timeout values
func NewRequest(path string, opts ...RequestOption) Request {
	r := Request{
		FilePath:   path,
		MaxRetries: DefaultMaxRetries,
		TimeoutMs:  DefaultTimeoutMs,
	}
	for _, o := range opts {
		o(&r)
	}
	return r
}

// Validate checks the request before any provider is contacted.
// All violations are reported, joined.
func (r Request) Validate() error {
	var errs []error

	switch info, err := os.Stat(r.FilePath); {
	case strings.TrimSpace(r.FilePath) == "":
		errs = append(errs, &ValidationError{Field: "file", Message: "file path is required"})
	case errors.Is(err, os.ErrNotExist):
		errs = append(errs, &ValidationError{Field: "file", Message: "file does not exist"})
	case err != nil:
		errs = append(errs, &ValidationError{Field: "file", Message: fmt.Sprintf("file is not accessible: %v", err)})
	case info.IsDir():
		errs = append(errs, &ValidationError{Field: "file", Message: "file is a directory"})
	case info.Size() == 0:
		errs = append(errs, &ValidationError{Field: "file", Message: "file is empty"})
	}

	if r.MaxRetries < 0 {
		errs = append(errs, &ValidationError{Field: "max_retries", Message: "must be non-negative"})
	}
	if r.TimeoutMs <= 0 {
		errs = append(errs, &ValidationError{Field: "timeout_ms", Message: "must be positive"})
	}

	return errors.Join(errs...)
}

// IsValid reports whether Validate passes
func (r Request) IsValid() bool {
	return r.Validate() == nil
}

// Timeout returns TimeoutMs as a duration
func (r Request) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}
