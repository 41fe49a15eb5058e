package scanning

import (
	"encoding/json"
	"strings"
	"time"
)

var emptyRaw = json.RawMessage(`{}`)

// Extraction holds the structured fields read from a document.
// Every field is optional; providers often miss one or more of them.
type Extraction struct {
	Provider   *string    `json:"provider,omitempty"`
	Amount     *float64   `json:"amount,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
	Currency   *string    `json:"currency,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
}

// Result is the outcome of one Extract call: either Success or Failure
type Result interface {
	Succeeded() bool
	ErrorMessage() string
	RawJSON() json.RawMessage
	Elapsed() time.Duration
	EngineName() string

	sealed()
}

// Success carries the extracted fields and the provider's raw payload
type Success struct {
	Extraction
	Engine   string          `json:"engine"`
	Raw      json.RawMessage `json:"raw"`
	Duration time.Duration   `json:"duration"`
}

// Failure carries the reason an attempt failed
type Failure struct {
	Message  string          `json:"message"`
	Engine   string          `json:"engine"`
	Raw      json.RawMessage `json:"raw"`
	Duration time.Duration   `json:"duration"`
}

// NewSuccess builds a successful result. A missing or malformed raw payload becomes {}.
func NewSuccess(ex Extraction, raw []byte, d time.Duration) Success {
	return Success{Extraction: ex, Raw: normalizeRaw(raw), Duration: d}
}

// NewFailure builds a failed result. The message is mandatory; an empty one is replaced.
func NewFailure(message string, raw []byte, d time.Duration) Failure {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "unknown ocr failure"
	}
	return Failure{Message: message, Raw: normalizeRaw(raw), Duration: d}
}

func (s Success) Succeeded() bool          { return true }
func (s Success) ErrorMessage() string     { return "" }
func (s Success) RawJSON() json.RawMessage { return normalizeRaw(s.Raw) }
func (s Success) Elapsed() time.Duration   { return s.Duration }
func (s Success) EngineName() string       { return s.Engine }
func (Success) sealed()                    {}

func (f Failure) Succeeded() bool          { return false }
func (f Failure) ErrorMessage() string     { return f.Message }
func (f Failure) RawJSON() json.RawMessage { return normalizeRaw(f.Raw) }
func (f Failure) Elapsed() time.Duration   { return f.Duration }
func (f Failure) EngineName() string       { return f.Engine }
func (Failure) sealed()                    {}

func normalizeRaw(raw []byte) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return emptyRaw
	}
	return json.RawMessage(raw)
}
