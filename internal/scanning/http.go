package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

// retryBackoff is multiplied by the attempt number between retries
var retryBackoff = 500 * time.Millisecond

// APIError is a non-2xx response from a provider
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api request failed with status %d: %s", e.StatusCode, e.Body)
}

// call performs one provider round trip and returns the model's text plus the raw response body
type call func(ctx context.Context, p page, prompt string) (text string, raw []byte, err error)

// newLimiter returns a limiter allowing rps requests per second; rps <= 0 disables throttling
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// extract runs the shared Extract pipeline: validate, load, call with retries, parse
func extract(ctx context.Context, engine string, limiter *rate.Limiter, req Request, do call) Result {
	start := time.Now()
	fail := func(msg string, raw []byte) Result {
		f := NewFailure(msg, raw, time.Since(start))
		f.Engine = engine
		return f
	}

	if err := req.Validate(); err != nil {
		return fail(err.Error(), nil)
	}

	ctx, cancel := context.WithTimeout(ctx, req.Timeout())
	defer cancel()

	p, err := loadPage(req.FilePath)
	if err != nil {
		return fail(err.Error(), nil)
	}
	prompt := buildPrompt(req)

	var (
		text string
		raw  []byte
	)
	for attempt := 0; attempt <= req.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
			if ctx.Err() != nil {
				break
			}
		}
		if err = limiter.Wait(ctx); err != nil {
			break
		}

		text, raw, err = do(ctx, p, prompt)
		if err == nil || !isRetryable(err) || ctx.Err() != nil {
			break
		}
		slog.Warn("Retrying OCR request", "engine", engine, "attempt", attempt+1, "error", err)
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fail(fmt.Sprintf("timed out after %dms: %v", req.TimeoutMs, err), raw)
		}
		return fail(err.Error(), raw)
	}

	ex, err := parseExtraction(text)
	if err != nil {
		return fail(fmt.Sprintf("parsing response: %v", err), raw)
	}

	s := NewSuccess(ex, raw, time.Since(start))
	s.Engine = engine
	return s
}

// postJSON sends body as JSON and returns the response body; non-2xx becomes *APIError
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return respBody, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}

// isRetryable reports whether err is transient: rate limits, server errors, overload or network trouble
func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection reset by peer", "connection refused", "temporary failure", "network is unreachable", "overloaded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
