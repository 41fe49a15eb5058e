package scanning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Registry holds the configured engines in registration order
type Registry struct {
	engines []Engine
	byName  map[string]Engine
}

// NewRegistry keeps every non-nil, available engine. Later engines with a duplicate name are ignored.
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{byName: make(map[string]Engine)}
	for _, e := range engines {
		if e == nil || !e.Available() {
			continue
		}
		if _, dup := r.byName[e.Name()]; dup {
			continue
		}
		r.engines = append(r.engines, e)
		r.byName[e.Name()] = e
	}
	return r
}

// Engines returns the engines in registration order
func (r *Registry) Engines() []Engine {
	out := make([]Engine, len(r.engines))
	copy(out, r.engines)
	return out
}

// Names returns the engine names in registration order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for _, e := range r.engines {
		names = append(names, e.Name())
	}
	return names
}

// Lookup finds an engine by name
func (r *Registry) Lookup(name string) (Engine, bool) {
	e, ok := r.byName[name]
	return e, ok
}

func (r *Registry) Len() int { return len(r.engines) }

func (r *Registry) Empty() bool { return len(r.engines) == 0 }

// Close releases engines that hold resources
func (r *Registry) Close() error {
	var errs []error
	for _, e := range r.engines {
		if c, ok := e.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", e.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Config carries the settings for every known provider
type Config struct {
	OpenAI OpenAIConfig
	Claude ClaudeConfig
	Gemini GeminiConfig
}

// NewRegistryFromConfig builds each provider whose key is set and not a placeholder
func NewRegistryFromConfig(ctx context.Context, cfg Config) (*Registry, error) {
	var engines []Engine

	if o, err := NewOpenAI(cfg.OpenAI); err == nil {
		engines = append(engines, o)
	} else if !errors.Is(err, ErrNotConfigured) {
		return nil, err
	}

	if c, err := NewClaude(cfg.Claude); err == nil {
		engines = append(engines, c)
	} else if !errors.Is(err, ErrNotConfigured) {
		return nil, err
	}

	if g, err := NewGemini(ctx, cfg.Gemini); err == nil {
		engines = append(engines, g)
	} else if !errors.Is(err, ErrNotConfigured) {
		return nil, err
	}

	r := NewRegistry(engines...)
	if r.Empty() {
		slog.Warn("No OCR engine configured; documents can be ingested but not scanned")
	} else {
		slog.Info("OCR engines configured", "engines", r.Names())
	}
	return r, nil
}
