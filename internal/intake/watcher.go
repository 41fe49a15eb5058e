package intake

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig configures Watch
type WatchConfig struct {
	Root   string
	UserID string
	// Settle is how long a file must stay quiet before it is ingested
	Settle time.Duration
	// InitialScan ingests files already present when watching starts
	InitialScan bool
	// OnOutcome, if set, is called after each processed file
	OnOutcome func(path string, out Outcome, err error)
}

// Watch ingests files dropped into cfg.Root until ctx is cancelled.
// Events are debounced per path and processed one at a time on the calling goroutine.
func (s *Service) Watch(ctx context.Context, cfg WatchConfig) error {
	if cfg.Settle <= 0 {
		cfg.Settle = 500 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(cfg.Root); err != nil {
		return fmt.Errorf("watching %s: %w", cfg.Root, err)
	}
	slog.Info("Watching inbox directory", "root", cfg.Root)

	if cfg.InitialScan {
		stats, err := s.ProcessDirectory(cfg.Root, cfg.UserID)
		if err != nil {
			slog.Error("Initial inbox scan failed", "root", cfg.Root, "error", err)
		} else {
			slog.Info("Initial inbox scan finished", "created", stats.Created, "duplicates", stats.Duplicates, "not_ready", stats.NotReady, "failed", stats.Failed)
		}
	}

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(cfg.Settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if strings.HasPrefix(filepath.Base(e.Name), ".") {
				continue
			}
			if e.Has(fsnotify.Create) || e.Has(fsnotify.Write) {
				pending[e.Name] = time.Now()
			}
			if e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename) {
				delete(pending, e.Name)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("Watcher error", "error", err)

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < cfg.Settle {
					continue
				}
				delete(pending, path)

				out, err := s.Process(path, cfg.UserID)
				if err != nil {
					slog.Error("Failed to ingest file", "path", path, "error", err)
				}
				if cfg.OnOutcome != nil {
					cfg.OnOutcome(path, out, err)
				}
			}
		}
	}
}
