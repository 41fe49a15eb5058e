package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/billbox/internal/export"
	"github.com/zombor/billbox/internal/inbox"
	"github.com/zombor/billbox/internal/intake"
	"github.com/zombor/billbox/internal/receipt"
	"github.com/zombor/billbox/internal/scanning"
	"github.com/zombor/billbox/internal/server"
	"github.com/zombor/billbox/internal/sqlstore"
)

const (
	defaultOCRTimeout = 30 * time.Second
	defaultSettle     = 2 * time.Second
)

type config struct {
	dbPath         string
	store          string
	inboxDir       string
	attachmentsDir string
	userID         string
	currency       string
	logFormat      string
	logLevel       string

	openAIKey      string
	openAIModel    string
	openAIURL      string
	anthropicKey   string
	anthropicModel string
	anthropicURL   string
	geminiKey      string
	geminiModel    string
	ocrTimeout     time.Duration
	ocrRetries     int
	ocrRPS         float64
	language       string

	port     int
	authUser string
	authPass string
	watch    bool
	settle   time.Duration

	scan bool

	out            string
	from           string
	to             string
	includeRemoved bool
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// keyOr falls back to a provider's conventional environment variable
func keyOr(flagValue, envVar string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(envVar)
}

func (c *config) scanningConfig() scanning.Config {
	return scanning.Config{
		OpenAI: scanning.OpenAIConfig{
			APIKey:            keyOr(c.openAIKey, "OPENAI_API_KEY"),
			Model:             c.openAIModel,
			BaseURL:           c.openAIURL,
			RequestsPerSecond: c.ocrRPS,
		},
		Claude: scanning.ClaudeConfig{
			APIKey:            keyOr(c.anthropicKey, "ANTHROPIC_API_KEY"),
			Model:             c.anthropicModel,
			BaseURL:           c.anthropicURL,
			RequestsPerSecond: c.ocrRPS,
		},
		Gemini: scanning.GeminiConfig{
			APIKey:            keyOr(c.geminiKey, "GEMINI_API_KEY"),
			Model:             c.geminiModel,
			RequestsPerSecond: c.ocrRPS,
		},
	}
}

func (c *config) requestOptions() []scanning.RequestOption {
	opts := []scanning.RequestOption{
		scanning.WithTimeoutMs(int(c.ocrTimeout / time.Millisecond)),
		scanning.WithMaxRetries(c.ocrRetries),
	}
	if c.language != "" {
		opts = append(opts, scanning.WithLanguage(c.language))
	}
	return opts
}

// stores holds both repositories over one underlying database
type stores struct {
	inbox   inbox.Store
	records receipt.DB
	close   func() error
}

func openStores(kind, path string) (stores, error) {
	switch kind {
	case "bolt", "":
		db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
		if err != nil {
			return stores{}, fmt.Errorf("opening bolt database: %w", err)
		}
		items, err := inbox.NewBoltStoreFromDB(db)
		if err != nil {
			db.Close()
			return stores{}, err
		}
		records, err := receipt.NewBoltDBFromDB(db)
		if err != nil {
			db.Close()
			return stores{}, err
		}
		return stores{inbox: items, records: records, close: db.Close}, nil
	case "sqlite":
		db, err := sqlstore.Open(path)
		if err != nil {
			return stores{}, err
		}
		return stores{inbox: sqlstore.NewInboxStore(db), records: sqlstore.NewRecordDB(db), close: db.Close}, nil
	}
	return stores{}, fmt.Errorf("unknown store %q: must be bolt or sqlite", kind)
}

// app is the wired set of services every command works from
type app struct {
	stores  stores
	engines *scanning.Registry
	storage *intake.LocalStorage
	records *receipt.Service
	inbox   *inbox.Service
	intake  *intake.Service
}

func newApp(ctx context.Context, cfg *config) (*app, error) {
	slog.Info("Initializing database...", "store", cfg.store, "path", cfg.dbPath)
	st, err := openStores(cfg.store, cfg.dbPath)
	if err != nil {
		return nil, err
	}

	engines, err := scanning.NewRegistryFromConfig(ctx, cfg.scanningConfig())
	if err != nil {
		st.close()
		return nil, fmt.Errorf("configuring ocr engines: %w", err)
	}

	storage, err := intake.NewLocalStorage(cfg.attachmentsDir)
	if err != nil {
		engines.Close()
		st.close()
		return nil, err
	}

	records := receipt.NewService(st.records)
	return &app{
		stores:  st,
		engines: engines,
		storage: storage,
		records: records,
		inbox: inbox.NewService(st.inbox, engines, records,
			inbox.WithRequestOptions(cfg.requestOptions()...),
			inbox.WithDefaultCurrency(cfg.currency),
		),
		intake: intake.NewService(st.inbox, storage),
	}, nil
}

func (a *app) Close() {
	if err := a.engines.Close(); err != nil {
		slog.Error("Failed to close OCR engines", "error", err)
	}
	if err := a.stores.close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}

func runServe(ctx context.Context, cfg *config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if n, err := a.inbox.Recover(); err != nil {
		return fmt.Errorf("recovering interrupted items: %w", err)
	} else if n > 0 {
		slog.Warn("Recovered interrupted items", "count", n)
	}

	if err := os.MkdirAll(cfg.inboxDir, 0o755); err != nil {
		return fmt.Errorf("creating inbox directory: %w", err)
	}

	if cfg.watch {
		go func() {
			err := a.intake.Watch(ctx, intake.WatchConfig{
				Root:        cfg.inboxDir,
				UserID:      cfg.userID,
				Settle:      cfg.settle,
				InitialScan: true,
			})
			if err != nil {
				slog.Error("Watcher stopped", "error", err)
			}
		}()
	}

	srv := server.NewServer(server.Deps{
		Inbox:     a.inbox,
		Intake:    a.intake,
		Records:   a.records,
		Engines:   a.engines,
		UploadDir: cfg.inboxDir,
	}, server.BasicAuth{Username: cfg.authUser, Password: cfg.authPass})

	if cfg.authUser != "" || cfg.authPass != "" {
		slog.Info("Basic auth enabled", "user", cfg.authUser)
	}
	return srv.Start(ctx, fmt.Sprintf(":%d", cfg.port))
}

func runIngest(ctx context.Context, cfg *config, dir string) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.intake.ProcessDirectory(dir, cfg.userID)
	if err != nil {
		return err
	}
	slog.Info("Ingest finished", "scanned", stats.Scanned, "created", stats.Created,
		"duplicates", stats.Duplicates, "not_ready", stats.NotReady, "failed", stats.Failed)

	if !cfg.scan {
		return nil
	}
	return scanPending(ctx, a.inbox, cfg.userID)
}

// scanPending runs OCR over every CREATED item, one at a time
func scanPending(ctx context.Context, svc *inbox.Service, userID string) error {
	items, err := svc.List(inbox.StatusCreated, userID)
	if err != nil {
		return fmt.Errorf("listing pending items: %w", err)
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := svc.Submit(ctx, item.ID, ""); err != nil {
			slog.Error("Failed to scan item", "id", item.ID, "error", err)
		}
	}
	return nil
}

func runExport(cfg *config) error {
	st, err := openStores(cfg.store, cfg.dbPath)
	if err != nil {
		return err
	}
	defer st.close()

	opts := export.Options{UserID: cfg.userID, IncludeRemoved: cfg.includeRemoved}
	if opts.From, err = parseDay(cfg.from); err != nil {
		return err
	}
	if opts.To, err = parseDay(cfg.to); err != nil {
		return err
	}

	data, err := export.Workbook(receipt.NewService(st.records), opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfg.out, data, 0o644); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	slog.Info("Export written", "path", cfg.out, "bytes", len(data))
	return nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return d, nil
}
