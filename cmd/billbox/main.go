package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &config{}
	root := newCommand(cfg)
	if err := root.Parse(os.Args[1:], ff.WithEnvVarPrefix("BILLBOX")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root.GetSelected()))
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(os.Stderr, cfg.logFormat, cfg.logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := root.Run(ctx); err != nil {
		if errors.Is(err, ff.ErrNoExec) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root.GetSelected()))
			os.Exit(1)
		}
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// newCommand builds the command tree, binding flags into cfg
func newCommand(cfg *config) *ff.Command {
	rootFlags := ff.NewFlagSet("billbox")
	rootFlags.StringVar(&cfg.dbPath, 0, "db", "billbox.db", "Database file path")
	rootFlags.StringVar(&cfg.store, 0, "store", "bolt", "Storage backend: 'bolt' or 'sqlite'")
	rootFlags.StringVar(&cfg.inboxDir, 0, "inbox-dir", "./inbox", "Directory incoming documents are dropped into")
	rootFlags.StringVar(&cfg.attachmentsDir, 0, "attachments-dir", "./attachments", "Directory ingested documents are stored in")
	rootFlags.StringVar(&cfg.userID, 0, "user", "", "User ID new documents are assigned to")
	rootFlags.StringVar(&cfg.currency, 0, "currency", "USD", "Currency used when OCR does not find one")
	rootFlags.StringVar(&cfg.logFormat, 0, "log-format", "text", "Log format: 'text' or 'json'")
	rootFlags.StringVar(&cfg.logLevel, 0, "log-level", "info", "Log level: debug, info, warn or error")

	rootFlags.StringVar(&cfg.openAIKey, 0, "openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
	rootFlags.StringVar(&cfg.openAIModel, 0, "openai-model", "", "OpenAI model name")
	rootFlags.StringVar(&cfg.openAIURL, 0, "openai-url", "", "OpenAI API base URL")
	rootFlags.StringVar(&cfg.anthropicKey, 0, "anthropic-key", "", "Anthropic API key (or set ANTHROPIC_API_KEY env var)")
	rootFlags.StringVar(&cfg.anthropicModel, 0, "anthropic-model", "", "Anthropic model name")
	rootFlags.StringVar(&cfg.anthropicURL, 0, "anthropic-url", "", "Anthropic API base URL")
	rootFlags.StringVar(&cfg.geminiKey, 0, "gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	rootFlags.StringVar(&cfg.geminiModel, 0, "gemini-model", "", "Google Gemini model name")
	rootFlags.DurationVar(&cfg.ocrTimeout, 0, "ocr-timeout", defaultOCRTimeout, "Timeout for one OCR request")
	rootFlags.IntVar(&cfg.ocrRetries, 0, "ocr-retries", 3, "Retries after a transient OCR failure")
	rootFlags.Float64Var(&cfg.ocrRPS, 0, "ocr-rps", 0, "Maximum OCR requests per second per engine (0 for unlimited)")
	rootFlags.StringVar(&cfg.language, 0, "ocr-language", "", "Document language hint passed to OCR")

	serveFlags := ff.NewFlagSet("serve").SetParent(rootFlags)
	serveFlags.IntVar(&cfg.port, 0, "port", 8080, "HTTP server port")
	serveFlags.StringVar(&cfg.authUser, 0, "auth-user", "", "Basic auth username (optional)")
	serveFlags.StringVar(&cfg.authPass, 0, "auth-pass", "", "Basic auth password (optional)")
	serveFlags.BoolVar(&cfg.watch, 0, "watch", "Ingest files dropped into the inbox directory")
	serveFlags.DurationVar(&cfg.settle, 0, "settle", defaultSettle, "How long a watched file must stay unchanged before ingest")

	ingestFlags := ff.NewFlagSet("ingest").SetParent(rootFlags)
	ingestFlags.BoolVar(&cfg.scan, 0, "scan", "Run OCR on every newly created item")

	exportFlags := ff.NewFlagSet("export").SetParent(rootFlags)
	exportFlags.StringVar(&cfg.out, 'o', "out", "billbox.xlsx", "Output file")
	exportFlags.StringVar(&cfg.from, 0, "from", "", "Only records on or after this date (YYYY-MM-DD)")
	exportFlags.StringVar(&cfg.to, 0, "to", "", "Only records on or before this date (YYYY-MM-DD)")
	exportFlags.BoolVar(&cfg.includeRemoved, 0, "include-removed", "Include removed records")

	serve := &ff.Command{
		Name:      "serve",
		Usage:     "billbox serve [FLAGS]",
		ShortHelp: "run the HTTP API",
		Flags:     serveFlags,
		Exec: func(ctx context.Context, args []string) error {
			return runServe(ctx, cfg)
		},
	}
	ingest := &ff.Command{
		Name:      "ingest",
		Usage:     "billbox ingest [FLAGS] [DIR]",
		ShortHelp: "ingest every document in a directory (default: the inbox directory)",
		Flags:     ingestFlags,
		Exec: func(ctx context.Context, args []string) error {
			dir := cfg.inboxDir
			if len(args) > 0 {
				dir = args[0]
			}
			return runIngest(ctx, cfg, dir)
		},
	}
	exportCmd := &ff.Command{
		Name:      "export",
		Usage:     "billbox export [FLAGS]",
		ShortHelp: "write bills and receipts to an XLSX workbook",
		Flags:     exportFlags,
		Exec: func(ctx context.Context, args []string) error {
			return runExport(cfg)
		},
	}

	return &ff.Command{
		Name:        "billbox",
		Usage:       "billbox [FLAGS] <SUBCOMMAND>",
		ShortHelp:   "document ingestion for bills and receipts",
		Flags:       rootFlags,
		Subcommands: []*ff.Command{serve, ingest, exportCmd},
	}
}
