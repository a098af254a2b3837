package main

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-vault/internal/receipt"
	"github.com/zombor/receipt-vault/internal/scanning"
	"github.com/zombor/receipt-vault/internal/validation"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

var errValidationFailed = errors.New("one or more records failed validation")

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	rootFlags := ff.NewFlagSet("receipt-vault")
	dbPath := rootFlags.StringLong("db", "receipt-vault.db", "Database file path")

	serveFlags := ff.NewFlagSet("serve").SetParent(rootFlags)
	var (
		port        = serveFlags.IntLong("port", 8080, "HTTP server port")
		storagePath = serveFlags.StringLong("storage", "./receipts", "Storage directory path")
		scannerType = serveFlags.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey   = serveFlags.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = serveFlags.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL   = serveFlags.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = serveFlags.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		authUser    = serveFlags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = serveFlags.StringLong("auth-pass", "", "Basic auth password (optional)")
		currency    = serveFlags.StringLong("currency", receipt.DefaultCurrency, "Currency code shown in exported reports")
	)

	validateFlags := ff.NewFlagSet("validate").SetParent(rootFlags)
	skipDuplicates := validateFlags.BoolLong("skip-duplicates", "Skip the duplicate bill id check")

	serveCmd := &ff.Command{
		Name:      "serve",
		Usage:     "receipt-vault serve [FLAGS]",
		ShortHelp: "run the HTTP server",
		Flags:     serveFlags,
		Exec: func(ctx context.Context, args []string) error {
			return serve(ctx, serveConfig{
				port:        *port,
				dbPath:      *dbPath,
				storagePath: *storagePath,
				scannerType: *scannerType,
				geminiKey:   *geminiKey,
				geminiModel: *geminiModel,
				ollamaURL:   *ollamaURL,
				ollamaModel: *ollamaModel,
				auth:        receipt.BasicAuth{Username: *authUser, Password: *authPass},
				currency:    *currency,
			})
		},
	}

	validateCmd := &ff.Command{
		Name:      "validate",
		Usage:     "receipt-vault validate [FLAGS] FILE",
		ShortHelp: "validate JSON receipt records from FILE (or - for stdin)",
		Flags:     validateFlags,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("validate requires exactly one FILE argument")
			}
			return validateFile(args[0], *dbPath, *skipDuplicates, os.Stdout)
		},
	}

	rootCmd := &ff.Command{
		Name:        "receipt-vault",
		Usage:       "receipt-vault <SUBCOMMAND> [FLAGS]",
		Flags:       rootFlags,
		Subcommands: []*ff.Command{serveCmd, validateCmd},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ParseAndRun(ctx, os.Args[1:], ff.WithEnvVarPrefix("RECEIPT_VAULT"))
	switch {
	case err == nil:
	case errors.Is(err, ff.ErrHelp), errors.Is(err, ff.ErrNoExec):
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(rootCmd.GetSelected()))
		if errors.Is(err, ff.ErrNoExec) {
			os.Exit(1)
		}
	case errors.Is(err, errValidationFailed):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type serveConfig struct {
	port        int
	dbPath      string
	storagePath string
	scannerType string
	geminiKey   string
	geminiModel string
	ollamaURL   string
	ollamaModel string
	auth        receipt.BasicAuth
	currency    string
}

func newScanner(cfg serveConfig) (scanning.Scanner, error) {
	switch cfg.scannerType {
	case "gemini":
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini api key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", cfg.geminiModel)
		return scanning.NewGemini(apiKey, cfg.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
	default:
		return nil, fmt.Errorf("invalid scanner type %q: use gemini or ollama", cfg.scannerType)
	}
}

func serve(ctx context.Context, cfg serveConfig) error {
	slog.Info("Initializing database...", "path", cfg.dbPath)
	db, err := receipt.NewBoltDB(cfg.dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	scanner, err := newScanner(cfg)
	if err != nil {
		return fmt.Errorf("initializing scanner: %w", err)
	}
	defer scanner.Close()

	slog.Info("Initializing storage...", "path", cfg.storagePath)
	store, err := receipt.NewLocalStorage(cfg.storagePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	service := receipt.NewService(db, scanner, store).WithCurrency(cfg.currency)
	server := receipt.NewServer(service, cfg.auth)

	addr := fmt.Sprintf(":%d", cfg.port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if cfg.auth.Username != "" || cfg.auth.Password != "" {
		slog.Info("Basic auth enabled", "user", cfg.auth.Username)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("Shutting down...")
		return nil
	}
}

// readRecords accepts a single JSON object or an array of them
func readRecords(r io.Reader) ([]validation.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var records []validation.Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decoding records: %w", err)
		}
		return records, nil
	}

	var record validation.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return []validation.Record{record}, nil
}

func validateFile(path, dbPath string, skipDuplicates bool, out io.Writer) error {
	in := os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		in = f
	}

	records, err := readRecords(in)
	if err != nil {
		return err
	}

	var lookup validation.DuplicateLookup
	if !skipDuplicates {
		db, err := receipt.OpenBoltDBReadOnly(dbPath)
		if err != nil {
			return fmt.Errorf("opening database for duplicate check: %w", err)
		}
		defer db.Close()
		lookup = db
	}

	validator := validation.NewValidator(lookup)
	reports := make([]validation.Report, len(records))
	failed := 0
	for i, record := range records {
		reports[i] = validator.Validate(record, skipDuplicates)
		if !reports[i].Passed {
			failed++
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		return fmt.Errorf("writing reports: %w", err)
	}

	slog.Info("Validated records", "count", len(records), "failed", failed)
	if failed > 0 {
		return errValidationFailed
	}
	return nil
}
