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
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/peterbourgon/ff/v4/ffyaml"
	"github.com/zombor/invoice-ocr/internal/extraction"
	"github.com/zombor/invoice-ocr/internal/invoice"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type providerConfig struct {
	provider    string
	apiKey      string
	openAIURL   string
	model       string
	maxTokens   int
	geminiKey   string
	geminiModel string
	ollamaURL   string
	ollamaModel string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("invoice-ocr")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		provider    = fs.StringLong("provider", "openai", "Extraction provider: 'openai', 'gemini' or 'ollama'")
		apiKey      = fs.StringLong("api-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openAIURL   = fs.StringLong("openai-url", extraction.DefaultOpenAIURL, "OpenAI-compatible API base URL")
		model       = fs.StringLong("model", extraction.DefaultOpenAIModel, "OpenAI model name")
		maxTokens   = fs.IntLong("max-tokens", extraction.DefaultMaxTokens, "Maximum tokens in the model's answer")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", extraction.DefaultGeminiModel, "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", extraction.DefaultOllamaURL, "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", extraction.DefaultOllamaModel, "Ollama model name (e.g., llava, qwen2-vl)")
		timeout     = fs.DurationLong("timeout", invoice.DefaultTimeout, "Maximum time for a single extraction")
		sessionTTL  = fs.DurationLong("session-ttl", invoice.DefaultSessionTTL, "Idle time after which a session is discarded")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat   = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		_           = fs.StringLong("config", "", "YAML config file (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_OCR"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parse),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	extractor, err := newExtractor(providerConfig{
		provider:    *provider,
		apiKey:      *apiKey,
		openAIURL:   *openAIURL,
		model:       *model,
		maxTokens:   *maxTokens,
		geminiKey:   *geminiKey,
		geminiModel: *geminiModel,
		ollamaURL:   *ollamaURL,
		ollamaModel: *ollamaModel,
	})
	if err != nil {
		slog.Error("Failed to initialize extractor", "provider", *provider, "error", err)
		os.Exit(1)
	}
	defer extractor.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := invoice.NewSessions(*sessionTTL)
	defer sessions.Close()
	go sessions.Run(ctx, time.Minute)

	invoiceService := invoice.NewService(extractor, *timeout)

	basicAuth := invoice.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := invoice.NewServer(invoiceService, sessions, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	select {
	case err := <-serverErr:
		if err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
}

// newExtractor builds the extractor for the selected provider
func newExtractor(cfg providerConfig) (extraction.Extractor, error) {
	switch cfg.provider {
	case "openai":
		// Get OpenAI API key from flag or environment
		apiKey := cfg.apiKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("an OpenAI API key is required: set --api-key flag or OPENAI_API_KEY environment variable")
		}
		slog.Info("Initializing OpenAI extractor...", "url", cfg.openAIURL, "model", cfg.model)
		return extraction.NewOpenAI(apiKey,
			extraction.WithBaseURL(cfg.openAIURL),
			extraction.WithModel(cfg.model),
			extraction.WithMaxTokens(cfg.maxTokens),
		)
	case "gemini":
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("a Gemini API key is required: set --gemini-key flag or GEMINI_API_KEY environment variable")
		}
		slog.Info("Initializing Gemini extractor...", "model", cfg.geminiModel)
		return extraction.NewGemini(apiKey, cfg.geminiModel, cfg.maxTokens)
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return extraction.NewOllama(cfg.ollamaURL, cfg.ollamaModel, cfg.maxTokens)
	default:
		return nil, fmt.Errorf("invalid provider %q: must be openai, gemini or ollama", cfg.provider)
	}
}

// newLogger builds the process logger from the level and format flags
func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", format)
	}
}
