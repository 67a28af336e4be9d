package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/pos-tracker/internal/config"
	"github.com/zombor/pos-tracker/internal/exchange"
	"github.com/zombor/pos-tracker/internal/pos"
	"github.com/zombor/pos-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Warn("Ignoring .env file", "error", err)
	}

	cfg, flags, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if cfg.ShowVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	slog.Info("Initializing database...", "path", cfg.DBPath)
	db, err := pos.NewBoltDB(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	model, err := newModel(cfg)
	if err != nil {
		slog.Error("Failed to initialize scanner", "scanner", cfg.Scanner, "error", err)
		os.Exit(1)
	}
	scanner := scanning.NewExtractor(model, cfg.ScanTimeout)
	defer scanner.Close()

	slog.Info("Initializing storage...", "path", cfg.StoragePath)
	store, err := pos.NewLocalStorage(cfg.StoragePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	if cfg.ExchangeKey == "" {
		slog.Warn("No exchange rate API key configured; outlet rates will default to 1")
	}
	rates := exchange.NewFetcher(cfg.ExchangeURL, cfg.ExchangeKey, cfg.RateTimeout)

	service := pos.NewService(db, scanner, store, rates, pos.Options{
		BaseCurrency: cfg.BaseCurrency,
		WriteTimeout: cfg.WriteTimeout,
	})

	basicAuth := pos.BasicAuth{
		Username: cfg.AuthUser,
		Password: cfg.AuthPass,
	}
	server := pos.NewServer(service, basicAuth)

	addr := fmt.Sprintf(":%d", cfg.Port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if cfg.AuthUser != "" || cfg.AuthPass != "" {
		slog.Info("Basic auth enabled", "user", cfg.AuthUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// newModel builds the extraction backend selected by --scanner
func newModel(cfg *config.Config) (scanning.Model, error) {
	switch cfg.Scanner {
	case config.ScannerGemini:
		slog.Info("Initializing Gemini scanner...", "model", cfg.GeminiModel)
		return scanning.NewGemini(cfg.GeminiKey, cfg.GeminiModel)
	case config.ScannerGeminiREST:
		slog.Info("Initializing Gemini REST scanner...", "endpoint", cfg.GeminiEndpoint)
		return scanning.NewGeminiREST(cfg.GeminiEndpoint, cfg.GeminiKey, nil)
	case config.ScannerOllama:
		slog.Info("Initializing Ollama scanner...", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return scanning.NewOllama(cfg.OllamaURL, cfg.OllamaModel)
	default:
		return nil, fmt.Errorf("invalid scanner type %q", cfg.Scanner)
	}
}
