// Package config resolves the pos-tracker runtime configuration from flags,
// POS_TRACKER_* environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/pos-tracker/internal/exchange"
	"github.com/zombor/pos-tracker/internal/scanning"
)

// EnvPrefix is prepended to flag names to form environment variable names,
// e.g. --gemini-key is read from POS_TRACKER_GEMINI_KEY
const EnvPrefix = "POS_TRACKER"

// Scanner backends
const (
	ScannerGemini     = "gemini"
	ScannerGeminiREST = "gemini-rest"
	ScannerOllama     = "ollama"
)

// Config is resolved once at startup and passed to the components that need it
type Config struct {
	Port        int
	DBPath      string
	StoragePath string

	Scanner        string
	GeminiKey      string
	GeminiModel    string
	GeminiEndpoint string
	OllamaURL      string
	OllamaModel    string
	ScanTimeout    time.Duration

	ExchangeURL  string
	ExchangeKey  string
	BaseCurrency string
	RateTimeout  time.Duration
	WriteTimeout time.Duration

	AuthUser string
	AuthPass string
	LogLevel slog.Level

	ShowVersion bool
}

// LoadDotEnv loads variables from path into the environment without overriding
// ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load parses args and the environment. The flag set is returned so callers can print usage on error.
func Load(args []string) (*Config, *ff.FlagSet, error) {
	flags := ff.NewFlagSet("pos-tracker")
	var (
		port           = flags.IntLong("port", 8080, "HTTP server port")
		dbPath         = flags.StringLong("db", "pos-tracker.db", "Database file path")
		storagePath    = flags.StringLong("storage", "./bills", "Bill document storage directory")
		scannerType    = flags.StringLong("scanner", ScannerGemini, "Scanner type: 'gemini', 'gemini-rest' or 'ollama'")
		geminiKey      = flags.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = flags.StringLong("gemini-model", "gemini-1.5-flash", "Google Gemini model name")
		geminiEndpoint = flags.StringLong("gemini-endpoint", scanning.DefaultGeminiEndpoint, "Gemini generateContent endpoint for the REST scanner")
		ollamaURL      = flags.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = flags.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		scanTimeout    = flags.DurationLong("scan-timeout", 120*time.Second, "Upper bound for a single document extraction")
		exchangeURL    = flags.StringLong("exchange-url", exchange.DefaultBaseURL, "Exchange rate API base URL")
		exchangeKey    = flags.StringLong("exchange-key", "", "Exchange rate API key (or set EXCHANGE_RATE_API_KEY env var)")
		baseCurrency   = flags.StringLong("base-currency", "USD", "Reporting currency outlet rates are quoted against")
		rateTimeout    = flags.DurationLong("rate-timeout", exchange.DefaultTimeout, "Exchange rate request timeout")
		writeTimeout   = flags.DurationLong("write-timeout", 30*time.Second, "Database write timeout")
		authUser       = flags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = flags.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel       = flags.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion    = flags.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(flags, args, ff.WithEnvVarPrefix(EnvPrefix)); err != nil {
		return nil, flags, err
	}

	cfg := &Config{
		Port:           *port,
		DBPath:         *dbPath,
		StoragePath:    *storagePath,
		Scanner:        strings.ToLower(strings.TrimSpace(*scannerType)),
		GeminiKey:      firstNonEmpty(*geminiKey, os.Getenv("GEMINI_API_KEY")),
		GeminiModel:    *geminiModel,
		GeminiEndpoint: *geminiEndpoint,
		OllamaURL:      *ollamaURL,
		OllamaModel:    *ollamaModel,
		ScanTimeout:    *scanTimeout,
		ExchangeURL:    *exchangeURL,
		ExchangeKey:    firstNonEmpty(*exchangeKey, os.Getenv("EXCHANGE_RATE_API_KEY")),
		BaseCurrency:   strings.ToUpper(strings.TrimSpace(*baseCurrency)),
		RateTimeout:    *rateTimeout,
		WriteTimeout:   *writeTimeout,
		AuthUser:       *authUser,
		AuthPass:       *authPass,
		ShowVersion:    *showVersion,
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(*logLevel)); err != nil {
		return nil, flags, fmt.Errorf("invalid log level %q", *logLevel)
	}
	if cfg.ShowVersion {
		return cfg, flags, nil
	}
	if err := cfg.validate(); err != nil {
		return nil, flags, err
	}
	return cfg, flags, nil
}

func (c *Config) validate() error {
	switch c.Scanner {
	case ScannerGemini, ScannerGeminiREST:
		if c.GeminiKey == "" {
			return errors.New("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
		}
	case ScannerOllama:
	default:
		return fmt.Errorf("invalid scanner type %q: valid values are gemini, gemini-rest or ollama", c.Scanner)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if len(c.BaseCurrency) != 3 {
		return fmt.Errorf("invalid base currency %q", c.BaseCurrency)
	}
	if c.RateTimeout <= 0 || c.WriteTimeout <= 0 || c.ScanTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
