package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"production"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"poster-studio"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Debug       bool   `env:"DEBUG" envDefault:"false"`

	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	GeminiBaseURL    string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	GeminiAPIVersion string `env:"GEMINI_API_VERSION" envDefault:"v1beta"`

	ProposalModel      string `env:"PROPOSAL_MODEL"`
	AnalysisModel      string `env:"ANALYSIS_MODEL"`
	EditModel          string `env:"EDIT_MODEL"`
	StandardImageModel string `env:"STANDARD_IMAGE_MODEL"`
	PremiumImageModel  string `env:"PREMIUM_IMAGE_MODEL"`
	CopyLanguage       string `env:"COPY_LANGUAGE"`

	PreferIPv4            bool `env:"PREFER_IPV4" envDefault:"true"`
	HTTPTimeoutSeconds    int  `env:"HTTP_TIMEOUT_SECONDS" envDefault:"180"`
	RequestTimeoutSeconds int  `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"180"`

	WebAddr string `env:"WEB_ADDR" envDefault:":8080"`

	TelegramToken        string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramOwnerID      int64  `env:"TELEGRAM_OWNER_ID"`
	MediaGroupDebounceMS int    `env:"MEDIA_GROUP_DEBOUNCE_MS" envDefault:"1200"`
	MaxConcurrent        int    `env:"MAX_CONCURRENT" envDefault:"2"`

	EnableTracing bool   `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint  string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads .env when present, then the process environment, which wins.
func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	cfg.normalize()

	if cfg.GeminiAPIKey == "" {
		return Config{}, errors.New("GEMINI_API_KEY is required")
	}
	return cfg, nil
}

// ValidateBot checks the settings only the Telegram bot needs.
func (c Config) ValidateBot() error {
	switch {
	case c.TelegramToken == "":
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	case c.TelegramOwnerID == 0:
		return errors.New("TELEGRAM_OWNER_ID is required")
	}
	return nil
}

func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) MediaGroupDebounce() time.Duration {
	return time.Duration(c.MediaGroupDebounceMS) * time.Millisecond
}

func (c *Config) normalize() {
	c.AppEnv = strings.ToLower(strings.TrimSpace(c.AppEnv))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.GeminiAPIKey = strings.TrimSpace(c.GeminiAPIKey)
	c.GeminiBaseURL = strings.TrimSpace(c.GeminiBaseURL)
	c.GeminiAPIVersion = strings.TrimSpace(c.GeminiAPIVersion)
	c.TelegramToken = strings.TrimSpace(c.TelegramToken)
	c.WebAddr = strings.TrimSpace(c.WebAddr)

	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = 1
	}
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = 180
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 180
	}
	if c.MediaGroupDebounceMS <= 0 {
		c.MediaGroupDebounceMS = 1200
	}
	if c.WebAddr == "" {
		c.WebAddr = ":8080"
	}
}
