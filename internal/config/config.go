// Package config reads server settings from the environment, after loading
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	LLMProvider  string
	LLMModel     string
	APIKeys      map[string]string // provider name -> key
	SystemPrompt string
	ChatTimeout  time.Duration

	SessionStore  string // "memory" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	UploadDir           string
	UploadRetention     time.Duration
	UploadCleanInterval time.Duration
	MaxUploadMB         int

	OCRRenderer string
	OCRLang     string

	StaticDir string
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (Config, error) {
	var errs []error
	dur := func(k string, fallback time.Duration) time.Duration {
		d, err := getenvDuration(k, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	googleKey := getenv("GOOGLE_API_KEY", os.Getenv("GEMINI_API_KEY"))
	cfg := Config{
		Port:        getenv("PORT", "8000"),
		LLMProvider: strings.ToLower(getenv("LLM_PROVIDER", "gemini")),
		LLMModel:    os.Getenv("LLM_MODEL"),
		APIKeys: map[string]string{
			"gemini":      googleKey,
			"openai":      os.Getenv("OPENAI_API_KEY"),
			"anthropic":   os.Getenv("ANTHROPIC_API_KEY"),
			"huggingface": os.Getenv("HUGGINGFACE_API_KEY"),
		},
		SystemPrompt: os.Getenv("SYSTEM_PROMPT"),
		ChatTimeout:  dur("CHAT_TIMEOUT", 0),

		SessionStore:  strings.ToLower(getenv("SESSION_STORE", "memory")),
		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getenvInt("REDIS_DB", 0),
		SessionTTL:    dur("SESSION_TTL", 0),

		UploadDir:           getenv("UPLOAD_DIR", "uploaded_pdfs"),
		UploadRetention:     dur("UPLOAD_RETENTION", 0),
		UploadCleanInterval: dur("UPLOAD_CLEAN_INTERVAL", time.Hour),
		MaxUploadMB:         getenvInt("MAX_UPLOAD_MB", 100),

		OCRRenderer: strings.ToLower(getenv("OCR_RENDERER", "fitz")),
		OCRLang:     getenv("OCR_LANG", "eng"),

		StaticDir: getenv("STATIC_DIR", "web"),
	}

	switch cfg.SessionStore {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be memory or redis, got %q", cfg.SessionStore))
	}
	return cfg, errors.Join(errs...)
}

// APIKey returns the credential for the configured provider.
func (c Config) APIKey() string {
	return c.APIKeys[c.LLMProvider]
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	if _, ok := c.APIKeys[c.LLMProvider]; !ok {
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.APIKey() == "" {
		return fmt.Errorf("no API key set for provider %q (%s)", c.LLMProvider, keyVar(c.LLMProvider))
	}
	return nil
}

func keyVar(provider string) string {
	switch provider {
	case "gemini":
		return "GOOGLE_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "huggingface":
		return "HUGGINGFACE_API_KEY"
	}
	return ""
}

func getenv(k, fallback string) string {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(k string, fallback int) int {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getenvDuration accepts Go durations ("90s", "24h") or a bare number of
// seconds.
func getenvDuration(k string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}
