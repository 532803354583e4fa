// Package config loads application configuration from environment variables.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/tailscale/hujson"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	Env        string
	ListenAddr string
	DBPath     string

	// TokenSecret signs prefetch tokens. Empty means the server generates a
	// random secret at startup, so tokens do not survive a restart.
	TokenSecret  string
	TokenTTL     time.Duration
	QueryTimeout time.Duration

	// AutomationInterval is the scheduler period for the status automation
	// job. Zero disables the scheduler; read paths still trigger it.
	AutomationInterval time.Duration
	NodeID             int64

	RedisURL          string
	AttentionCacheTTL time.Duration

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	LogLevel  slog.Level
	LogFormat string

	ThresholdsFile string
	Thresholds     model.AttentionThresholds
}

// HasRedis reports whether an attention cache is configured.
func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

// HasClassifier reports whether the OpenAI mention classifier is configured.
func (c *Config) HasClassifier() bool {
	return c.OpenAIAPIKey != ""
}

// Load reads configuration from environment variables and returns a validated
// Config. When ACTIVITY_ENV is unset or "development", a .env file in the
// working directory is loaded first; variables already set take precedence.
//
// Optional variables with defaults: ACTIVITY_LISTEN_ADDR (127.0.0.1:8080),
// ACTIVITY_DB_PATH (gitactivity.db), ACTIVITY_TOKEN_TTL (5m),
// ACTIVITY_QUERY_TIMEOUT (15s), ACTIVITY_AUTOMATION_INTERVAL (5m),
// ACTIVITY_NODE_ID (1), ACTIVITY_ATTENTION_CACHE_TTL (1m),
// ACTIVITY_LOG_LEVEL (info), ACTIVITY_LOG_FORMAT (text).
func Load() (*Config, error) {
	env := getEnv("ACTIVITY_ENV", "development")
	if env == "development" {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Env:            env,
		ListenAddr:     getEnv("ACTIVITY_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:         getEnv("ACTIVITY_DB_PATH", "gitactivity.db"),
		TokenSecret:    os.Getenv("ACTIVITY_TOKEN_SECRET"),
		RedisURL:       os.Getenv("ACTIVITY_REDIS_URL"),
		OpenAIAPIKey:   os.Getenv("ACTIVITY_OPENAI_API_KEY"),
		OpenAIModel:    os.Getenv("ACTIVITY_OPENAI_MODEL"),
		OpenAIBaseURL:  os.Getenv("ACTIVITY_OPENAI_BASE_URL"),
		LogFormat:      getEnv("ACTIVITY_LOG_FORMAT", "text"),
		ThresholdsFile: os.Getenv("ACTIVITY_THRESHOLDS_FILE"),
	}

	var err error
	if cfg.TokenTTL, err = durationEnv("ACTIVITY_TOKEN_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.QueryTimeout, err = durationEnv("ACTIVITY_QUERY_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.AutomationInterval, err = durationEnv("ACTIVITY_AUTOMATION_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.AttentionCacheTTL, err = durationEnv("ACTIVITY_ATTENTION_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}

	if cfg.NodeID, err = int64Env("ACTIVITY_NODE_ID", 1); err != nil {
		return nil, err
	}
	if cfg.NodeID < 0 || cfg.NodeID > 1023 {
		return nil, fmt.Errorf("ACTIVITY_NODE_ID must be between 0 and 1023, got %d", cfg.NodeID)
	}

	if v, ok := os.LookupEnv("ACTIVITY_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("ACTIVITY_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("ACTIVITY_LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	cfg.Thresholds = model.DefaultAttentionThresholds()
	if cfg.ThresholdsFile != "" {
		fileThresholds, err := LoadThresholds(cfg.ThresholdsFile)
		if err != nil {
			return nil, err
		}
		cfg.Thresholds = cfg.Thresholds.Merge(fileThresholds)
	}

	return cfg, nil
}

// LoadThresholds reads attention threshold defaults from a HuJSON file, so
// comments and trailing commas are allowed. Omitted fields stay zero.
func LoadThresholds(path string) (model.AttentionThresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.AttentionThresholds{}, fmt.Errorf("read thresholds file: %w", err)
	}
	return parseThresholds(data)
}

func parseThresholds(data []byte) (model.AttentionThresholds, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return model.AttentionThresholds{}, fmt.Errorf("invalid thresholds JSONC: %w", err)
	}

	var t model.AttentionThresholds
	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return model.AttentionThresholds{}, fmt.Errorf("invalid thresholds JSON: %w", err)
	}

	if t.StalePRDays < 0 || t.IdlePRDays < 0 || t.ReviewRequestDays < 0 ||
		t.BacklogIssueDays < 0 || t.StalledIssueDays < 0 || t.UnansweredMentionDays < 0 {
		return model.AttentionThresholds{}, fmt.Errorf("thresholds must not be negative")
	}
	return t, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", key, v)
	}
	return d, nil
}

func int64Env(key string, fallback int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return n, nil
}
