// Package config holds the gateway configuration record: built-in
// defaults seeded from the environment, an optional YAML or JSON file
// merged over them, and fail-fast validation of the result.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gatescan/gatescan/pkg/advisor"
	"github.com/gatescan/gatescan/pkg/risk"
	"github.com/gatescan/gatescan/pkg/rules"
)

// HistoryConfig selects the decision-history backend. An empty DSN keeps
// history derived from the JSONL journal; a PostgreSQL DSN switches to a
// pgx-backed store.
type HistoryConfig struct {
	PostgresDSN string `yaml:"postgres_dsn" json:"postgres_dsn"`
}

// CacheConfig controls the optional Redis scan-result cache. An empty
// address disables caching entirely.
type CacheConfig struct {
	RedisAddr  string `yaml:"redis_addr" json:"redis_addr"`
	TTLSeconds int    `yaml:"ttl_s" json:"ttl_s"`
}

// RecallConfig controls the similarity corpus of past scans. An empty
// path keeps the corpus in memory for the lifetime of the process.
type RecallConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// MLConfig controls the optional local ONNX classifier. The classifier
// only runs when ModelPath is set; Escalate additionally lets a
// high-confidence threat verdict raise the decision.
type MLConfig struct {
	ModelPath       string  `yaml:"model_path" json:"model_path"`
	ONNXLibraryPath string  `yaml:"onnx_library_path" json:"onnx_library_path"`
	Threshold       float64 `yaml:"threshold" json:"threshold"`
	Escalate        bool    `yaml:"escalate" json:"escalate"`
}

// ServerConfig holds the serve-mode listener settings.
type ServerConfig struct {
	Addr               string `yaml:"addr" json:"addr"`
	MaxConcurrentScans int    `yaml:"max_concurrent_scans" json:"max_concurrent_scans"`
}

// Config is the full configuration record consumed by the scan pipeline
// and its collaborators.
type Config struct {
	Thresholds    risk.Thresholds `yaml:"decision_thresholds" json:"decision_thresholds"`
	Weights       risk.Weights    `yaml:"severity_weights" json:"severity_weights"`
	MaxInputChars int             `yaml:"max_input_chars" json:"max_input_chars"`
	LogPath       string          `yaml:"log_path" json:"log_path"`
	RulePacksDir  string          `yaml:"rule_packs_dir" json:"rule_packs_dir"`
	RuleOverrides rules.Overrides `yaml:"rule_overrides" json:"rule_overrides"`
	History       HistoryConfig   `yaml:"history" json:"history"`
	Cache         CacheConfig     `yaml:"cache" json:"cache"`
	Recall        RecallConfig    `yaml:"recall" json:"recall"`
	ML            MLConfig        `yaml:"ml" json:"ml"`
	Server        ServerConfig    `yaml:"server" json:"server"`
	AI            advisor.Config  `yaml:"ai" json:"ai"`
}

// Default returns the stock configuration. Deployment knobs are seeded
// from GATESCAN_* environment variables so containerized installs can run
// without a config file; file values, when present, take precedence over
// the environment.
func Default() *Config {
	return &Config{
		Thresholds:    risk.DefaultThresholds(),
		Weights:       risk.DefaultWeights(),
		MaxInputChars: 100000,
		LogPath:       GetEnv("GATESCAN_LOG_PATH", "logs/audit.jsonl"),
		RulePacksDir:  GetEnv("GATESCAN_RULE_PACKS", ""),
		RuleOverrides: rules.Overrides{},
		History: HistoryConfig{
			PostgresDSN: GetEnv("GATESCAN_POSTGRES_DSN", ""),
		},
		Cache: CacheConfig{
			RedisAddr:  GetEnv("GATESCAN_REDIS_ADDR", ""),
			TTLSeconds: GetEnvInt("GATESCAN_CACHE_TTL_S", 300),
		},
		Recall: RecallConfig{
			Enabled: GetEnvBool("GATESCAN_RECALL_ENABLED", false),
			Path:    GetEnv("GATESCAN_RECALL_PATH", ""),
		},
		ML: MLConfig{
			ModelPath:       GetEnv("GATESCAN_ML_MODEL", ""),
			ONNXLibraryPath: GetEnv("GATESCAN_ONNX_LIBRARY", ""),
			Threshold:       GetEnvFloat("GATESCAN_ML_THRESHOLD", 0.8),
			Escalate:        GetEnvBool("GATESCAN_ML_ESCALATE", false),
		},
		Server: ServerConfig{
			Addr:               GetEnv("GATESCAN_ADDR", ":8080"),
			MaxConcurrentScans: GetEnvInt("GATESCAN_MAX_SCANS", 64),
		},
		AI: advisor.Config{
			Enabled:  false,
			Provider: "openai-compatible",
			Endpoint: "https://api.openai.com/v1/chat/completions",
			APIKey:   "",
			Model:    "gpt-5.2-chat",
			TimeoutS: 30,
		},
	}
}

// Load reads the config file at path and merges it over the defaults.
// An empty path yields the validated defaults. YAML is selected by the
// .yaml/.yml extension, anything else parses as JSON. Unmarshaling into
// the default-initialized record gives deep-merge semantics: only keys
// present in the file are overwritten.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the record's constraints and normalizes string fields
// in place. The API key is resolved here so the rest of the system never
// consults the environment: the configured value wins, then
// GATESCAN_AI_API_KEY, then OPENAI_API_KEY.
func (c *Config) Validate() error {
	if c.Thresholds.Warn < 0 || c.Thresholds.Block < 0 {
		return fmt.Errorf("decision_thresholds values must be >= 0")
	}
	if c.Thresholds.Warn > c.Thresholds.Block {
		return fmt.Errorf("decision_thresholds.warn must be <= decision_thresholds.block")
	}

	weights := []struct {
		name  string
		value float64
	}{
		{"low", c.Weights.Low},
		{"medium", c.Weights.Medium},
		{"high", c.Weights.High},
	}
	for _, w := range weights {
		if w.value < 0 {
			return fmt.Errorf("severity_weights.%s must be >= 0", w.name)
		}
	}

	if c.MaxInputChars <= 0 {
		return fmt.Errorf("max_input_chars must be > 0")
	}

	c.LogPath = strings.TrimSpace(c.LogPath)
	if c.LogPath == "" {
		return fmt.Errorf("log_path must be a non-empty string")
	}
	c.RulePacksDir = strings.TrimSpace(c.RulePacksDir)

	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("cache.ttl_s must be >= 0")
	}
	if c.ML.Threshold < 0 || c.ML.Threshold > 1 {
		return fmt.Errorf("ml.threshold must be between 0 and 1")
	}
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must be a non-empty string")
	}
	if c.Server.MaxConcurrentScans <= 0 {
		return fmt.Errorf("server.max_concurrent_scans must be > 0")
	}

	c.AI.Provider = strings.TrimSpace(c.AI.Provider)
	if c.AI.Provider == "" {
		return fmt.Errorf("ai.provider must be a non-empty string")
	}
	c.AI.Endpoint = strings.TrimSpace(c.AI.Endpoint)
	c.AI.Model = strings.TrimSpace(c.AI.Model)
	c.AI.APIKey = resolveAPIKey(strings.TrimSpace(c.AI.APIKey))
	if c.AI.TimeoutS <= 0 || c.AI.TimeoutS > 120 {
		return fmt.Errorf("ai.timeout_s must be between 1 and 120")
	}
	if c.AI.Enabled {
		if c.AI.Endpoint == "" {
			return fmt.Errorf("ai.endpoint must be a non-empty string when ai.enabled is true")
		}
		if c.AI.Model == "" {
			return fmt.Errorf("ai.model must be a non-empty string when ai.enabled is true")
		}
		if c.AI.APIKey == "" {
			return fmt.Errorf("ai.api_key is required when ai.enabled is true")
		}
	}

	return nil
}

func resolveAPIKey(configured string) string {
	if configured != "" {
		return configured
	}
	for _, name := range []string{"GATESCAN_AI_API_KEY", "OPENAI_API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// Environment helpers shared with the CLI and server setup.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a
// default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a
// default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a
// default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}
