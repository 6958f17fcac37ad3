// Package config holds OPERATOR-LEVEL configuration for an intake installation.
//
// This is infrastructure config set by whoever deploys the service: data
// directory, recognizer pattern file, the entity recognizer backend, HTTP
// limits, retention, and telemetry. Set via env vars (INTAKE_*) or a config
// file (intake.config.yaml).
//
// Patient identity values never belong here. They are only ever supplied
// per request and stored hashed.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "INTAKE"

// Viper keys. Each maps to an env var with the INTAKE_ prefix
// (e.g. "ner_model" → INTAKE_NER_MODEL) and to a YAML field
// in intake.config.yaml (e.g. ner_model: "llama3").
const (
	KeyDataDir           = "data_dir"
	KeyPatternFile       = "pattern_file"
	KeyNERProvider       = "ner_provider"
	KeyNERBaseURL        = "ner_base_url"
	KeyNERModel          = "ner_model"
	KeyNERAPIKey         = "ner_api_key"
	KeyCORSOrigins       = "cors_origins"
	KeyAPIKeys           = "api_keys"
	KeyRateLimitRPM      = "rate_limit_rpm"
	KeyRateLimitGlobal   = "rate_limit_global_rpm"
	KeyRetentionDays     = "retention_days"
	KeyRetentionSchedule = "retention_schedule"
	KeyMetricsExporter   = "metrics_exporter"
	KeyOTelEnabled       = "otel_enabled"
	KeyMaxFileMB         = "max_file_mb"
)

// Entity recognizer backends.
const (
	NERNone   = "none"
	NEROpenAI = "openai"
	NEROllama = "ollama"
)

// Defaults.
const (
	DefaultNERProvider       = NERNone
	DefaultNERModel          = "llama3.1"
	DefaultRateLimitRPM      = 120
	DefaultRetentionDays     = 90
	DefaultRetentionSchedule = "0 3 * * *"
	DefaultMetricsExporter   = "stdout"
	DefaultMaxFileMB         = 10
)

// Config holds resolved operator-level configuration for an intake process.
type Config struct {
	DataDir           string   // Base directory for all state (~/.intake)
	PatternFile       string   // Optional recognizer YAML layered over the embedded defaults
	NERProvider       string   // none, openai or ollama
	NERBaseURL        string   // Recognizer endpoint without /v1
	NERModel          string   // Chat model used for entity recognition
	NERAPIKey         string   // Only required for openai
	CORSOrigins       []string // Allowed browser origins for the HTTP API
	APIKeys           []string // Accepted X-Intake-Key values; empty disables auth on /v1
	RateLimitRPM      int      // Per-client requests per minute on /v1
	RateLimitGlobal   int      // Requests per minute on /v1 across all clients; 0 means no cap
	RetentionDays     int      // Conversations older than this are purged; 0 keeps them forever
	RetentionSchedule string   // Standard 5-field cron expression
	MetricsExporter   string   // stdout or prometheus
	OTelEnabled       bool
	MaxFileMB         int // Largest transcript file the CLI reads
}

// DBPath returns the full path to the SQLite database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "intake.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// NEREnabled reports whether a model-backed recognizer is configured.
func (c *Config) NEREnabled() bool {
	return c.NERProvider != NERNone
}

func init() {
	SetDefaults(viper.GetViper())
}

// SetDefaults registers the env prefix and defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetDefault(KeyNERProvider, DefaultNERProvider)
	v.SetDefault(KeyNERModel, DefaultNERModel)
	v.SetDefault(KeyRateLimitRPM, DefaultRateLimitRPM)
	v.SetDefault(KeyRetentionDays, DefaultRetentionDays)
	v.SetDefault(KeyRetentionSchedule, DefaultRetentionSchedule)
	v.SetDefault(KeyMetricsExporter, DefaultMetricsExporter)
	v.SetDefault(KeyMaxFileMB, DefaultMaxFileMB)
}

// Load reads configuration from Viper (which merges env vars, config
// file, and defaults) and returns a validated Config.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load over an explicit Viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DataDir:           resolveDataDir(v),
		PatternFile:       v.GetString(KeyPatternFile),
		NERProvider:       strings.ToLower(strings.TrimSpace(v.GetString(KeyNERProvider))),
		NERBaseURL:        v.GetString(KeyNERBaseURL),
		NERModel:          v.GetString(KeyNERModel),
		NERAPIKey:         v.GetString(KeyNERAPIKey),
		CORSOrigins:       splitList(v.GetStringSlice(KeyCORSOrigins)),
		APIKeys:           splitList(v.GetStringSlice(KeyAPIKeys)),
		RateLimitRPM:      v.GetInt(KeyRateLimitRPM),
		RateLimitGlobal:   v.GetInt(KeyRateLimitGlobal),
		RetentionDays:     v.GetInt(KeyRetentionDays),
		RetentionSchedule: v.GetString(KeyRetentionSchedule),
		MetricsExporter:   strings.ToLower(v.GetString(KeyMetricsExporter)),
		OTelEnabled:       v.GetBool(KeyOTelEnabled),
		MaxFileMB:         v.GetInt(KeyMaxFileMB),
	}
	if cfg.NERProvider == "" {
		cfg.NERProvider = NERNone
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir(v *viper.Viper) string {
	if dir := v.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".intake"
	}
	return filepath.Join(home, ".intake")
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, p := range strings.Split(item, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) validate() error {
	switch c.NERProvider {
	case NERNone:
	case NEROllama:
		if c.NERModel == "" {
			return fmt.Errorf("ner_model is required for ner_provider %q", c.NERProvider)
		}
	case NEROpenAI:
		if c.NERModel == "" {
			return fmt.Errorf("ner_model is required for ner_provider %q", c.NERProvider)
		}
		if c.NERAPIKey == "" {
			return fmt.Errorf("ner_api_key is required for ner_provider %q; set INTAKE_NER_API_KEY", c.NERProvider)
		}
	default:
		return fmt.Errorf("unknown ner_provider %q (want none, openai or ollama)", c.NERProvider)
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("rate_limit_rpm must be positive")
	}
	if c.RateLimitGlobal < 0 {
		return fmt.Errorf("rate_limit_global_rpm must not be negative")
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}
	if _, err := cron.ParseStandard(c.RetentionSchedule); err != nil {
		return fmt.Errorf("retention_schedule %q: %w", c.RetentionSchedule, err)
	}
	switch c.MetricsExporter {
	case "stdout", "prometheus":
	default:
		return fmt.Errorf("unknown metrics_exporter %q (want stdout or prometheus)", c.MetricsExporter)
	}
	if c.MaxFileMB <= 0 {
		return fmt.Errorf("max_file_mb must be positive")
	}
	return nil
}
