// Package config loads and validates DaaD configuration from JSON files
// with DAAD_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TotoCodeFR/DaaD/errors"
)

// Config is the complete application configuration.
type Config struct {
	NATS    NATSConfig    `json:"nats"`
	Engine  EngineConfig  `json:"engine"`
	Metrics MetricsConfig `json:"metrics"`
	Tables  []TableConfig `json:"tables"`
	Log     LogConfig     `json:"log"`
}

// NATSConfig defines connection settings for the messaging substrate.
type NATSConfig struct {
	URL            string        `json:"url"`
	Name           string        `json:"name,omitempty"`
	SubjectPrefix  string        `json:"subject_prefix"`
	MaxReconnects  int           `json:"max_reconnects,omitempty"`
	ReconnectWait  time.Duration `json:"reconnect_wait,omitempty"`
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty"`
}

// EngineConfig tunes the record engine.
type EngineConfig struct {
	ChunkSize       int           `json:"chunk_size,omitempty"`
	RetrievalWindow int           `json:"retrieval_window,omitempty"`
	MaxPayload      int           `json:"max_payload,omitempty"`
	BulkMaxAge      time.Duration `json:"bulk_max_age,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// TableConfig declares one table and its schema.
type TableConfig struct {
	Name       string   `json:"name"`
	Columns    []string `json:"columns"`
	PrimaryKey string   `json:"primary_key"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // text, json
}

// Loader handles configuration loading with environment overrides.
type Loader struct {
	envPrefix  string
	validation bool
}

// NewLoader creates a loader with the standard DAAD env prefix and
// validation enabled.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "DAAD",
		validation: true,
	}
}

// EnableValidation toggles validation after load.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// Load builds the configuration: defaults, then the optional JSON file at
// path (empty path skips the file layer), then environment overrides.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := l.loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Defaults returns the standard configuration.
func Defaults() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			Name:           "daad",
			SubjectPrefix:  "daad",
			MaxReconnects:  -1,
			ReconnectWait:  2 * time.Second,
			ConnectTimeout: 5 * time.Second,
		},
		Engine: EngineConfig{
			ChunkSize:       3800,
			RetrievalWindow: 100,
			MaxPayload:      4000,
			BulkMaxAge:      14 * 24 * time.Hour,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func (l *Loader) loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "config", "Load", "read file")
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WrapInvalid(err, "config", "Load", "parse json")
	}
	parseDurations(raw)

	normalized, err := json.Marshal(raw)
	if err != nil {
		return errors.WrapInvalid(err, "config", "Load", "normalize json")
	}
	if err := json.Unmarshal(normalized, cfg); err != nil {
		return errors.WrapInvalid(err, "config", "Load", "decode config")
	}
	return nil
}

// parseDurations rewrites human-readable duration strings ("2s", "14d") to
// nanoseconds so they decode into time.Duration fields.
func parseDurations(raw map[string]any) {
	if nats, ok := raw["nats"].(map[string]any); ok {
		parseDurationField(nats, "reconnect_wait")
		parseDurationField(nats, "connect_timeout")
	}
	if engine, ok := raw["engine"].(map[string]any); ok {
		parseDurationField(engine, "bulk_max_age")
	}
}

func parseDurationField(section map[string]any, key string) {
	if s, ok := section[key].(string); ok {
		if d, err := parseDurationWithDays(s); err == nil {
			section[key] = d.Nanoseconds()
		}
	}
}

// parseDurationWithDays parses durations that may include days (e.g. "14d").
func parseDurationWithDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days := strings.TrimSuffix(s, "d")
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// applyEnvOverrides applies environment variable overrides.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_NATS_URL"); val != "" {
		cfg.NATS.URL = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_NAME"); val != "" {
		cfg.NATS.Name = val
	}
	if val := os.Getenv(l.envPrefix + "_SUBJECT_PREFIX"); val != "" {
		cfg.NATS.SubjectPrefix = val
	}
	if val := os.Getenv(l.envPrefix + "_CHUNK_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Engine.ChunkSize = n
		}
	}
	if val := os.Getenv(l.envPrefix + "_RETRIEVAL_WINDOW"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Engine.RetrievalWindow = n
		}
	}
	if val := os.Getenv(l.envPrefix + "_BULK_MAX_AGE"); val != "" {
		if d, err := parseDurationWithDays(val); err == nil {
			cfg.Engine.BulkMaxAge = d
		}
	}
	if val := os.Getenv(l.envPrefix + "_METRICS_ENABLED"); val != "" {
		cfg.Metrics.Enabled = val == "true" || val == "1"
	}
	if val := os.Getenv(l.envPrefix + "_METRICS_PORT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Metrics.Port = n
		}
	}
	if val := os.Getenv(l.envPrefix + "_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv(l.envPrefix + "_LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate", "nats url is required")
	}
	if c.NATS.SubjectPrefix == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate", "subject prefix is required")
	}
	if strings.ContainsAny(c.NATS.SubjectPrefix, " >*") {
		return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("subject prefix %q contains invalid characters", c.NATS.SubjectPrefix))
	}

	if c.Engine.ChunkSize <= 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate", "chunk size must be positive")
	}
	if c.Engine.MaxPayload > 0 && c.Engine.ChunkSize > c.Engine.MaxPayload {
		return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("chunk size %d exceeds max payload %d", c.Engine.ChunkSize, c.Engine.MaxPayload))
	}
	if c.Engine.RetrievalWindow <= 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate", "retrieval window must be positive")
	}
	if c.Engine.BulkMaxAge <= 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate", "bulk max age must be positive")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate",
				fmt.Sprintf("metrics port %d out of range", c.Metrics.Port))
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate", "metrics path must start with /")
		}
	}

	seen := make(map[string]struct{}, len(c.Tables))
	for _, tbl := range c.Tables {
		if tbl.Name == "" {
			return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate", "table name is required")
		}
		if _, dup := seen[tbl.Name]; dup {
			return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate",
				fmt.Sprintf("duplicate table %q", tbl.Name))
		}
		seen[tbl.Name] = struct{}{}

		if len(tbl.Columns) == 0 {
			return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate",
				fmt.Sprintf("table %q has no columns", tbl.Name))
		}
		if tbl.PrimaryKey == "" {
			return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate",
				fmt.Sprintf("table %q has no primary key", tbl.Name))
		}
		found := false
		for _, col := range tbl.Columns {
			if col == tbl.PrimaryKey {
				found = true
				break
			}
		}
		if !found {
			return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate",
				fmt.Sprintf("table %q primary key %q is not a column", tbl.Name, tbl.PrimaryKey))
		}
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("unknown log format %q", c.Log.Format))
	}

	return nil
}
