package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "daad", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 3800, cfg.Engine.ChunkSize)
	assert.Equal(t, 100, cfg.Engine.RetrievalWindow)
	assert.Equal(t, 14*24*time.Hour, cfg.Engine.BulkMaxAge)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daad.json")
	data := `{
		"nats": {
			"url": "nats://broker:4222",
			"subject_prefix": "prod",
			"reconnect_wait": "5s"
		},
		"engine": {
			"chunk_size": 2000,
			"bulk_max_age": "7d"
		},
		"metrics": {"enabled": true, "port": 9100, "path": "/metrics"},
		"tables": [
			{"name": "users", "columns": ["id", "name"], "primary_key": "id"}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := NewLoader().Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, "prod", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, 2000, cfg.Engine.ChunkSize)
	assert.Equal(t, 7*24*time.Hour, cfg.Engine.BulkMaxAge)
	assert.Equal(t, 100, cfg.Engine.RetrievalWindow, "unset fields keep defaults")
	assert.True(t, cfg.Metrics.Enabled)
	require.Len(t, cfg.Tables, 1)
	assert.Equal(t, "users", cfg.Tables[0].Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader().Load("/nonexistent/daad.json")
	assert.Error(t, err)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().Load("")
	require.NoError(t, err)
	assert.Equal(t, 3800, cfg.Engine.ChunkSize)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DAAD_NATS_URL", "nats://env:4222")
	t.Setenv("DAAD_CHUNK_SIZE", "1500")
	t.Setenv("DAAD_BULK_MAX_AGE", "3d")
	t.Setenv("DAAD_METRICS_ENABLED", "true")
	t.Setenv("DAAD_LOG_LEVEL", "debug")

	cfg, err := NewLoader().Load("")
	require.NoError(t, err)

	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, 1500, cfg.Engine.ChunkSize)
	assert.Equal(t, 3*24*time.Hour, cfg.Engine.BulkMaxAge)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing nats url", mutate: func(c *Config) { c.NATS.URL = "" }},
		{name: "missing prefix", mutate: func(c *Config) { c.NATS.SubjectPrefix = "" }},
		{name: "wildcard in prefix", mutate: func(c *Config) { c.NATS.SubjectPrefix = "daad.>" }},
		{name: "zero chunk size", mutate: func(c *Config) { c.Engine.ChunkSize = 0 }},
		{name: "chunk size over payload cap", mutate: func(c *Config) { c.Engine.ChunkSize = 5000 }},
		{name: "zero window", mutate: func(c *Config) { c.Engine.RetrievalWindow = 0 }},
		{name: "zero bulk age", mutate: func(c *Config) { c.Engine.BulkMaxAge = 0 }},
		{name: "bad metrics port", mutate: func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = 0
		}},
		{name: "bad metrics path", mutate: func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "metrics"
		}},
		{name: "table without name", mutate: func(c *Config) {
			c.Tables = []TableConfig{{Columns: []string{"id"}, PrimaryKey: "id"}}
		}},
		{name: "duplicate table", mutate: func(c *Config) {
			tbl := TableConfig{Name: "users", Columns: []string{"id"}, PrimaryKey: "id"}
			c.Tables = []TableConfig{tbl, tbl}
		}},
		{name: "table pk not a column", mutate: func(c *Config) {
			c.Tables = []TableConfig{{Name: "users", Columns: []string{"name"}, PrimaryKey: "id"}}
		}},
		{name: "unknown log level", mutate: func(c *Config) { c.Log.Level = "loud" }},
		{name: "unknown log format", mutate: func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseDurationWithDays(t *testing.T) {
	d, err := parseDurationWithDays("14d")
	require.NoError(t, err)
	assert.Equal(t, 14*24*time.Hour, d)

	d, err = parseDurationWithDays("90s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = parseDurationWithDays("fortnight")
	assert.Error(t, err)
}
