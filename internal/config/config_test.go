package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "gpt-4", cfg.Generator.Model)
	assert.Equal(t, 30*time.Second, cfg.Generator.Timeout.Std())
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "greenprint.yaml", `
server:
  addr: ":9000"
  allowed_origins: ["https://app.example.com"]
storage:
  driver: sqlite
  sqlite_path: /tmp/gp.db
generator:
  model: gpt-4o-mini
  timeout: 12s
  id_strategy: content
survey:
  draft_ttl: 2h
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "gpt-4o-mini", cfg.Generator.Model)
	assert.Equal(t, 12*time.Second, cfg.Generator.Timeout.Std())
	assert.Equal(t, "content", cfg.Generator.IDStrategy)
	assert.Equal(t, 2*time.Hour, cfg.Survey.DraftTTL.Std())
	assert.Equal(t, "info", cfg.Log.Level, "unset keys keep defaults")
}

func TestLoadTOML(t *testing.T) {
	p := writeFile(t, "greenprint.toml", `
[storage]
driver = "redis"
redis_url = "redis://localhost:6379/0"

[generator]
timeout = "5s"
burst = 2
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Storage.Driver)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Storage.RedisURL)
	assert.Equal(t, 5*time.Second, cfg.Generator.Timeout.Std())
	assert.Equal(t, 2, cfg.Generator.Burst)
}

func TestEnvOverridesFile(t *testing.T) {
	p := writeFile(t, "greenprint.yml", "server:\n  addr: \":9000\"\n")
	t.Setenv("GREENPRINT_ADDR", ":7000")
	t.Setenv("GREENPRINT_OPENAI_KEY", "sk-test")
	t.Setenv("GREENPRINT_ALLOWED_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("GREENPRINT_DRAFT_TTL", "90m")
	t.Setenv("GREENPRINT_LOG_SOURCE", "true")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "sk-test", cfg.Generator.APIKey)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 90*time.Minute, cfg.Survey.DraftTTL.Std())
	assert.True(t, cfg.Log.AddSource)
}

func TestLoadRejects(t *testing.T) {
	_, err := Load(writeFile(t, "greenprint.json", "{}"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "generator:\n  timeout: soon\n"))
	assert.Error(t, err)

	t.Setenv("GREENPRINT_STORAGE", "mongo")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"log level":   func(c *Config) { c.Log.Level = "trace" },
		"log format":  func(c *Config) { c.Log.Format = "xml" },
		"secret":      func(c *Config) { c.Auth.JWTSecret = " " },
		"redis url":   func(c *Config) { c.Storage.Driver = "redis" },
		"id strategy": func(c *Config) { c.Generator.IDStrategy = "random" },
		"draft ttl":   func(c *Config) { c.Survey.DraftTTL = 0 },
		"burst":       func(c *Config) { c.Generator.Burst = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}
