// Package config loads server settings from defaults, an optional YAML or
// TOML file and GREENPRINT_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/soaringjerry/greenprint/internal/utils"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Generator GeneratorConfig `yaml:"generator" toml:"generator"`
	Survey    SurveyConfig    `yaml:"survey" toml:"survey"`
}

type ServerConfig struct {
	Addr            string   `yaml:"addr" toml:"addr"`
	AllowedOrigins  []string `yaml:"allowed_origins" toml:"allowed_origins"`
	StaticDir       string   `yaml:"static_dir" toml:"static_dir"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

type LogConfig struct {
	Level     string `yaml:"level" toml:"level"`
	Format    string `yaml:"format" toml:"format"` // json or text
	AddSource bool   `yaml:"add_source" toml:"add_source"`
}

type AuthConfig struct {
	JWTSecret string   `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL  Duration `yaml:"token_ttl" toml:"token_ttl"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver" toml:"driver"`
	SQLitePath    string `yaml:"sqlite_path" toml:"sqlite_path"`
	MigrationsDir string `yaml:"migrations_dir" toml:"migrations_dir"`
	RedisURL      string `yaml:"redis_url" toml:"redis_url"`
	RedisPrefix   string `yaml:"redis_prefix" toml:"redis_prefix"`
}

type GeneratorConfig struct {
	BaseURL    string   `yaml:"base_url" toml:"base_url"`
	APIKey     string   `yaml:"api_key" toml:"api_key"`
	Model      string   `yaml:"model" toml:"model"`
	Timeout    Duration `yaml:"timeout" toml:"timeout"`
	RatePerMin float64  `yaml:"rate_per_min" toml:"rate_per_min"`
	Burst      int      `yaml:"burst" toml:"burst"`
	IDStrategy string   `yaml:"id_strategy" toml:"id_strategy"`
}

type SurveyConfig struct {
	DraftTTL Duration `yaml:"draft_ttl" toml:"draft_ttl"`
}

// Duration accepts Go duration strings such as "30s" in YAML and TOML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Log:  LogConfig{Level: "info", Format: "json"},
		Auth: AuthConfig{JWTSecret: "greenprint-dev-secret", TokenTTL: Duration(30 * 24 * time.Hour)},
		Storage: StorageConfig{
			Driver:      "memory",
			SQLitePath:  "greenprint.db",
			RedisPrefix: "greenprint:",
		},
		Generator: GeneratorConfig{
			BaseURL:    "https://api.openai.com",
			Model:      "gpt-4",
			Timeout:    Duration(30 * time.Second),
			RatePerMin: 30,
			Burst:      5,
			IDStrategy: "source",
		},
		Survey: SurveyConfig{DraftTTL: Duration(24 * time.Hour)},
	}
}

// Load returns defaults overlaid with the file at path (if any) and the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config file %q (want .yaml, .yml or .toml)", path)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = utils.SafeEnv("GREENPRINT_ADDR", c.Server.Addr)
	if v := utils.SafeEnv("GREENPRINT_ALLOWED_ORIGINS", ""); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	c.Server.StaticDir = utils.SafeEnv("GREENPRINT_STATIC_DIR", c.Server.StaticDir)
	c.Server.ShutdownTimeout = Duration(utils.SafeEnvDuration("GREENPRINT_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout.Std()))

	c.Log.Level = utils.SafeEnv("GREENPRINT_LOG_LEVEL", c.Log.Level)
	c.Log.Format = utils.SafeEnv("GREENPRINT_LOG_FORMAT", c.Log.Format)
	c.Log.AddSource = utils.SafeEnvBool("GREENPRINT_LOG_SOURCE", c.Log.AddSource)

	c.Auth.JWTSecret = utils.SafeEnv("GREENPRINT_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.TokenTTL = Duration(utils.SafeEnvDuration("GREENPRINT_TOKEN_TTL", c.Auth.TokenTTL.Std()))

	c.Storage.Driver = utils.SafeEnv("GREENPRINT_STORAGE", c.Storage.Driver)
	c.Storage.SQLitePath = utils.SafeEnv("GREENPRINT_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.MigrationsDir = utils.SafeEnv("GREENPRINT_MIGRATIONS_DIR", c.Storage.MigrationsDir)
	c.Storage.RedisURL = utils.SafeEnv("GREENPRINT_REDIS_URL", c.Storage.RedisURL)
	c.Storage.RedisPrefix = utils.SafeEnv("GREENPRINT_REDIS_PREFIX", c.Storage.RedisPrefix)

	c.Generator.BaseURL = utils.SafeEnv("GREENPRINT_OPENAI_BASE", c.Generator.BaseURL)
	c.Generator.APIKey = utils.SafeEnv("GREENPRINT_OPENAI_KEY", c.Generator.APIKey)
	c.Generator.Model = utils.SafeEnv("GREENPRINT_OPENAI_MODEL", c.Generator.Model)
	c.Generator.Timeout = Duration(utils.SafeEnvDuration("GREENPRINT_OPENAI_TIMEOUT", c.Generator.Timeout.Std()))
	c.Generator.RatePerMin = utils.SafeEnvFloat("GREENPRINT_OPENAI_RATE_PER_MIN", c.Generator.RatePerMin)
	c.Generator.Burst = utils.SafeEnvInt("GREENPRINT_OPENAI_BURST", c.Generator.Burst)
	c.Generator.IDStrategy = utils.SafeEnv("GREENPRINT_INSIGHT_IDS", c.Generator.IDStrategy)

	c.Survey.DraftTTL = Duration(utils.SafeEnvDuration("GREENPRINT_DRAFT_TTL", c.Survey.DraftTTL.Std()))
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			return fmt.Errorf("storage.sqlite_path is required for sqlite")
		}
	case "redis":
		if strings.TrimSpace(c.Storage.RedisURL) == "" {
			return fmt.Errorf("storage.redis_url is required for redis")
		}
	default:
		return fmt.Errorf("storage.driver must be memory, sqlite or redis")
	}
	if c.Generator.Timeout < 0 || c.Generator.RatePerMin < 0 || c.Generator.Burst < 0 {
		return fmt.Errorf("generator timeout, rate and burst must not be negative")
	}
	switch c.Generator.IDStrategy {
	case "source", "content":
	default:
		return fmt.Errorf("generator.id_strategy must be source or content")
	}
	if c.Survey.DraftTTL <= 0 {
		return fmt.Errorf("survey.draft_ttl must be positive")
	}
	return nil
}
