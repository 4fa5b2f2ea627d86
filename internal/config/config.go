package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the process bootstrap configuration aggregated from env/config
// files. Operator-editable settings live in the settings store instead.
type Config struct {
	Server struct {
		Addr      string
		PublicDir string
	}
	Data struct {
		Dir string
	}
	History struct {
		Backend string
		DBPath  string
	}
	Tools struct {
		Mktorrent string
		Mediainfo string
	}
	Timeouts struct {
		Request time.Duration
		Process time.Duration
		Inspect time.Duration
	}
	Jobs struct {
		MaxConcurrent int
		Retention     time.Duration
	}
	Auth struct {
		JWTSecret    string
		PasswordHash string
		TokenTTL     time.Duration
	}
	Log struct {
		Level  string
		Format string
	}
}

const (
	HistoryJSON   = "json"
	HistorySQLite = "sqlite"
)

// SettingsPath is where the runtime settings document is stored.
func (c Config) SettingsPath() string { return filepath.Join(c.Data.Dir, "config.json") }

// HistoryPath is the JSON history document used by the json backend.
func (c Config) HistoryPath() string { return filepath.Join(c.Data.Dir, "history.json") }

// Load reads configuration from environment variables and an optional config
// file. An empty file searches the working directory for config.{yaml,json,toml}.
func Load(file string) (Config, error) {
	// .env never overrides variables already set in the environment.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("AATM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:3000")
	v.SetDefault("server.publicdir", "public")
	v.SetDefault("data.dir", "data")
	v.SetDefault("history.backend", HistoryJSON)
	v.SetDefault("history.dbpath", "")
	v.SetDefault("tools.mktorrent", "mktorrent")
	v.SetDefault("tools.mediainfo", "mediainfo")
	v.SetDefault("timeouts.request", 20*time.Second)
	v.SetDefault("timeouts.process", time.Duration(0))
	v.SetDefault("timeouts.inspect", 2*time.Minute)
	v.SetDefault("jobs.maxconcurrent", 2)
	v.SetDefault("jobs.retention", time.Hour)
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.passwordhash", "")
	v.SetDefault("auth.tokenttl", 12*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		_ = v.ReadInConfig() // optional file
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.History.Backend = strings.ToLower(strings.TrimSpace(c.History.Backend))
	switch c.History.Backend {
	case HistoryJSON:
	case HistorySQLite:
		if c.History.DBPath == "" {
			c.History.DBPath = filepath.Join(c.Data.Dir, "history.db")
		}
	default:
		return fmt.Errorf("unsupported history backend %q", c.History.Backend)
	}
	if c.Jobs.MaxConcurrent <= 0 {
		return fmt.Errorf("jobs.maxconcurrent must be positive, got %d", c.Jobs.MaxConcurrent)
	}
	if strings.TrimSpace(c.Data.Dir) == "" {
		return fmt.Errorf("data.dir is required")
	}
	return nil
}
