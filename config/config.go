// Package config loads the server configuration: a YAML file, then
// environment overrides, then defaults and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/warp/finpath/generic"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr           string        `yaml:"addr"`
		CORSOrigins    []string      `yaml:"cors_origins"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"` // sqlite file
		URL    string `yaml:"url"`  // postgres
	} `yaml:"database"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json or console
	} `yaml:"log"`
	Game struct {
		HoldingMode generic.HoldingMode `yaml:"holding_mode"`
		Seed        *uint64             `yaml:"seed"`
		PresetsFile string              `yaml:"presets_file"`
	} `yaml:"game"`
	Auth struct {
		SessionTTL time.Duration `yaml:"session_ttl"`
		BcryptCost int           `yaml:"bcrypt_cost"`
	} `yaml:"auth"`
	Retention struct {
		History       time.Duration `yaml:"history"`
		PruneSchedule string        `yaml:"prune_schedule"`
	} `yaml:"retention"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides. A missing file is not an error; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		c.Server.Addr = port
	} else {
		c.Server.Addr = envDefault("FINPATH_ADDR", c.Server.Addr)
	}
	if v := envDefault("FINPATH_CORS_ORIGINS", ""); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	c.Database.Driver = envDefault("FINPATH_DB_DRIVER", c.Database.Driver)
	c.Database.Path = envDefault("FINPATH_DB_PATH", c.Database.Path)
	c.Database.URL = envDefault("DATABASE_URL", c.Database.URL)

	c.Log.Level = envDefault("FINPATH_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envDefault("FINPATH_LOG_FORMAT", c.Log.Format)

	c.Game.HoldingMode = generic.HoldingMode(envDefault("FINPATH_HOLDING_MODE", string(c.Game.HoldingMode)))
	c.Game.PresetsFile = envDefault("FINPATH_PRESETS", c.Game.PresetsFile)
	if v := envDefault("FINPATH_SEED", ""); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("FINPATH_SEED: %w", err)
		}
		c.Game.Seed = &seed
	}

	var err error
	if c.Auth.SessionTTL, err = envDurationDefault("FINPATH_SESSION_TTL", c.Auth.SessionTTL); err != nil {
		return err
	}
	if c.Retention.History, err = envDurationDefault("FINPATH_HISTORY_RETENTION", c.Retention.History); err != nil {
		return err
	}
	c.Retention.PruneSchedule = envDefault("FINPATH_PRUNE_SCHEDULE", c.Retention.PruneSchedule)
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 60 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Path == "" {
		c.Database.Path = "finpath.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Game.HoldingMode == "" {
		c.Game.HoldingMode = generic.HoldingWallClock
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 24 * time.Hour
	}
	if c.Retention.History == 0 {
		c.Retention.History = 90 * 24 * time.Hour
	}
	if c.Retention.PruneSchedule == "" {
		c.Retention.PruneSchedule = "@every 1h"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url (or DATABASE_URL) is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if _, err := generic.ParseHoldingMode(string(c.Game.HoldingMode)); err != nil {
		return fmt.Errorf("game.holding_mode: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Auth.SessionTTL < 0 || c.Retention.History < 0 || c.Server.RequestTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if _, err := cron.ParseStandard(c.Retention.PruneSchedule); err != nil {
		return fmt.Errorf("retention.prune_schedule: %w", err)
	}
	return nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
