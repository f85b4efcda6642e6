// Package config loads the server configuration from defaults, an optional
// YAML file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrMissingDSN    = errors.New("database.dsn (DB_DSN) is not set")
	ErrMissingSecret = errors.New("auth.jwt_secret (JWT_SECRET) is not set")
)

// RateLimit bounds how many inbound events one connection may send.
type RateLimit struct {
	Burst    int           `yaml:"burst"`
	Interval time.Duration `yaml:"interval"`
}

type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`

	Database struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		Issuer    string        `yaml:"issuer"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	Chat struct {
		MaxMessageSize   int64         `yaml:"max_message_size"`
		SendBuffer       int           `yaml:"send_buffer"`
		HistoryLimit     int           `yaml:"history_limit"`
		TypingTimeout    time.Duration `yaml:"typing_timeout"`
		RoomListInterval time.Duration `yaml:"room_list_interval"`
		RateLimit        RateLimit     `yaml:"rate_limit"`
	} `yaml:"chat"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	cfg := &Config{}

	cfg.Server.Addr = ":8080"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Server.AllowedOrigins = []string{"*"}

	cfg.Database.MaxOpenConns = 25
	cfg.Database.ConnMaxLifetime = 5 * time.Minute

	cfg.Redis.Addr = "localhost:6379"

	cfg.Auth.Issuer = "go-chat-app"
	cfg.Auth.TokenTTL = 24 * time.Hour

	cfg.Chat.MaxMessageSize = 4096
	cfg.Chat.SendBuffer = 256
	cfg.Chat.TypingTimeout = 5 * time.Second
	cfg.Chat.RateLimit = RateLimit{Burst: 20, Interval: time.Second}

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = parseList(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("CHAT_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Chat.HistoryLimit = n
		}
	}
}

// Validate reports settings the server cannot start without and clamps the
// rest to usable values.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return ErrMissingDSN
	}
	if c.Auth.JWTSecret == "" {
		return ErrMissingSecret
	}

	if c.Chat.MaxMessageSize <= 0 {
		c.Chat.MaxMessageSize = 4096
	}
	if c.Chat.SendBuffer <= 0 {
		c.Chat.SendBuffer = 256
	}
	if c.Chat.HistoryLimit < 0 {
		c.Chat.HistoryLimit = 0
	}
	// burst 0 turns per-connection limiting off
	if c.Chat.RateLimit.Burst < 0 {
		c.Chat.RateLimit.Burst = 0
	}
	if c.Chat.RateLimit.Interval <= 0 {
		c.Chat.RateLimit.Interval = time.Second
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	return nil
}

func parseList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
