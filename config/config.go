package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port      string `mapstructure:"port"`
		StaticDir string `mapstructure:"static_dir"`
	} `mapstructure:"server"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Match struct {
		DefaultRoomCode string `mapstructure:"default_room_code"`
		SeedBound       int    `mapstructure:"seed_bound"`
		DedupeRequests  bool   `mapstructure:"dedupe_requests"`
		StrictRelay     bool   `mapstructure:"strict_relay"`
	} `mapstructure:"match"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.static_dir", "public")
	v.SetDefault("log.level", "info")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("match.default_room_code", "default")
	v.SetDefault("match.seed_bound", 1000000)
	v.SetDefault("match.dedupe_requests", false)
	v.SetDefault("match.strict_relay", false)
}

// Load reads the YAML file at path (a missing file falls back to defaults),
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DUEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT is the conventional hosting override and wins over DUEL_SERVER_PORT.
	_ = v.BindEnv("server.port", "PORT", "DUEL_SERVER_PORT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Port) == "" {
		errs = append(errs, errors.New("server.port must not be empty"))
	}
	if c.Match.SeedBound <= 0 {
		errs = append(errs, fmt.Errorf("match.seed_bound must be positive, got %d", c.Match.SeedBound))
	}
	if c.Match.DefaultRoomCode == "" {
		errs = append(errs, errors.New("match.default_room_code must not be empty"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis.enabled is set"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address handed to http.Server.
func (c Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Server.Port, ":")
}
