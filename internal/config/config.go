package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all server configuration.
// Priority: env vars (BOTHOLOMEW_*) > config.yaml > defaults.
type Config struct {
	Server struct {
		Addr        string   `mapstructure:"addr"`
		APIPrefix   string   `mapstructure:"api_prefix"`
		CookieName  string   `mapstructure:"cookie_name"`
		CORSOrigins []string `mapstructure:"cors_origins"`
	} `mapstructure:"server"`
	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`
	Workers struct {
		Count  int      `mapstructure:"count"`
		Queues []string `mapstructure:"queues"`
	} `mapstructure:"workers"`
	Scheduler struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"scheduler"`
	Ticker struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"ticker"`
	Agents struct {
		RunnerURL     string        `mapstructure:"runner_url"`
		RetryAttempts int           `mapstructure:"retry_attempts"`
		RetryDelay    time.Duration `mapstructure:"retry_delay"`
	} `mapstructure:"agents"`
	Session struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"session"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// Load reads configuration from config.yaml (if present) and the
// environment. Missing config files are fine; every key has a default.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("BOTHOLOMEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Server.APIPrefix = "/" + strings.Trim(cfg.Server.APIPrefix, "/")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.api_prefix", "/api")
	v.SetDefault("server.cookie_name", "botholomew-session")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("db.path", "botholomew.db")
	v.SetDefault("workers.count", 5)
	v.SetDefault("workers.queues", []string{"default", "workflows"})
	v.SetDefault("scheduler.interval", time.Minute)
	v.SetDefault("ticker.interval", 15*time.Second)
	v.SetDefault("agents.runner_url", "http://localhost:8700")
	v.SetDefault("agents.retry_attempts", 3)
	v.SetDefault("agents.retry_delay", 2*time.Second)
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("log.level", "info")
}
