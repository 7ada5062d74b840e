// Package config содержит логику чтения конфигурации сервиса выплат.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress      = "localhost:8080"
	defaultLogLevel        = "info"
	defaultReleaseInterval = time.Minute
)

// Config содержит параметры конфигурации сервиса выплат.
type Config struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	DatabaseURI     string        `env:"DATABASE_URI"`
	RedisAddress    string        `env:"REDIS_ADDRESS"`
	LogLevel        string        `env:"LOG_LEVEL"`
	ReleaseInterval time.Duration `env:"RELEASE_INTERVAL"`

	// Сроки удержания задаются только окружением.
	PendingHold      time.Duration `env:"PENDING_HOLD" envDefault:"360h"`
	ReserveExtraHold time.Duration `env:"RESERVE_EXTRA_HOLD" envDefault:"24h"`
	LockTTL          time.Duration `env:"LOCK_TTL" envDefault:"10s"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRedisAddress := cfg.RedisAddress
	envLogLevel := cfg.LogLevel
	envReleaseInterval := cfg.ReleaseInterval

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory store when empty")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for store locks, in-process locks when empty")
	flag.StringVar(&cfg.LogLevel, "l", defaultLogLevel, "log level")
	flag.DurationVar(&cfg.ReleaseInterval, "i", defaultReleaseInterval, "matured holds release interval")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if envLogLevel != "" {
		cfg.LogLevel = envLogLevel
	}
	if envReleaseInterval != 0 {
		cfg.ReleaseInterval = envReleaseInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	return cfg, nil
}
