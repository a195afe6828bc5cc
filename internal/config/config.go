package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, loaded from the environment.
// An empty RedisAddr selects the in-process store (single-machine play).
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	RedisAddr  string `env:"REDIS_ADDR"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"./bubbletactics.db"`

	FirstRoundDelaySecs int   `env:"FIRST_ROUND_DELAY_SECS" envDefault:"5"`
	NextRoundDelaySecs  int   `env:"NEXT_ROUND_DELAY_SECS" envDefault:"15"`
	ActionTimeLimitSecs int   `env:"ACTION_TIME_LIMIT_SECS" envDefault:"20"`
	OwnerLeaseTTLSecs   int64 `env:"OWNER_LEASE_TTL_SECS" envDefault:"30"`
	MaxRounds           int   `env:"MAX_ROUNDS" envDefault:"0"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
