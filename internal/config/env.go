package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ServerEnv is the runtime configuration of cmd/server. Command line flags
// take precedence over these values.
type ServerEnv struct {
	Addr       string `env:"DISHRUSH_ADDR"        envDefault:":8080"`
	WorldID    string `env:"DISHRUSH_WORLD_ID"    envDefault:"world_1"`
	Seed       int64  `env:"DISHRUSH_SEED"        envDefault:"1337"`
	ConfigDir  string `env:"DISHRUSH_CONFIG_DIR"  envDefault:"./configs"`
	DataDir    string `env:"DISHRUSH_DATA_DIR"    envDefault:"./data"`
	TuningPath string `env:"DISHRUSH_TUNING_PATH"`

	DisableDB   bool `env:"DISHRUSH_DISABLE_DB"`
	EnablePprof bool `env:"DISHRUSH_ENABLE_PPROF"`

	SignalQueue     int           `env:"DISHRUSH_SIGNAL_QUEUE"     envDefault:"4096"`
	ShutdownTimeout time.Duration `env:"DISHRUSH_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func LoadServerEnv() (ServerEnv, error) {
	var cfg ServerEnv
	if err := ParseEnv(&cfg); err != nil {
		return ServerEnv{}, err
	}
	if cfg.SignalQueue <= 0 {
		return ServerEnv{}, fmt.Errorf("parse env: DISHRUSH_SIGNAL_QUEUE must be > 0, got %d", cfg.SignalQueue)
	}
	return cfg, nil
}
