package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:""`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Interpolation struct {
		MaxPoints     int    `env:"INTERP_MAX_POINTS" envDefault:"4096"`
		MaxQueries    int    `env:"INTERP_MAX_QUERIES" envDefault:"16384"`
		DefaultKernel string `env:"INTERP_DEFAULT_KERNEL" envDefault:"thin-plate"`
		TuneMaxIters  int    `env:"INTERP_TUNE_MAX_ITERS" envDefault:"100"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		} else {
			cfg.Logging.Level = "info"
		}
	}

	return cfg, nil
}
