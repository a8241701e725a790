package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0:8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"DEBUG"`
	EstimatorURL  string `env:"ESTIMATOR_URL" envDefault:""`
	PostgresConfig
	LedgerConfig
}

func NewConfig() (*Config, error) {
	config := &Config{}

	err := env.Parse(config)
	if err != nil {
		err = fmt.Errorf("config.NewConfig: %w", err)
	}
	return config, err
}

type PostgresConfig struct {
	Conn            string `env:"POSTGRES_CONN" envDefault:"postgres://test:test@db:5432/test?sslmode=disable"`
	AutoMigrateUp   string `env:"AUTO_MIGRATE_UP" envDefault:"true"`
	AutoMigrateDown string `env:"AUTO_MIGRATE_DOWN" envDefault:"false"`
	MigrationsURL   string `env:"MIGRATIONS_URL" envDefault:"file://internal/repository/db/migrations"`
}

func NewPostgresConfig() (*PostgresConfig, error) {
	config := &PostgresConfig{}

	err := env.Parse(config)
	if err != nil {
		err = fmt.Errorf("config.NewPostgresConfig: %w", err)
	}
	return config, err
}

// LedgerConfig holds every externally injected knob of the ledger side.
// The core must run with the ledger entirely absent, so nothing here is
// required to point at a live endpoint.
type LedgerConfig struct {
	NetworksFile  string        `env:"NETWORKS_FILE" envDefault:"networks.yaml"`
	Network       string        `env:"LEDGER_NETWORK" envDefault:"local"`
	Disabled      bool          `env:"LEDGER_DISABLED" envDefault:"false"`
	ReadTimeout   time.Duration `env:"LEDGER_READ_TIMEOUT" envDefault:"12s"`
	ReadRetries   int           `env:"LEDGER_READ_RETRIES" envDefault:"2"`
	RetryAttempts int           `env:"LEDGER_RETRY_ATTEMPTS" envDefault:"5"`
	RetryDelay    time.Duration `env:"LEDGER_RETRY_DELAY" envDefault:"2s"`
	ListThrottle  time.Duration `env:"LEDGER_LIST_THROTTLE" envDefault:"3s"`
	Placeholders  int           `env:"SYNTHETIC_PLACEHOLDERS" envDefault:"3"`
	SimPath       string        `env:"LEDGER_SIM_PATH" envDefault:"tenderbridge-dev.db"`
}

func NewLedgerConfig() (*LedgerConfig, error) {
	config := &LedgerConfig{}

	err := env.Parse(config)
	if err != nil {
		err = fmt.Errorf("config.NewLedgerConfig: %w", err)
	}
	return config, err
}
