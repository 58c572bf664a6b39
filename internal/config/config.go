package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port string `env:"APP_PORT" envDefault:"8080"`
	Env  string `env:"APP_ENV" envDefault:"development"`
}

type PostgresConfig struct {
	Host            string        `env:"DB_HOST"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER"`
	Password        string        `env:"DB_PASSWORD"`
	DBName          string        `env:"DB_NAME"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	MigrationsPath  string        `env:"DB_MIGRATIONS_PATH" envDefault:"migrations"`
}

type StoreConfig struct {
	// Backend selects the store implementation: memory or postgres.
	Backend string `env:"STORE_BACKEND" envDefault:"memory"`
}

type RedisConfig struct {
	// Addr enables the cross-instance event bus when set.
	Addr    string `env:"REDIS_ADDR"`
	Channel string `env:"REDIS_CHANNEL" envDefault:"order-patches"`
}

type CartConfig struct {
	LifetimeSeconds int64   `env:"CART_LIFETIME_SECONDS" envDefault:"86400"`
	TaxRate         float64 `env:"CART_TAX_RATE" envDefault:"0"`
}

type LifecycleConfig struct {
	IdempotentCancel bool `env:"LIFECYCLE_IDEMPOTENT_CANCEL" envDefault:"false"`
}

type CapabilitiesConfig struct {
	File string `env:"CAPABILITIES_FILE" envDefault:"capabilities.yaml"`
}

type Config struct {
	App          AppConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Cart         CartConfig
	Lifecycle    LifecycleConfig
	Capabilities CapabilitiesConfig
}

// Load reads an optional .env file, then parses the environment into
// the config struct.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment: %w", err)
	}
	return cfg, nil
}
