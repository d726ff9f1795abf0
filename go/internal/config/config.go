// Package config loads process configuration from the environment, after
// an optional .env file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/banpick/go/internal/dbconfig"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"

	DispatcherLocal     = "local"
	DispatcherJetStream = "jetstream"
)

// Config is shared by every banpick binary. Each binary reads only the
// fields it needs.
type Config struct {
	Port       string        `env:"PORT" envDefault:"8080"`
	LogLevel   string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat  string        `env:"LOG_FORMAT" envDefault:"console"`
	Store      string        `env:"BANPICK_STORE" envDefault:"sqlite"`
	SQLitePath string        `env:"BANPICK_SQLITE_PATH" envDefault:"banpick.db"`
	NATSURL    string        `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	Dispatcher string        `env:"BANPICK_DISPATCHER" envDefault:"local"`
	Grace      time.Duration `env:"BANPICK_TIMEOUT_GRACE" envDefault:"2s"`
	Catalog    string        `env:"BANPICK_CATALOG"`
	JWTSecret  string        `env:"BANPICK_JWT_SECRET"`
	APIURL     string        `env:"BANPICK_API_URL" envDefault:"http://localhost:8080"`
	Workers    int           `env:"BANPICK_WORKERS" envDefault:"10"`

	OTELEndpoint     string        `env:"BANPICK_OTEL_ENDPOINT"`
	FallbackInterval time.Duration `env:"OUTBOX_FALLBACK_INTERVAL" envDefault:"30s"`

	DB dbconfig.Config
}

// Load reads .env if present, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	switch c.Store {
	case StorePostgres, StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("BANPICK_STORE: unknown store %q", c.Store)
	}
	switch c.Dispatcher {
	case DispatcherLocal, DispatcherJetStream:
	default:
		return fmt.Errorf("BANPICK_DISPATCHER: unknown dispatcher %q", c.Dispatcher)
	}
	if c.Grace < 0 {
		return fmt.Errorf("BANPICK_TIMEOUT_GRACE must not be negative")
	}
	return nil
}

// SetupLogging configures the global zerolog logger.
func SetupLogging(c Config) {
	if c.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
