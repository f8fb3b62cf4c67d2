package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Config holds the environment-driven settings for the client core.
type Config struct {
	AppName     string        `env:"APP_NAME" envDefault:"Voluntree"`
	Env         string        `env:"ENV" envDefault:"DEV"`
	APIBaseURL  string        `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
	DataDir     string        `env:"DATA_DIR" envDefault:"./data"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
	MockPort    string        `env:"MOCK_PORT" envDefault:"8080"`
	MockSecret  string        `env:"MOCK_SECRET" envDefault:"voluntree-dev-secret"`
}

// New parses configuration from the environment.
func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "[config.New] parse env")
	}
	return cfg, nil
}

// IsDev reports whether the client is running against a development environment.
func (c *Config) IsDev() bool {
	return c.Env == "DEV"
}
