// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port           int    `env:"PORT" envDefault:"8080"`
	Host           string `env:"HOST" envDefault:"0.0.0.0"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
}

// DatabaseConfig holds database configuration settings
type DatabaseConfig struct {
	Type        string `env:"DB_TYPE" envDefault:"mongo"` // "mongo", "postgres" or "memory"
	MongoURI    string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB     string `env:"MONGO_DB" envDefault:"tavernnet"`
	PostgresURI string `env:"DATABASE_URL"`
}

// PropagationConfig tunes how active-character updates are retried.
type PropagationConfig struct {
	MaxAttempts    int           `env:"PROPAGATION_MAX_ATTEMPTS" envDefault:"5"`
	InitialBackoff time.Duration `env:"PROPAGATION_INITIAL_BACKOFF" envDefault:"100ms"`
	MaxBackoff     time.Duration `env:"PROPAGATION_MAX_BACKOFF" envDefault:"5s"`
	AttemptTimeout time.Duration `env:"PROPAGATION_ATTEMPT_TIMEOUT" envDefault:"3s"`
}

// Config holds the complete application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Propagation PropagationConfig
	Debug       bool `env:"DEBUG" envDefault:"false"`
}

// URI returns the connection string for the configured backend.
func (d DatabaseConfig) URI() string {
	if d.Type == "postgres" {
		return d.PostgresURI
	}
	return d.MongoURI
}

// Addr is the listen address of the health server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig loads a .env file if one is found, then parses the environment
// and applies defaults.
func LoadConfig() (*Config, error) {
	// Try to load .env file from multiple possible locations
	envLocations := []string{
		".env",          // Current directory
		"../../.env",    // Project root when running from cmd/engine
		"../../../.env", // Even higher directory
		filepath.Join(os.Getenv("GOPATH"), "src/tavern-net/.env"), // GOPATH location
	}

	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			break
		}
	}

	return Parse()
}

// Parse reads the configuration from the environment only.
func Parse() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Type {
	case "mongo", "memory":
	case "postgres":
		if c.Database.PostgresURI == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required when DB_TYPE is postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_TYPE %q", c.Database.Type)
	}

	p := c.Propagation
	if p.MaxAttempts < 1 {
		return fmt.Errorf("PROPAGATION_MAX_ATTEMPTS must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialBackoff <= 0 || p.MaxBackoff < p.InitialBackoff {
		return fmt.Errorf("invalid propagation backoff %s..%s", p.InitialBackoff, p.MaxBackoff)
	}
	return nil
}
