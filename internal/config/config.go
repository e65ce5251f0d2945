// Package config provides configuration for the curio backend: typed
// sections with defaults, YAML file loading, environment variable overlays,
// and hot reloading in development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the root configuration.
type Config struct {
	Environment Environment `yaml:"environment" validate:"oneof=development staging production"`

	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Bucket   Bucket   `yaml:"bucket"`
	Cache    Cache    `yaml:"cache"`
	Session  Session  `yaml:"session"`
	Logging  Logging  `yaml:"logging"`
	Metrics  Metrics  `yaml:"metrics"`

	// LoadedFrom records which sources contributed, for startup logging.
	LoadedFrom []string `yaml:"-"`
}

// Server configures the HTTP listener.
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Database configures the DynamoDB table holding all entities.
type Database struct {
	TableName string `yaml:"table_name" validate:"required"`
	IndexName string `yaml:"index_name" validate:"required"`
	Region    string `yaml:"region" validate:"required"`
	// Endpoint overrides the AWS endpoint, for local development.
	Endpoint string `yaml:"endpoint"`

	// Breaker settings guard the table against cascading failures.
	BreakerMaxFailures uint32        `yaml:"breaker_max_failures"`
	BreakerTimeout     time.Duration `yaml:"breaker_timeout"`
}

// Bucket configures the object store.
type Bucket struct {
	Endpoint  string `yaml:"endpoint" validate:"required"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Name      string `yaml:"name" validate:"required"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Cache holds per-domain entity cache capacities. A zero value falls back to
// Default.
type Cache struct {
	Default  int `yaml:"default" validate:"gte=0"`
	Objects  int `yaml:"objects" validate:"gte=0"`
	Posts    int `yaml:"posts" validate:"gte=0"`
	Sessions int `yaml:"sessions" validate:"gte=0"`
	Tags     int `yaml:"tags" validate:"gte=0"`
	Users    int `yaml:"users" validate:"gte=0"`
}

// Session configures login session lifetimes.
type Session struct {
	MaxAge time.Duration `yaml:"max_age" validate:"gt=0"`
}

// Logging configures the zap logger.
type Logging struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port" validate:"gt=0,lte=65535"`
	Path    string `yaml:"path"`
}

var validate = validator.New()

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Environment: getEnvironment(),
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: Database{
			TableName:          "curio",
			IndexName:          "GSI1",
			Region:             "us-east-1",
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
		Bucket: Bucket{
			Endpoint: "localhost:9000",
			Name:     "curio-objects",
		},
		Cache: Cache{
			Default: 10_000,
		},
		Session: Session{
			MaxAge: 30 * 24 * time.Hour,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Metrics: Metrics{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

func getEnvironment() Environment {
	switch os.Getenv("CURIO_ENV") {
	case "production":
		return Production
	case "staging":
		return Staging
	default:
		return Development
	}
}
