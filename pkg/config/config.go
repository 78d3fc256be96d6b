package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for aerolake-etl.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration for the read-only reporting surface
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8084"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL warehouse)
	Database DatabaseConfig `yaml:"database"`

	// Pipeline configuration
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DatabaseConfig holds PostgreSQL warehouse configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"aerolake"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"airline_analytics"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`

	// MigrationsPath is the directory holding SQL migration files.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// PipelineConfig holds batch pipeline settings.
type PipelineConfig struct {
	// SourcePath is the NDJSON file the batch reads raw records from.
	SourcePath string `yaml:"source_path" env:"SOURCE_PATH" env-default:""`

	// Workers is the number of concurrent merge/upsert workers.
	Workers int `yaml:"workers" env:"PIPELINE_WORKERS" env-default:"4"`

	// MergeMaxRetries bounds re-reads after a concurrent merge conflict on
	// the same business key before the entity is reported as failed.
	MergeMaxRetries int `yaml:"merge_max_retries" env:"PIPELINE_MERGE_MAX_RETRIES" env-default:"3"`

	// StorageTimeout is the per-operation timeout applied to each logical
	// unit of warehouse work (one merge, one upsert, one audit query).
	StorageTimeout time.Duration `yaml:"storage_timeout" env:"PIPELINE_STORAGE_TIMEOUT" env-default:"10s"`

	// RunInterval is how often the scheduler re-runs the batch.
	RunInterval time.Duration `yaml:"run_interval" env:"PIPELINE_RUN_INTERVAL" env-default:"15m"`

	// CustomerTrackedAttributes is the set of customer attributes whose drift
	// creates a new dimension version. All other attributes load on first
	// sighting only. This set is deliberately explicit configuration rather
	// than an implicit property of the merge code.
	CustomerTrackedAttributes []string `yaml:"customer_tracked_attributes" env:"CUSTOMER_TRACKED_ATTRIBUTES" env-separator:"," env-default:"loyalty_tier,email"`

	// AirportTrackedAttributes is the tracked set for the airport dimension.
	AirportTrackedAttributes []string `yaml:"airport_tracked_attributes" env:"AIRPORT_TRACKED_ATTRIBUTES" env-separator:"," env-default:"airport_name,city,country,timezone"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config. An invalid configuration is fatal: the pipeline must not
// run with a partial config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks settings the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline workers must be >= 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.MergeMaxRetries < 0 {
		return fmt.Errorf("merge_max_retries must be >= 0, got %d", c.Pipeline.MergeMaxRetries)
	}
	if c.Pipeline.StorageTimeout <= 0 {
		return fmt.Errorf("storage_timeout must be positive, got %v", c.Pipeline.StorageTimeout)
	}
	if len(c.Pipeline.CustomerTrackedAttributes) == 0 {
		return fmt.Errorf("customer_tracked_attributes must not be empty")
	}
	if len(c.Pipeline.AirportTrackedAttributes) == 0 {
		return fmt.Errorf("airport_tracked_attributes must not be empty")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
