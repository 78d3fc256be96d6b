package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, yamlContent string) {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Change to temp directory so Load() finds config.yaml
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	writeTestConfig(t, `
port: "8084"
env: "test"
database:
  host: "warehouse.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
pipeline:
  workers: 2
`)

	os.Unsetenv("PGHOST")
	t.Setenv("PORT", "9090")
	t.Setenv("PIPELINE_WORKERS", "8")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("expected Port=9090 (from env), got %s", cfg.Port)
	}
	if cfg.Pipeline.Workers != 8 {
		t.Errorf("expected Workers=8 (from env), got %d", cfg.Pipeline.Workers)
	}
	if cfg.Database.Host != "warehouse.example.com" {
		t.Errorf("expected Host from YAML, got %s", cfg.Database.Host)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
}

func TestLoad_Defaults(t *testing.T) {
	writeTestConfig(t, `
database:
  host: "localhost"
  database: "airline_analytics"
`)

	for _, key := range []string{"PORT", "PIPELINE_WORKERS", "PIPELINE_STORAGE_TIMEOUT", "CUSTOMER_TRACKED_ATTRIBUTES"} {
		os.Unsetenv(key)
	}

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Pipeline.Workers != 4 {
		t.Errorf("expected default Workers=4, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.StorageTimeout != 10*time.Second {
		t.Errorf("expected default StorageTimeout=10s, got %v", cfg.Pipeline.StorageTimeout)
	}
	if got := cfg.Pipeline.CustomerTrackedAttributes; len(got) != 2 || got[0] != "loyalty_tier" || got[1] != "email" {
		t.Errorf("expected default customer tracked attributes [loyalty_tier email], got %v", got)
	}
}

func TestValidate_RejectsBadConfig(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database: DatabaseConfig{Host: "localhost", Database: "airline_analytics"},
			Pipeline: PipelineConfig{
				Workers:                   4,
				StorageTimeout:            time.Second,
				CustomerTrackedAttributes: []string{"loyalty_tier", "email"},
				AirportTrackedAttributes:  []string{"airport_name"},
			},
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database host", func(c *Config) { c.Database.Host = "" }},
		{"missing database name", func(c *Config) { c.Database.Database = "" }},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"negative merge retries", func(c *Config) { c.Pipeline.MergeMaxRetries = -1 }},
		{"zero storage timeout", func(c *Config) { c.Pipeline.StorageTimeout = 0 }},
		{"empty customer tracked set", func(c *Config) { c.Pipeline.CustomerTrackedAttributes = nil }},
		{"empty airport tracked set", func(c *Config) { c.Pipeline.AirportTrackedAttributes = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}

	if err := base().Validate(); err != nil {
		t.Errorf("expected valid base config, got %v", err)
	}
}

func TestConnectionString(t *testing.T) {
	dbCfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "aerolake",
		Password: "secret",
		Database: "airline_analytics",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=aerolake password=secret dbname=airline_analytics sslmode=disable"
	if got := dbCfg.ConnectionString(); got != expected {
		t.Errorf("ConnectionString() = %q, want %q", got, expected)
	}
}
