package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/aerolake/aerolake-etl/pkg/database"
)

// WarehouseTestImage is the PostgreSQL image used for integration tests.
const WarehouseTestImage = "postgres:16-alpine"

// WarehouseDB holds a shared test warehouse: one container, migrations
// applied, reused across every integration test in the run.
type WarehouseDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	sharedWarehouse     *WarehouseDB
	sharedWarehouseOnce sync.Once
	sharedWarehouseErr  error
)

// GetWarehouseDB returns the shared test warehouse, starting the container
// and running migrations on first use. Tests share the schema, so each test
// must use business keys it owns.
func GetWarehouseDB(t *testing.T) *WarehouseDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedWarehouseOnce.Do(func() {
		sharedWarehouse, sharedWarehouseErr = setupWarehouse()
	})

	if sharedWarehouseErr != nil {
		t.Fatalf("Failed to setup test warehouse: %v", sharedWarehouseErr)
	}

	return sharedWarehouse
}

func setupWarehouse() (*WarehouseDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        WarehouseTestImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "airline_analytics_test",
			"POSTGRES_USER":     "aerolake",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://aerolake:test_password@%s:%s/airline_analytics_test?sslmode=disable",
		host, port.Port())

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test warehouse: %w", err)
	}

	// golang-migrate wants database/sql, not pgx.
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, migrationsDir(), zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &WarehouseDB{
		Container: container,
		DB:        db,
		ConnStr:   connStr,
	}, nil
}

// migrationsDir locates the repo's migrations directory relative to this
// source file, so integration tests work from any package directory.
func migrationsDir() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "migrations")
}
