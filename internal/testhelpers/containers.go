package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresImage is the engine image used by integration tests. MERGE needs 15+.
const PostgresImage = "postgres:16-alpine"

// PostgresContainer holds a shared PostgreSQL container.
type PostgresContainer struct {
	Container testcontainers.Container
	ConnStr   string
}

var (
	sharedPostgres     *PostgresContainer
	sharedPostgresOnce sync.Once
	sharedPostgresErr  error
)

// GetPostgres returns a PostgreSQL container shared by every test in the run.
func GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedPostgresOnce.Do(func() {
		sharedPostgres, sharedPostgresErr = setupPostgres()
	})

	if sharedPostgresErr != nil {
		t.Fatalf("Failed to start postgres container: %v", sharedPostgresErr)
	}

	return sharedPostgres
}

func setupPostgres() (*PostgresContainer, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "warehouse",
			"POSTGRES_USER":     "crmsync",
			"POSTGRES_PASSWORD": "test_password",
		},
		// the server restarts once after init; wait for the second ready line
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

	connStr := fmt.Sprintf("postgres://crmsync:test_password@%s:%s/warehouse?sslmode=disable",
		host, port.Port())

	return &PostgresContainer{Container: container, ConnStr: connStr}, nil
}
