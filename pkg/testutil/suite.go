package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-pharmacy/pkg/database"
	"github.com/medflow/medflow-pharmacy/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite creates a new integration test suite backed by the
// shared container.
//
// Usage:
//
//	func TestLedger(t *testing.T) {
//	    testutil.SkipIfShort(t)
//	    ctx := testutil.DefaultTestContext(t)
//	    suite, err := testutil.NewIntegrationSuite(ctx)
//	    require.NoError(t, err)
//	    db := suite.SetupDatabase(t, ctx, repository.Migrations())
//	    // ... run tests against db
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		Fixtures:  NewFixtureFactory(),
		Logger:    logger.New("test", "test", "warn"),
	}, nil
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// SetupDatabase creates a fresh database for one test, applies migrations and
// drops it again when the test ends.
func (s *IntegrationSuite) SetupDatabase(t *testing.T, ctx context.Context, migrations []string) *database.DB {
	t.Helper()

	name := "t_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	if _, err := s.RawDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", name)); err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	dsn, err := s.Container.DSNFor(name)
	if err != nil {
		t.Fatalf("failed to build test dsn: %v", err)
	}

	db, err := database.NewWithDSN(dsn, s.Logger)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if err := db.Migrate(ctx, migrations); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
		if _, err := s.RawDB.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", name)); err != nil {
			t.Logf("warning: failed to drop test database %s: %v", name, err)
		}
	})

	return db
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}
