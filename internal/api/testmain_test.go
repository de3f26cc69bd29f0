package api

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trajectory.predict/internal/db"
	"github.com/banshee-data/trajectory.predict/internal/monitoring"
)

// migratedDB holds the bytes of an empty database at the latest schema.
// Tests start from a copy instead of migrating again.
var migratedDB []byte

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	image, err := buildMigratedDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "api tests: %v\n", err)
		os.Exit(1)
	}
	migratedDB = image
	os.Exit(m.Run())
}

func buildMigratedDB() ([]byte, error) {
	dir, err := os.MkdirTemp("", "trajectory-api-template-*")
	if err != nil {
		return nil, fmt.Errorf("create template directory: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "template.db")
	database, err := db.NewDB(path)
	if err != nil {
		return nil, fmt.Errorf("initialize template DB: %w", err)
	}
	defer database.Close()

	latest, err := db.LatestMigrationVersion()
	if err != nil {
		return nil, err
	}
	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return nil, err
	}
	if dirty || version != latest {
		return nil, fmt.Errorf("template DB at version %d (dirty=%v), want %d", version, dirty, latest)
	}

	// Fold the WAL into the main file so one file holds the whole schema.
	if _, err := database.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, fmt.Errorf("checkpoint template DB: %w", err)
	}
	if err := database.Close(); err != nil {
		return nil, fmt.Errorf("close template DB: %w", err)
	}
	return os.ReadFile(path)
}

// cloneAPITestDB writes a fresh copy of the migrated database for t.
func cloneAPITestDB(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, migratedDB, "migrated template DB not built")
	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, os.WriteFile(path, migratedDB, 0o600))
	return path
}
