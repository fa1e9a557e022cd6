//go:build integration

package migrate

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = $1
		)
	`, name).Scan(&exists)
	require.NoError(t, err)
	return exists
}

func TestMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:15",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() { _ = pgContainer.Terminate(ctx) }()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	t.Run("Run applies migrations", func(t *testing.T) {
		require.NoError(t, Run(db))
		require.True(t, tableExists(t, db, "platform_accounts"), "platform_accounts table should exist")
		require.True(t, tableExists(t, db, "interaction_logs"), "interaction_logs table should exist")
	})

	t.Run("Version returns current version", func(t *testing.T) {
		version, dirty, err := Version(db)
		require.NoError(t, err)
		require.False(t, dirty)
		require.Equal(t, uint(2), version)
	})

	t.Run("Run is idempotent", func(t *testing.T) {
		require.NoError(t, Run(db))

		version, dirty, err := Version(db)
		require.NoError(t, err)
		require.False(t, dirty)
		require.Equal(t, uint(2), version)
	})

	t.Run("Down rolls back migrations", func(t *testing.T) {
		require.NoError(t, Down(db))
		require.False(t, tableExists(t, db, "platform_accounts"), "platform_accounts should not exist after down")
		require.False(t, tableExists(t, db, "interaction_logs"), "interaction_logs should not exist after down")
	})

	t.Run("Steps applies n migrations", func(t *testing.T) {
		require.NoError(t, Steps(db, 1))

		version, _, err := Version(db)
		require.NoError(t, err)
		require.Equal(t, uint(1), version)
		require.True(t, tableExists(t, db, "platform_accounts"))
		require.False(t, tableExists(t, db, "interaction_logs"))

		require.NoError(t, Steps(db, 1))

		version, _, err = Version(db)
		require.NoError(t, err)
		require.Equal(t, uint(2), version)
	})
}
