// Package dbtest opens a migrated throwaway sqlite database for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"nalanda-backend/internal/platform/config"
	"nalanda-backend/internal/platform/db"
)

func Dialect() db.Dialect { return db.DialectFor(config.DriverSQLite) }

func Open(t testing.TB) *sql.DB {
	t.Helper()
	conn, err := db.Connect(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.Migrate(context.Background(), conn, Dialect()))
	return conn
}
