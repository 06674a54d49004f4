package storage_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/scip-indexer/internal/storage"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(storage.DriverName, ":memory:")
	require.NoError(t, err)
	// Every pooled connection would get its own empty in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyMigrations(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()

	require.NoError(t, storage.ApplyMigrations(ctx, db))

	var versions []string
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version ORDER BY version")
	require.NoError(t, err)
	for rows.Next() {
		var v string
		require.NoError(t, rows.Scan(&v))
		versions = append(versions, v)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	assert.Equal(t, []string{"1.0.0", storage.CurrentSchemaVersion}, versions)

	for _, table := range []string{"schema_version", "runs", "events"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}

	// Columns added by 1.1.0
	_, err = db.ExecContext(ctx, "SELECT index_path, checksum FROM runs")
	assert.NoError(t, err)
}

func TestMigrationsIdempotent(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()

	require.NoError(t, storage.ApplyMigrations(ctx, db))
	require.NoError(t, storage.ApplyMigrations(ctx, db))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&count))
	assert.Equal(t, len(storage.AllMigrations), count)
}

func TestMigrationErrorHandling(t *testing.T) {
	createVersionTable := func(t *testing.T, db *sql.DB, versions ...string) {
		t.Helper()
		_, err := db.Exec(`CREATE TABLE schema_version (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`)
		require.NoError(t, err)
		for _, v := range versions {
			_, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", v)
			require.NoError(t, err)
		}
	}

	t.Run("empty schema_version table starts from 0.0.0", func(t *testing.T) {
		db := openMemoryDB(t)
		createVersionTable(t, db)
		require.NoError(t, storage.ApplyMigrations(context.Background(), db))

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count))
		assert.Zero(t, count)
	})

	t.Run("invalid version in database", func(t *testing.T) {
		db := openMemoryDB(t)
		createVersionTable(t, db, "invalid-version")
		err := storage.ApplyMigrations(context.Background(), db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid schema version")
	})

	t.Run("newer schema than known migrations is left alone", func(t *testing.T) {
		db := openMemoryDB(t)
		createVersionTable(t, db, "1.10.0")
		require.NoError(t, storage.ApplyMigrations(context.Background(), db))

		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='runs'").Scan(&name)
		assert.ErrorIs(t, err, sql.ErrNoRows, "1.10.0 > 1.1.0 semantically, so nothing runs")
	})
}
