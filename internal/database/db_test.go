package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildConnectionString(t *testing.T) {
	connStr := buildConnectionString("/data/ledger.db", ProfileLedger)
	assert.Contains(t, connStr, "/data/ledger.db?_pragma=journal_mode(WAL)")
	assert.Contains(t, connStr, "&_pragma=synchronous(FULL)")
	assert.Contains(t, connStr, "&_pragma=foreign_keys(1)")

	cache := buildConnectionString("file:cache?mode=memory&cache=shared", ProfileCache)
	assert.Contains(t, cache, "cache=shared&_pragma=journal_mode(WAL)")
	assert.Contains(t, cache, "synchronous(OFF)")
}

func TestNewAndMigrate(t *testing.T) {
	for _, name := range []string{NameConfig, NameLedger, NameHistory, NameClientData} {
		t.Run(name, func(t *testing.T) {
			db, err := New(Config{
				Path: filepath.Join(t.TempDir(), name+".db"),
				Name: name,
			})
			require.NoError(t, err)
			defer db.Close()

			require.NoError(t, db.Migrate())
			// Schemas are idempotent
			require.NoError(t, db.Migrate())

			assert.NoError(t, db.QuickCheck(context.Background()))
			assert.Equal(t, name, db.Name())

			stats, err := db.GetStats()
			require.NoError(t, err)
			assert.Greater(t, stats.PageCount, int64(0))
		})
	}
}

func TestSchemaFor_Unknown(t *testing.T) {
	_, err := SchemaFor("universe")
	assert.Error(t, err)
}

func TestWithTransaction(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "config.db"), Name: NameConfig})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	insert := func(tx *sql.Tx, key string) error {
		_, err := tx.Exec("INSERT INTO settings (key, value, updated_at) VALUES (?, 'x', 0)", key)
		return err
	}

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error { return insert(tx, "committed") })
	require.NoError(t, err)

	boom := errors.New("boom")
	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if err := insert(tx, "rolled_back"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_ = insert(tx, "panicked")
		panic("unexpected")
	})
	assert.ErrorContains(t, err, "panic in transaction")

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM settings").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWALCheckpoint(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "history.db"), Name: NameHistory})
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.WALCheckpoint(""))
	assert.NoError(t, db.WALCheckpoint("PASSIVE"))
	assert.Error(t, db.WALCheckpoint("DROP TABLE"))
}
