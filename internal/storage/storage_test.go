package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T, path string) *Conn {
	t.Helper()
	conn, err := Open(context.Background(), Config{Type: TypeSQLite, SQLite: SQLiteConfig{Path: path}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestOpen_SQLite(t *testing.T) {
	conn := openTestSQLite(t, filepath.Join(t.TempDir(), "nested", "ledger.db"))

	assert.Equal(t, TypeSQLite, conn.Type)
	require.NotNil(t, conn.SQL)
	assert.Nil(t, conn.Pool)
	assert.Nil(t, conn.Mongo)

	var mode string
	require.NoError(t, conn.SQL.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
	assert.NoError(t, conn.Ping(context.Background()))
}

func TestSQLite_ConcurrentWritesAndReads(t *testing.T) {
	db := openTestSQLite(t, filepath.Join(t.TempDir(), "ledger.db")).SQL
	_, err := db.Exec(`CREATE TABLE ledger (id TEXT PRIMARY KEY, provider TEXT)`)
	require.NoError(t, err)

	const writers, perWriter = 8, 40
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)

	// Flushes from the ledger logger race with summary reads.
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := db.Exec(`INSERT INTO ledger (id, provider) VALUES (?, ?)`, fmt.Sprintf("%d/%d", w, i), "openai"); err != nil {
					errs <- err
					continue
				}
				var n int
				if err := db.QueryRow(`SELECT COUNT(*) FROM ledger`).Scan(&n); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ledger`).Scan(&count))
	assert.Equal(t, writers*perWriter, count)
}

func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"unknown type", Config{Type: "cassandra"}, "unknown storage type: cassandra"},
		{"postgresql without url", Config{Type: TypePostgreSQL}, "PostgreSQL URL is required"},
		{"mongodb without url", Config{Type: TypeMongoDB}, "MongoDB URL is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConn_Close(t *testing.T) {
	conn, err := OpenSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "ledger.db")})
	require.NoError(t, err)

	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
	assert.Error(t, conn.Ping(context.Background()))

	assert.Error(t, (&Conn{}).Ping(context.Background()))
	assert.NoError(t, (&Conn{}).Close())
}
