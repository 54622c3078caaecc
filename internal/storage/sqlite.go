package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// sqliteDSN enables WAL so summaries can read while the ledger flushes.
const sqliteDSN = "file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

// OpenSQLite opens the ledger file, creating its directory. The returned
// Conn has not been pinged.
func OpenSQLite(cfg SQLiteConfig) (*Conn, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultConfig().SQLite.Path
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf(sqliteDSN, path))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database %s: %w", path, err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Conn{Type: TypeSQLite, SQL: db}, nil
}
