// Package db opens and migrates the lexkey SQLite database.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// openPragmas are applied to every new database handle. The service keeps
// a single writer connection, so WAL mostly benefits concurrent readers,
// and the busy timeout rides out short lock contention (another process
// holding the file) instead of surfacing SQLITE_BUSY.
var openPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// Open opens the SQLite database at path. Use ":memory:" for tests.
func Open(path string) (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, pragma := range openPragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	// A single connection serializes writes and keeps an in-memory
	// database from vanishing between calls.
	sqlDB.SetMaxOpenConns(1)

	return sqlDB, nil
}
