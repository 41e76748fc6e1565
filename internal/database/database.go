// Package database opens the libSQL database behind the sqlite document store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/go-libsql"
)

const memoryPath = ":memory:"

// Open connects to the database at path, creating its directory if needed.
// File databases run in WAL mode so readers never block the conditional
// writes of the document store. An in-memory database is pinned to one
// connection, otherwise each pooled connection would see its own empty
// database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	pragmas := []string{"PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"}
	if path != memoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		pragmas = append([]string{"PRAGMA journal_mode=WAL"}, pragmas...)
	}

	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	if path == memoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := applyPragmas(ctx, db, pragmas); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// applyPragmas drains each pragma through QueryContext; libSQL rejects Exec
// for statements that return rows.
func applyPragmas(ctx context.Context, db *sql.DB, pragmas []string) error {
	for _, p := range pragmas {
		rows, err := db.QueryContext(ctx, p)
		if err != nil {
			return fmt.Errorf("executing %s: %w", p, err)
		}
		rows.Close()
	}
	return nil
}
