package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"unicode/utf8"
)

// DocStore keeps documents as JSONB rows in the docs table created by the
// migrations package. Each row carries a version; updates are conditional
// on the version they read, so writers on other connections or processes
// are detected and retried.
type DocStore struct {
	db         *sql.DB
	maxRetries int
}

func NewDocStore(db *sql.DB, maxRetries int) *DocStore {
	return &DocStore{db: db, maxRetries: maxRetries}
}

func (s *DocStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data) FROM docs WHERE key = ?`, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

func (s *DocStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, json(data) FROM docs WHERE substr(key, 1, ?) = ? ORDER BY key`,
		utf8.RuneCountInString(prefix), prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, err
		}
		out = append(out, Entry{Key: key, Value: []byte(data)})
	}
	return out, rows.Err()
}

func (s *DocStore) Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, error) {
	return retry(ctx, s.maxRetries, func() ([]byte, error) {
		var (
			version int64
			data    string
			cur     []byte
		)
		err := s.db.QueryRowContext(ctx,
			`SELECT version, json(data) FROM docs WHERE key = ?`, key,
		).Scan(&version, &data)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return nil, err
		default:
			cur = []byte(data)
		}

		next, write, err := apply(fn, cur)
		if err != nil || !write {
			return next, err
		}

		var result sql.Result
		if cur == nil {
			result, err = s.db.ExecContext(ctx,
				`INSERT INTO docs (key, version, data) VALUES (?, 1, jsonb(?))
				 ON CONFLICT(key) DO NOTHING`,
				key, string(next),
			)
		} else {
			result, err = s.db.ExecContext(ctx,
				`UPDATE docs SET version = version + 1, data = jsonb(?)
				 WHERE key = ? AND version = ?`,
				string(next), key, version,
			)
		}
		if err != nil {
			return nil, fmt.Errorf("writing %s: %w", key, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, errRace
		}
		return next, nil
	})
}

// Ping reports whether the underlying database is reachable.
func (s *DocStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *DocStore) Close() error { return s.db.Close() }
