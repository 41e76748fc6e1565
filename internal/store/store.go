// Package store provides the shared document store the engine runs on.
//
// Every backend offers the same optimistic transaction: Update re-applies
// the caller's function against the latest value of one document until the
// write commits without interference, or the retry budget runs out.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when an update kept losing races and gave up.
	// Callers may retry the whole operation.
	ErrConflict = errors.New("store: too many conflicting writers")

	// ErrSkip, returned from an UpdateFunc, ends the transaction without
	// writing. Update then returns the current value and a nil error.
	ErrSkip = errors.New("store: skip write")
)

// DefaultMaxRetries bounds Update when a backend is built with zero.
const DefaultMaxRetries = 16

// UpdateFunc computes the next value of a document from its current value.
// current is nil when the document does not exist. The function may run
// several times and must not have side effects.
type UpdateFunc func(current []byte) ([]byte, error)

type Entry struct {
	Key   string
	Value []byte
}

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns every document whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Entry, error)
	Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, error)
	Close() error
}

// GetJSON loads and decodes one document.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var v T
	raw, err := s.Get(ctx, key)
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(raw, &v)
	return v, err
}

// ListJSON loads and decodes every document under prefix.
func ListJSON[T any](ctx context.Context, s Store, prefix string) ([]T, error) {
	entries, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		var v T
		if err := json.Unmarshal(e.Value, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Transact runs fn against the decoded document inside an optimistic
// transaction and returns the committed value. exists reports whether the
// document was present; fn may return ErrSkip to leave it untouched.
func Transact[T any](ctx context.Context, s Store, key string, fn func(v *T, exists bool) error) (T, error) {
	var out T
	raw, err := s.Update(ctx, key, func(cur []byte) ([]byte, error) {
		var v T
		exists := cur != nil
		if exists {
			if err := json.Unmarshal(cur, &v); err != nil {
				return nil, err
			}
		}
		if err := fn(&v, exists); err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return out, err
	}
	if raw == nil {
		return out, ErrNotFound
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}
