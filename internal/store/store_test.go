package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/groupquest/internal/database"
	"github.com/playperu/groupquest/internal/migrations"
)

type counter struct {
	N int `json:"n"`
}

type backend struct {
	name string
	open func(t *testing.T, maxRetries int) Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T, maxRetries int) Store {
			return NewMemoryStore(maxRetries)
		}},
		{"sqlite", func(t *testing.T, maxRetries int) Store {
			t.Helper()
			ctx := context.Background()
			db, err := database.Open(ctx, ":memory:")
			require.NoError(t, err)
			require.NoError(t, migrations.Run(ctx, db))
			s := NewDocStore(db, maxRetries)
			t.Cleanup(func() { s.Close() })
			return s
		}},
		{"redis", func(t *testing.T, maxRetries int) Store {
			t.Helper()
			mr := miniredis.RunT(t)
			s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:", maxRetries)
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}
}

func forEachBackend(t *testing.T, maxRetries int, fn func(t *testing.T, s Store)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			fn(t, b.open(t, maxRetries))
		})
	}
}

func TestGetMissing(t *testing.T) {
	forEachBackend(t, 0, func(t *testing.T, s Store) {
		_, err := s.Get(context.Background(), "nope")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTransactCreatesAndUpdates(t *testing.T) {
	forEachBackend(t, 0, func(t *testing.T, s Store) {
		ctx := context.Background()

		got, err := Transact(ctx, s, "c/1", func(c *counter, exists bool) error {
			assert.False(t, exists)
			c.N = 1
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, got.N)

		got, err = Transact(ctx, s, "c/1", func(c *counter, exists bool) error {
			assert.True(t, exists)
			c.N++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, got.N)

		stored, err := GetJSON[counter](ctx, s, "c/1")
		require.NoError(t, err)
		assert.Equal(t, 2, stored.N)
	})
}

func TestTransactSkipLeavesDocument(t *testing.T) {
	forEachBackend(t, 0, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := Transact(ctx, s, "c/1", func(c *counter, _ bool) error {
			c.N = 5
			return nil
		})
		require.NoError(t, err)

		got, err := Transact(ctx, s, "c/1", func(c *counter, _ bool) error {
			c.N = 99
			return ErrSkip
		})
		require.NoError(t, err)
		assert.Equal(t, 5, got.N)

		_, err = Transact(ctx, s, "c/missing", func(c *counter, exists bool) error {
			return ErrSkip
		})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTransactAbortWritesNothing(t *testing.T) {
	forEachBackend(t, 0, func(t *testing.T, s Store) {
		ctx := context.Background()
		boom := errors.New("boom")

		_, err := Transact(ctx, s, "c/1", func(c *counter, _ bool) error {
			c.N = 1
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = s.Get(ctx, "c/1")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListByPrefix(t *testing.T) {
	forEachBackend(t, 0, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, k := range []string{"group/s1/2", "group/s1/1", "group/s10/1", "session/s1"} {
			_, err := Transact(ctx, s, k, func(c *counter, _ bool) error {
				c.N = len(k)
				return nil
			})
			require.NoError(t, err)
		}

		entries, err := s.List(ctx, "group/s1/")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "group/s1/1", entries[0].Key)
		assert.Equal(t, "group/s1/2", entries[1].Key)

		values, err := ListJSON[counter](ctx, s, "group/")
		require.NoError(t, err)
		assert.Len(t, values, 3)
	})
}

func TestConcurrentUpdatesAllCommit(t *testing.T) {
	forEachBackend(t, 1000, func(t *testing.T, s Store) {
		ctx := context.Background()
		const writers = 20

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := Transact(ctx, s, "c/hot", func(c *counter, _ bool) error {
					c.N++
					return nil
				})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := GetJSON[counter](ctx, s, "c/hot")
		require.NoError(t, err)
		assert.Equal(t, writers, got.N)
	})
}

func TestConflictExhaustsRetries(t *testing.T) {
	forEachBackend(t, 1, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := Transact(ctx, s, "c/1", func(c *counter, _ bool) error {
			c.N = 1
			return nil
		})
		require.NoError(t, err)

		interfered := false
		_, err = Transact(ctx, s, "c/1", func(c *counter, _ bool) error {
			if !interfered {
				interfered = true
				_, err := Transact(ctx, s, "c/1", func(c *counter, _ bool) error {
					c.N = 100
					return nil
				})
				require.NoError(t, err)
			}
			c.N++
			return nil
		})
		require.ErrorIs(t, err, ErrConflict)

		got, err := GetJSON[counter](ctx, s, "c/1")
		require.NoError(t, err)
		assert.Equal(t, 100, got.N)
	})
}
