package store

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
)

type memDoc struct {
	version uint64
	data    []byte
}

// MemoryStore keeps documents in a map. It suits single-instance
// deployments and tests. Update functions run outside the lock and commit
// only if the version they read is still current.
type MemoryStore struct {
	mu         sync.RWMutex
	docs       map[string]memDoc
	maxRetries int
}

func NewMemoryStore(maxRetries int) *MemoryStore {
	return &MemoryStore{docs: make(map[string]memDoc), maxRetries: maxRetries}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(d.data), nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for k, d := range s.docs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Entry{Key: k, Value: bytes.Clone(d.data)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, error) {
	return retry(ctx, s.maxRetries, func() ([]byte, error) {
		s.mu.RLock()
		d, exists := s.docs[key]
		s.mu.RUnlock()

		var cur []byte
		if exists {
			cur = bytes.Clone(d.data)
		}
		next, write, err := apply(fn, cur)
		if err != nil || !write {
			return next, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		now, ok := s.docs[key]
		if ok != exists || now.version != d.version {
			return nil, errRace
		}
		s.docs[key] = memDoc{version: d.version + 1, data: bytes.Clone(next)}
		return next, nil
	})
}

func (s *MemoryStore) Close() error { return nil }
