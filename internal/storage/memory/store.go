// Package memory implements storage.Storage in process memory. It backs
// every test in this repo and is a reasonable choice for a single-process
// deployment that does not need durability across restarts.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/flowcanon/canon/internal/storage"
)

type entry struct {
	data []byte
	seq  uint64
}

// Store is a mutex-guarded map-of-maps storage.Storage adapter.
type Store struct {
	mu   sync.RWMutex
	sets map[string]map[string]entry
	next uint64
}

// New creates an empty Store.
func New() *Store {
	return &Store{sets: make(map[string]map[string]entry)}
}

var _ storage.Storage = (*Store)(nil)

func (s *Store) GetRaw(_ context.Context, set, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.sets[set]
	if !ok {
		return nil, storage.ErrNotFound
	}
	e, ok := bucket[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

func (s *Store) UpsertRaw(_ context.Context, set, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.sets[set]
	if !ok {
		bucket = make(map[string]entry)
		s.sets[set] = bucket
	}
	s.next++
	cp := make([]byte, len(data))
	copy(cp, data)
	bucket[id] = entry{data: cp, seq: s.next}
	return nil
}

func (s *Store) Delete(_ context.Context, set, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket, ok := s.sets[set]; ok {
		delete(bucket, id)
	}
	return nil
}

func (s *Store) PageRaw(_ context.Context, set string, page, pageSize int) ([][]byte, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.sets[set]
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bucket[ids[i]].seq < bucket[ids[j]].seq })

	start := (page - 1) * pageSize
	if start >= len(ids) {
		return [][]byte{}, nil
	}
	end := start + pageSize
	if end > len(ids) {
		end = len(ids)
	}
	out := make([][]byte, 0, end-start)
	for _, id := range ids[start:end] {
		e := bucket[id]
		cp := make([]byte, len(e.data))
		copy(cp, e.data)
		out = append(out, cp)
	}
	return out, nil
}

func (s *Store) Count(_ context.Context, set string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.sets[set])), nil
}
