package storage

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/internal/core/port"
)

var _ port.DocumentStore = (*MemoryStore)(nil)

// MemoryStore keeps documents in process memory.
// Used by the "memory" storage driver and by tests.
type MemoryStore struct {
	mu           sync.RWMutex
	paths        map[string]map[string]domain.Document
	maxBatchSize int
}

func NewMemoryStore(maxBatchSize int) *MemoryStore {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &MemoryStore{
		paths:        make(map[string]map[string]domain.Document),
		maxBatchSize: maxBatchSize,
	}
}

func (s *MemoryStore) MaxBatchSize() int {
	return s.maxBatchSize
}

func (s *MemoryStore) CommitBatch(ctx context.Context, ws []domain.Write) error {
	const op = "MemoryStore.CommitBatch"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := checkBatch(ws, s.maxBatchSize); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range ws {
		docs, ok := s.paths[w.Path]
		if !ok {
			docs = make(map[string]domain.Document)
			s.paths[w.Path] = docs
		}
		docs[w.Doc.ID] = domain.Document{
			ID:        w.Doc.ID,
			Fields:    maps.Clone(w.Doc.Fields),
			UpdatedAt: w.Doc.UpdatedAt,
		}
	}
	return nil
}

func (s *MemoryStore) Page(
	ctx context.Context, q domain.PageQuery,
) ([]domain.DocumentRef, error) {
	const op = "MemoryStore.Page"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("%s: %w: limit %d", op, domain.ErrInvalidArgument, q.Limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.paths[q.Path]
	ids := slices.Sorted(maps.Keys(docs))

	refs := make([]domain.DocumentRef, 0, min(q.Limit, len(ids)))
	for _, id := range ids {
		if q.After != nil && id <= q.After.ID {
			continue
		}
		d := docs[id]
		if !q.Window.Contains(d.UpdatedAt) {
			continue
		}
		refs = append(refs, domain.DocumentRef{ID: id, UpdatedAt: d.UpdatedAt})
		if len(refs) == q.Limit {
			break
		}
	}
	return refs, nil
}

func (s *MemoryStore) DeleteBatch(
	ctx context.Context, path string, ids []string,
) error {
	const op = "MemoryStore.DeleteBatch"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(ids) > s.maxBatchSize {
		return fmt.Errorf("%s: %w", op, ErrBatchTooLarge)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.paths[path]
	for _, id := range ids {
		delete(docs, id)
	}
	if len(docs) == 0 {
		delete(s.paths, path)
	}
	return nil
}

func (s *MemoryStore) Get(
	ctx context.Context, path, id string,
) (domain.Document, error) {
	const op = "MemoryStore.Get"

	if err := ctx.Err(); err != nil {
		return domain.Document{}, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.paths[path][id]
	if !ok {
		return domain.Document{}, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	d.Fields = maps.Clone(d.Fields)
	return d, nil
}

// Len returns the number of documents stored under path.
func (s *MemoryStore) Len(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.paths[path])
}
