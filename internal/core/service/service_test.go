package service_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/niksmo/pricesync/internal/adapter/storage"
	"github.com/niksmo/pricesync/internal/core/domain"
)

var fixedNow = time.Date(2025, time.March, 14, 9, 26, 53, 0, time.UTC)

func nowFn() time.Time { return fixedNow }

// spyStore counts store calls and injects failures on top of MemoryStore.
type spyStore struct {
	*storage.MemoryStore

	mu         sync.Mutex
	commits    map[string]int
	pages      map[string]int
	deletes    map[string]int
	nCommits   int
	nDeletes   int
	failCommit func(n int) error
	failDelete func(n int) error

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newSpyStore(maxBatchSize int) *spyStore {
	return &spyStore{
		MemoryStore: storage.NewMemoryStore(maxBatchSize),
		commits:     make(map[string]int),
		pages:       make(map[string]int),
		deletes:     make(map[string]int),
	}
}

func (s *spyStore) enter() func() {
	n := s.inflight.Add(1)
	for {
		m := s.maxInflight.Load()
		if n <= m || s.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	return func() { s.inflight.Add(-1) }
}

func (s *spyStore) CommitBatch(ctx context.Context, ws []domain.Write) error {
	s.mu.Lock()
	s.nCommits++
	n := s.nCommits
	if len(ws) > 0 {
		s.commits[ws[0].Path]++
	}
	fail := s.failCommit
	s.mu.Unlock()

	if fail != nil {
		if err := fail(n); err != nil {
			return err
		}
	}
	return s.MemoryStore.CommitBatch(ctx, ws)
}

func (s *spyStore) Page(
	ctx context.Context, q domain.PageQuery,
) ([]domain.DocumentRef, error) {
	defer s.enter()()
	s.mu.Lock()
	s.pages[q.Path]++
	s.mu.Unlock()
	time.Sleep(time.Millisecond)
	return s.MemoryStore.Page(ctx, q)
}

func (s *spyStore) DeleteBatch(
	ctx context.Context, path string, ids []string,
) error {
	defer s.enter()()
	s.mu.Lock()
	s.nDeletes++
	n := s.nDeletes
	s.deletes[path]++
	fail := s.failDelete
	s.mu.Unlock()

	if fail != nil {
		if err := fail(n); err != nil {
			return err
		}
	}
	return s.MemoryStore.DeleteBatch(ctx, path, ids)
}

func (s *spyStore) commitsTo(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits[path]
}

func (s *spyStore) deletesIn(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes[path]
}

func (s *spyStore) totalDeletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nDeletes
}

func (s *spyStore) seed(path string, n int, updatedAt func(i int) time.Time) {
	ws := make([]domain.Write, 0, s.MaxBatchSize())
	flush := func() {
		if len(ws) == 0 {
			return
		}
		if err := s.MemoryStore.CommitBatch(context.Background(), ws); err != nil {
			panic(err)
		}
		ws = ws[:0]
	}
	for i := range n {
		ts := fixedNow
		if updatedAt != nil {
			ts = updatedAt(i)
		}
		ws = append(ws, domain.Write{Path: path, Doc: domain.Document{
			ID:        fmt.Sprintf("doc-%05d", i),
			Fields:    map[string]any{"n": i},
			UpdatedAt: ts,
		}})
		if len(ws) == s.MaxBatchSize() {
			flush()
		}
	}
	flush()
}

func makeRecords(n int) []domain.ProductRecord {
	rs := make([]domain.ProductRecord, n)
	for i := range rs {
		rs[i] = domain.ProductRecord{
			SKU: fmt.Sprintf("sku-%05d", i),
			Attributes: map[string]any{
				"buyer_sku_code": fmt.Sprintf("sku-%05d", i),
				"price":          float64(1000 + i),
			},
		}
	}
	return rs
}

type MockCatalogFetcher struct {
	mock.Mock
}

func (m *MockCatalogFetcher) FetchCatalog(
	ctx context.Context, creds domain.Credentials,
) ([]domain.ProductRecord, error) {
	args := m.Called(ctx, creds)
	rs, _ := args.Get(0).([]domain.ProductRecord)
	return rs, args.Error(1)
}

type MockProductsUpserter struct {
	mock.Mock
}

func (m *MockProductsUpserter) UpsertAll(
	ctx context.Context, rs []domain.ProductRecord,
) (int, error) {
	args := m.Called(ctx, rs)
	return args.Int(0), args.Error(1)
}

type MockStatusDispatcher struct {
	mock.Mock
}

func (m *MockStatusDispatcher) DispatchStatus(
	ctx context.Context, e domain.WebhookEvent,
) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}
