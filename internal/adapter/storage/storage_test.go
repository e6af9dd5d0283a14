package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) port.DocumentStore {
		return NewMemoryStore(5)
	})
}

func TestSQLStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) port.DocumentStore {
		s, err := OpenSQL(t.Context(), "sqlite", ":memory:", 5)
		require.NoError(t, err)
		t.Cleanup(s.Close)
		return s
	})
}

func TestFirestoreStore(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST is not set")
	}
	runStoreContract(t, func(t *testing.T) port.DocumentStore {
		s, err := OpenFirestore(t.Context(), "pricesync-test", 5)
		require.NoError(t, err)
		t.Cleanup(s.Close)
		return s
	})
}

func TestOpen(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		s, err := Open(t.Context(), Options{Driver: "memory"})
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, DefaultMaxBatchSize, s.MaxBatchSize())
	})

	t.Run("SQLite", func(t *testing.T) {
		s, err := Open(t.Context(), Options{
			Driver: "sqlite", DSN: ":memory:", MaxBatchSize: 100,
		})
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, 100, s.MaxBatchSize())
	})

	t.Run("UnknownDriver", func(t *testing.T) {
		_, err := Open(t.Context(), Options{Driver: "mongo"})
		assert.ErrorIs(t, err, ErrUnknownDriver)
	})

	t.Run("FirestoreWithoutProject", func(t *testing.T) {
		_, err := Open(t.Context(), Options{Driver: "firestore"})
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})
}

// runStoreContract checks behavior every driver must share.
// newStore must return an empty store with max batch size 5.
func runStoreContract(
	t *testing.T, newStore func(t *testing.T) port.DocumentStore,
) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var path string

	doc := func(id string, i int) domain.Write {
		return domain.Write{Path: path, Doc: domain.Document{
			ID:        id,
			Fields:    map[string]any{"n": float64(i), "name": id},
			UpdatedAt: base.Add(time.Duration(i) * time.Hour),
		}}
	}

	t.Run("ReplaceNotMerge", func(t *testing.T) {
		s := newStore(t)
		path = uniquePath(t)
		ctx := t.Context()

		first := doc("a", 1)
		first.Doc.Fields["stale"] = "yes"
		require.NoError(t, s.CommitBatch(ctx, []domain.Write{first}))
		require.NoError(t, s.CommitBatch(ctx, []domain.Write{doc("a", 2)}))

		got, err := s.Get(ctx, path, "a")
		require.NoError(t, err)
		assert.Equal(t, "a", got.ID)
		assert.Equal(t, float64(2), got.Fields["n"])
		assert.NotContains(t, got.Fields, "stale")
		assert.True(t, got.UpdatedAt.Equal(base.Add(2*time.Hour)))
	})

	t.Run("GetNotFound", func(t *testing.T) {
		s := newStore(t)
		path = uniquePath(t)
		_, err := s.Get(t.Context(), path, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("BatchLimit", func(t *testing.T) {
		s := newStore(t)
		path = uniquePath(t)
		ws := make([]domain.Write, 6)
		for i := range ws {
			ws[i] = doc(fmt.Sprintf("d%d", i), i)
		}
		assert.ErrorIs(t, s.CommitBatch(t.Context(), ws), ErrBatchTooLarge)
		assert.Equal(t, 5, s.MaxBatchSize())
	})

	t.Run("EmptyID", func(t *testing.T) {
		s := newStore(t)
		path = uniquePath(t)
		err := s.CommitBatch(t.Context(), []domain.Write{doc("", 1)})
		assert.ErrorIs(t, err, ErrEmptyID)
	})

	t.Run("PagesInIdentityOrder", func(t *testing.T) {
		s := newStore(t)
		path = uniquePath(t)
		ctx := t.Context()
		require.NoError(t, s.CommitBatch(ctx, []domain.Write{
			doc("c", 0), doc("a", 1), doc("e", 2), doc("b", 3), doc("d", 4),
		}))

		var (
			ids   []string
			after *domain.DocumentRef
		)
		for {
			refs, err := s.Page(ctx, domain.PageQuery{Path: path, After: after, Limit: 2})
			require.NoError(t, err)
			if len(refs) == 0 {
				break
			}
			for _, r := range refs {
				ids = append(ids, r.ID)
			}
			after = &refs[len(refs)-1]
		}
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)
	})

	t.Run("PageWindow", func(t *testing.T) {
		s := newStore(t)
		path = uniquePath(t)
		ctx := t.Context()
		require.NoError(t, s.CommitBatch(ctx, []domain.Write{
			doc("a", 0), doc("b", 1), doc("c", 2), doc("d", 3),
		}))

		refs, err := s.Page(ctx, domain.PageQuery{
			Path:  path,
			Limit: 5,
			Window: domain.TimeWindow{
				From: base.Add(time.Hour),
				To:   base.Add(3 * time.Hour),
			},
		})
		require.NoError(t, err)
		require.Len(t, refs, 2)
		assert.Equal(t, "b", refs[0].ID)
		assert.Equal(t, "c", refs[1].ID)
	})

	t.Run("PageInvalidLimit", func(t *testing.T) {
		s := newStore(t)
		path = uniquePath(t)
		_, err := s.Page(t.Context(), domain.PageQuery{Path: path})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("DeleteBatch", func(t *testing.T) {
		s := newStore(t)
		path = uniquePath(t)
		ctx := t.Context()
		require.NoError(t, s.CommitBatch(ctx, []domain.Write{
			doc("a", 0), doc("b", 1), doc("c", 2),
		}))

		require.NoError(t, s.DeleteBatch(ctx, path, []string{"a", "c", "zz"}))
		require.NoError(t, s.DeleteBatch(ctx, path, nil))

		refs, err := s.Page(ctx, domain.PageQuery{Path: path, Limit: 5})
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, "b", refs[0].ID)
	})

	t.Run("PathsAreIsolated", func(t *testing.T) {
		s := newStore(t)
		path = uniquePath(t)
		ctx := t.Context()
		other := domain.Write{Path: path + "/u1/goals", Doc: domain.Document{
			ID: "a", Fields: map[string]any{}, UpdatedAt: base,
		}}
		require.NoError(t, s.CommitBatch(ctx, []domain.Write{doc("a", 0), other}))
		require.NoError(t, s.DeleteBatch(ctx, path, []string{"a"}))

		_, err := s.Get(ctx, other.Path, "a")
		assert.NoError(t, err)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		s := newStore(t)
		path = uniquePath(t)
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		assert.Error(t, s.CommitBatch(ctx, []domain.Write{doc("a", 0)}))
	})
}

// uniquePath keeps subtests apart on drivers that share state between runs.
func uniquePath(t *testing.T) string {
	return fmt.Sprintf("contract-%s-%d",
		strings.ReplaceAll(t.Name(), "/", "-"), time.Now().UnixNano())
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))

	tests := []struct {
		name    string
		err     error
		network bool
	}{
		{"BadConn", driver.ErrBadConn, true},
		{"Dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, true},
		{"PgConnect", &pgconn.ConnectError{Config: &pgconn.Config{}}, true},
		{"Wrapped", fmt.Errorf("begin: %w", driver.ErrBadConn), true},
		{"Constraint", errors.New("duplicate key"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.network, errors.Is(err, domain.ErrNetwork))
		})
	}
}
