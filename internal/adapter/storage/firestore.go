package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/internal/core/port"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ port.DocumentStore = (*FirestoreStore)(nil)

// updatedAtField holds domain.Document.UpdatedAt inside every Firestore
// document so that windowed pages can filter on it.
const updatedAtField = "updatedAt"

type FirestoreStore struct {
	client       *firestore.Client
	maxBatchSize int
}

// OpenFirestore connects to projectID using application default
// credentials unless opts override them, or to FIRESTORE_EMULATOR_HOST when
// it is set.
func OpenFirestore(
	ctx context.Context, projectID string, maxBatchSize int, opts ...option.ClientOption,
) (*FirestoreStore, error) {
	const op = "OpenFirestore"

	if projectID == "" {
		return nil, fmt.Errorf("%s: %w: project id is empty", op, domain.ErrConfiguration)
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	slog.Info("firestore client is ready", "op", op, "project", projectID)
	return NewFirestoreStore(client, maxBatchSize), nil
}

func NewFirestoreStore(client *firestore.Client, maxBatchSize int) *FirestoreStore {
	if maxBatchSize <= 0 || maxBatchSize > DefaultMaxBatchSize {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &FirestoreStore{client: client, maxBatchSize: maxBatchSize}
}

func (s *FirestoreStore) MaxBatchSize() int {
	return s.maxBatchSize
}

func (s *FirestoreStore) CommitBatch(ctx context.Context, ws []domain.Write) error {
	const op = "FirestoreStore.CommitBatch"

	if err := checkBatch(ws, s.maxBatchSize); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(ws) == 0 {
		return nil
	}

	err := s.client.RunTransaction(ctx,
		func(ctx context.Context, tx *firestore.Transaction) error {
			for _, w := range ws {
				ref := s.client.Collection(w.Path).Doc(w.Doc.ID)
				if err := tx.Set(ref, toFirestore(w.Doc)); err != nil {
					return err
				}
			}
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classifyRPC(err))
	}
	return nil
}

func (s *FirestoreStore) Page(
	ctx context.Context, q domain.PageQuery,
) ([]domain.DocumentRef, error) {
	const op = "FirestoreStore.Page"

	if q.Limit <= 0 {
		return nil, fmt.Errorf("%s: %w: limit %d", op, domain.ErrInvalidArgument, q.Limit)
	}

	query := s.client.Collection(q.Path).Query
	if q.Window.IsZero() {
		query = query.OrderBy(firestore.DocumentID, firestore.Asc)
		if q.After != nil {
			query = query.StartAfter(q.After.ID)
		}
	} else {
		// range filters require the filtered field to lead the ordering
		if !q.Window.From.IsZero() {
			query = query.Where(updatedAtField, ">=", q.Window.From)
		}
		if !q.Window.To.IsZero() {
			query = query.Where(updatedAtField, "<", q.Window.To)
		}
		query = query.
			OrderBy(updatedAtField, firestore.Asc).
			OrderBy(firestore.DocumentID, firestore.Asc)
		if q.After != nil {
			query = query.StartAfter(q.After.UpdatedAt, q.After.ID)
		}
	}

	snaps, err := query.Limit(q.Limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classifyRPC(err))
	}

	refs := make([]domain.DocumentRef, len(snaps))
	for i, snap := range snaps {
		refs[i] = domain.DocumentRef{ID: snap.Ref.ID, UpdatedAt: updatedAt(snap)}
	}
	return refs, nil
}

func (s *FirestoreStore) DeleteBatch(
	ctx context.Context, path string, ids []string,
) error {
	const op = "FirestoreStore.DeleteBatch"

	if len(ids) == 0 {
		return nil
	}
	if len(ids) > s.maxBatchSize {
		return fmt.Errorf("%s: %w", op, ErrBatchTooLarge)
	}

	col := s.client.Collection(path)
	err := s.client.RunTransaction(ctx,
		func(ctx context.Context, tx *firestore.Transaction) error {
			for _, id := range ids {
				if err := tx.Delete(col.Doc(id)); err != nil {
					return err
				}
			}
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classifyRPC(err))
	}
	return nil
}

func (s *FirestoreStore) Get(
	ctx context.Context, path, id string,
) (domain.Document, error) {
	const op = "FirestoreStore.Get"

	snap, err := s.client.Collection(path).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.Document{}, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		return domain.Document{}, fmt.Errorf("%s: %w", op, classifyRPC(err))
	}

	fields := snap.Data()
	delete(fields, updatedAtField)
	return domain.Document{
		ID:        snap.Ref.ID,
		Fields:    fields,
		UpdatedAt: updatedAt(snap),
	}, nil
}

func (s *FirestoreStore) Close() {
	const op = "FirestoreStore.Close"
	log := slog.With("op", op)

	log.Info("closing firestore client...")
	if err := s.client.Close(); err != nil {
		log.Error("failed to close", "err", err)
		return
	}
	log.Info("firestore client is closed")
}

func toFirestore(d domain.Document) map[string]any {
	data := maps.Clone(d.Fields)
	if data == nil {
		data = make(map[string]any, 1)
	}
	data[updatedAtField] = d.UpdatedAt
	return data
}

func updatedAt(snap *firestore.DocumentSnapshot) time.Time {
	v, err := snap.DataAt(updatedAtField)
	if err != nil {
		return time.Time{}
	}
	t, _ := v.(time.Time)
	return t
}

func classifyRPC(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted,
		codes.ResourceExhausted:
		return fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	return err
}
