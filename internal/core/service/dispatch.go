package service

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/internal/core/port"
)

var (
	_ port.StatusDispatcher = (*StatusStore)(nil)
	_ port.StatusDispatcher = (Dispatchers)(nil)
)

type documentsUpserter interface {
	Upsert(ctx context.Context, path string, docs []domain.Document) error
}

// StatusStore keeps the latest status of every transaction keyed by ref_id.
type StatusStore struct {
	writer documentsUpserter
	path   string
}

func NewStatusStore(writer documentsUpserter, path string) StatusStore {
	if writer == nil {
		panic("NewStatusStore: writer is nil") // develop mistake
	}
	if path == "" {
		path = DefaultTxStatusPath
	}
	return StatusStore{writer: writer, path: path}
}

func (s StatusStore) DispatchStatus(
	ctx context.Context, e domain.WebhookEvent,
) error {
	const op = "StatusStore.DispatchStatus"

	fields := maps.Clone(e.Raw)
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	fields["receivedAt"] = e.ReceivedAt

	doc := domain.Document{
		ID:        e.Status.RefID,
		Fields:    fields,
		UpdatedAt: e.ReceivedAt,
	}
	if err := s.writer.Upsert(ctx, s.path, []domain.Document{doc}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Dispatchers hands an event to every dispatcher, even after a failure.
type Dispatchers []port.StatusDispatcher

func (ds Dispatchers) DispatchStatus(
	ctx context.Context, e domain.WebhookEvent,
) error {
	var errs []error
	for _, d := range ds {
		if err := d.DispatchStatus(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
