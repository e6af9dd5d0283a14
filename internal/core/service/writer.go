package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/internal/core/port"
	"github.com/niksmo/pricesync/pkg/retry"
)

var (
	_ port.ProductsUpserter = (*ProductsWriter)(nil)
	_ port.SyncStatusReader = (*ProductsWriter)(nil)
)

type WriterConfig struct {
	// BatchSize is capped by the store MaxBatchSize; zero means the cap.
	BatchSize    int
	ProductsPath string
	StatusPath   string
	StatusID     string
	Retry        retry.RetryConfig
	Now          func() time.Time
}

// ProductsWriter replaces catalog records in fixed-size batches and
// publishes SyncStatus only after every batch landed.
type ProductsWriter struct {
	store     port.DocumentStore
	cfg       WriterConfig
	clock     clock
	batchSize int
}

func NewProductsWriter(store port.DocumentStore, cfg WriterConfig) ProductsWriter {
	if store == nil {
		panic("NewProductsWriter: store is nil") // develop mistake
	}
	if cfg.ProductsPath == "" {
		cfg.ProductsPath = DefaultProductsPath
	}
	if cfg.StatusPath == "" {
		cfg.StatusPath = DefaultStatusPath
	}
	if cfg.StatusID == "" {
		cfg.StatusID = DefaultStatusID
	}

	batchSize := store.MaxBatchSize()
	if batchSize <= 0 {
		panic("NewProductsWriter: store max batch size must be positive") // develop mistake
	}
	if cfg.BatchSize > 0 && cfg.BatchSize < batchSize {
		batchSize = cfg.BatchSize
	}

	return ProductsWriter{
		store:     store,
		cfg:       cfg,
		clock:     cfg.Now,
		batchSize: batchSize,
	}
}

func (w ProductsWriter) BatchSize() int {
	return w.batchSize
}

// UpsertAll writes records keyed by SKU and then the SyncStatus singleton.
func (w ProductsWriter) UpsertAll(
	ctx context.Context, records []domain.ProductRecord,
) (int, error) {
	const op = "ProductsWriter.UpsertAll"
	log := slog.With("op", op)

	if err := ctxErr(ctx, op); err != nil {
		return 0, err
	}

	now := w.clock.now()
	docs := make([]domain.Document, len(records))
	for i, r := range records {
		if r.SKU == "" {
			return 0, fmt.Errorf("%s: %w: record %d has empty sku",
				op, domain.ErrInvalidArgument, i)
		}
		fields := maps.Clone(r.Attributes)
		if fields == nil {
			fields = make(map[string]any, 1)
		}
		fields["syncedAt"] = now
		docs[i] = domain.Document{ID: r.SKU, Fields: fields, UpdatedAt: now}
	}

	if err := w.Upsert(ctx, w.cfg.ProductsPath, docs); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	status := domain.Write{
		Path: w.cfg.StatusPath,
		Doc: domain.Document{
			ID: w.cfg.StatusID,
			Fields: map[string]any{
				"lastSync":     now,
				"productCount": len(records),
			},
			UpdatedAt: now,
		},
	}
	err := retry.Do(ctx, w.cfg.Retry, func() error {
		return w.store.CommitBatch(ctx, []domain.Write{status})
	})
	if err != nil {
		return 0, fmt.Errorf("%s: failed to update sync status: %w", op, err)
	}

	log.Info("catalog written", "nProducts", len(records))
	return len(records), nil
}

// Upsert replaces docs under path, one batch after another.
// A failed batch stops the write with [*domain.PartialWriteError].
func (w ProductsWriter) Upsert(
	ctx context.Context, path string, docs []domain.Document,
) error {
	const op = "ProductsWriter.Upsert"
	log := slog.With("op", op, "path", path)

	total := (len(docs) + w.batchSize - 1) / w.batchSize

	for i := 0; i < total; i++ {
		start := i * w.batchSize
		end := min(start+w.batchSize, len(docs))

		ws := make([]domain.Write, 0, end-start)
		for _, d := range docs[start:end] {
			ws = append(ws, domain.Write{Path: path, Doc: d})
		}

		err := retry.Do(ctx, w.cfg.Retry, func() error {
			return w.store.CommitBatch(ctx, ws)
		})
		if err != nil {
			log.Error("batch failed", "batch", i+1, "total", total, "err", err)
			return fmt.Errorf("%s: %w", op, &domain.PartialWriteError{
				Committed: i,
				Total:     total,
				Err:       err,
			})
		}
	}
	return nil
}

func (w ProductsWriter) Status(ctx context.Context) (domain.SyncStatus, error) {
	const op = "ProductsWriter.Status"

	doc, err := w.store.Get(ctx, w.cfg.StatusPath, w.cfg.StatusID)
	if err != nil {
		return domain.SyncStatus{}, fmt.Errorf("%s: %w", op, err)
	}

	return domain.SyncStatus{
		LastSync:     doc.UpdatedAt,
		ProductCount: toInt(doc.Fields["productCount"]),
	}, nil
}
