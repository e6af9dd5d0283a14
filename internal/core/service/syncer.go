package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/internal/core/port"
)

var _ port.SyncRunner = (*Syncer)(nil)

const syncKey = "sync"

type SyncerConfig struct {
	Credentials domain.Credentials
	LogsPath    string
	Now         func() time.Time
}

// Syncer runs fetch and write as one job. Concurrent triggers share the
// running job instead of starting a new one.
type Syncer struct {
	fetcher port.CatalogFetcher
	writer  port.ProductsUpserter
	logs    port.DocumentStore
	cfg     SyncerConfig
	clock   clock
	runs    *singleflight.Group
}

// NewSyncer builds the job. logs may be nil to skip run history.
func NewSyncer(
	fetcher port.CatalogFetcher,
	writer port.ProductsUpserter,
	logs port.DocumentStore,
	cfg SyncerConfig,
) Syncer {
	if fetcher == nil || writer == nil {
		panic("NewSyncer: fetcher and writer are required") // develop mistake
	}
	if cfg.LogsPath == "" {
		cfg.LogsPath = DefaultLogsPath
	}
	return Syncer{
		fetcher: fetcher,
		writer:  writer,
		logs:    logs,
		cfg:     cfg,
		clock:   cfg.Now,
		runs:    new(singleflight.Group),
	}
}

// RunSync never returns an error: every failure ends up in the result.
func (s Syncer) RunSync(ctx context.Context) domain.SyncResult {
	v, _, shared := s.runs.Do(syncKey, func() (any, error) {
		return s.run(ctx), nil
	})
	res := v.(domain.SyncResult)
	res.Shared = shared
	return res
}

func (s Syncer) run(ctx context.Context) (res domain.SyncResult) {
	const op = "Syncer.run"

	res = domain.SyncResult{
		RunID:     uuid.NewString(),
		StartedAt: s.clock.now(),
	}
	log := slog.With("op", op, "runID", res.RunID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("sync panicked", "panic", r)
			res.Success = false
			res.ProductCount = 0
			res.Error = "sync failed"
		}
		res.FinishedAt = s.clock.now()
		s.record(ctx, res)
	}()

	records, err := s.fetcher.FetchCatalog(ctx, s.cfg.Credentials)
	if err != nil {
		log.Error("failed to fetch catalog", "err", err)
		res.Error = failureMessage(err)
		return res
	}

	n, err := s.writer.UpsertAll(ctx, records)
	if err != nil {
		log.Error("failed to write catalog", "err", err)
		res.Error = failureMessage(err)
		return res
	}

	res.Success = true
	res.ProductCount = n
	log.Info("sync completed", "nProducts", n)
	return res
}

// record stores run history; its failure never changes the result.
func (s Syncer) record(ctx context.Context, res domain.SyncResult) {
	const op = "Syncer.record"

	if s.logs == nil {
		return
	}

	fields := map[string]any{
		"success":      res.Success,
		"productCount": res.ProductCount,
		"startedAt":    res.StartedAt,
		"finishedAt":   res.FinishedAt,
	}
	if res.Error != "" {
		fields["error"] = res.Error
	}

	err := s.logs.CommitBatch(context.WithoutCancel(ctx), []domain.Write{{
		Path: s.cfg.LogsPath,
		Doc: domain.Document{
			ID:        res.RunID,
			Fields:    fields,
			UpdatedAt: res.StartedAt,
		},
	}})
	if err != nil {
		slog.Warn("failed to record sync run",
			"op", op, "runID", res.RunID, "err", err)
	}
}

// failureMessage is the part of a failure shown to operators.
// Provider payloads and secrets never leak into it.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return "sync is not configured: provider credentials are missing"
	case errors.Is(err, domain.ErrSchemaMismatch):
		return "provider returned an unexpected catalog format"
	case errors.Is(err, domain.ErrNetwork):
		return "pricing provider is unreachable"
	case errors.Is(err, domain.ErrPartialWrite):
		var pwe *domain.PartialWriteError
		if errors.As(err, &pwe) {
			return fmt.Sprintf(
				"catalog written partially (%d of %d batches), run sync again",
				pwe.Committed, pwe.Total,
			)
		}
		return "catalog written partially, run sync again"
	case errors.Is(err, domain.ErrFetchFailed):
		var fe *domain.FetchError
		if errors.As(err, &fe) {
			return fmt.Sprintf("pricing provider answered with status %d", fe.StatusCode)
		}
		return "pricing provider request failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "sync was interrupted"
	}
	return "sync failed"
}
