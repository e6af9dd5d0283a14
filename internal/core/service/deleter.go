package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/internal/core/port"
	"github.com/niksmo/pricesync/pkg/retry"
)

var (
	_ port.LogsPurger       = (*Deleter)(nil)
	_ port.UserDataResetter = (*Deleter)(nil)
)

type DeleterConfig struct {
	PageSize int
	// PagePause is slept between pages; zero only yields the scheduler.
	PagePause       time.Duration
	LogsPath        string
	UserRoot        string
	UserCollections []string
	Retry           retry.RetryConfig
}

// Deleter empties collections page by page. Jobs on the same path never
// overlap: an identical request joins the running job, a different window
// waits for it.
type Deleter struct {
	store port.DocumentStore
	cfg   DeleterConfig
	jobs  *singleflight.Group
}

func NewDeleter(store port.DocumentStore, cfg DeleterConfig) Deleter {
	if store == nil {
		panic("NewDeleter: store is nil") // develop mistake
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	cfg.PageSize = min(cfg.PageSize, store.MaxBatchSize())
	if cfg.LogsPath == "" {
		cfg.LogsPath = DefaultLogsPath
	}
	if cfg.UserRoot == "" {
		cfg.UserRoot = DefaultUserRoot
	}
	if len(cfg.UserCollections) == 0 {
		cfg.UserCollections = DefaultUserCollections
	}
	return Deleter{store: store, cfg: cfg, jobs: new(singleflight.Group)}
}

type deleteJob struct {
	window domain.TimeWindow
	report domain.DeleteReport
}

// DeleteAll removes every document directly under path.
func (d Deleter) DeleteAll(
	ctx context.Context, path string, pageSize int,
) (domain.DeleteReport, error) {
	return d.DeleteWindow(ctx, path, pageSize, domain.TimeWindow{})
}

// DeleteWindow removes documents under path updated inside window.
//
// The job runs detached from ctx, which bounds only this caller's wait.
// Callers joining the job are not aborted when the first one gives up.
func (d Deleter) DeleteWindow(
	ctx context.Context, path string, pageSize int, window domain.TimeWindow,
) (domain.DeleteReport, error) {
	const op = "Deleter.DeleteWindow"

	if path == "" {
		return domain.DeleteReport{}, fmt.Errorf(
			"%s: %w: empty path", op, domain.ErrInvalidArgument,
		)
	}
	if pageSize <= 0 || pageSize > d.store.MaxBatchSize() {
		return domain.DeleteReport{Path: path}, fmt.Errorf(
			"%s: %w: page size %d out of range [1, %d]",
			op, domain.ErrInvalidArgument, pageSize, d.store.MaxBatchSize(),
		)
	}

	if err := ctxErr(ctx, op); err != nil {
		return domain.DeleteReport{Path: path}, err
	}

	jobCtx := context.WithoutCancel(ctx)
	for {
		ch := d.jobs.DoChan(path, func() (any, error) {
			report, err := d.run(jobCtx, path, pageSize, window)
			return deleteJob{window: window, report: report}, err
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return domain.DeleteReport{Path: path}, ctxErr(ctx, op)
		case res = <-ch:
		}

		job := res.Val.(deleteJob)
		if sameWindow(job.window, window) {
			return job.report, res.Err
		}
	}
}

func (d Deleter) run(
	ctx context.Context, path string, pageSize int, window domain.TimeWindow,
) (domain.DeleteReport, error) {
	const op = "Deleter.run"
	log := slog.With("op", op, "path", path)

	report := domain.DeleteReport{Path: path}
	var after *domain.DocumentRef

	for {
		q := domain.PageQuery{
			Path:   path,
			After:  after,
			Limit:  pageSize,
			Window: window,
		}
		refs, err := retry.DoWithResult(ctx, d.cfg.Retry,
			func() ([]domain.DocumentRef, error) {
				return d.store.Page(ctx, q)
			},
		)
		if err != nil {
			return report, fmt.Errorf(
				"%s: failed to fetch page %d: %w", op, report.Pages+1, err,
			)
		}
		if len(refs) == 0 {
			break
		}

		ids := make([]string, len(refs))
		for i, ref := range refs {
			ids[i] = ref.ID
		}
		err = retry.Do(ctx, d.cfg.Retry, func() error {
			return d.store.DeleteBatch(ctx, path, ids)
		})
		if err != nil {
			return report, fmt.Errorf(
				"%s: failed to delete page %d: %w", op, report.Pages+1, err,
			)
		}
		report.Pages++
		report.Deleted += len(ids)

		last := refs[len(refs)-1]
		after = &last

		if err := d.yield(ctx); err != nil {
			return report, fmt.Errorf("%s: %w", op, err)
		}
	}

	if report.Deleted > 0 {
		log.Info("collection cleared",
			"pages", report.Pages, "deleted", report.Deleted)
	}
	return report, nil
}

func (d Deleter) yield(ctx context.Context) error {
	runtime.Gosched()
	if d.cfg.PagePause <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d.cfg.PagePause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PurgeLogs removes sync logs written inside window.
func (d Deleter) PurgeLogs(
	ctx context.Context, window domain.TimeWindow,
) (domain.DeleteReport, error) {
	const op = "Deleter.PurgeLogs"

	if !window.From.IsZero() && !window.To.IsZero() && !window.From.Before(window.To) {
		return domain.DeleteReport{}, fmt.Errorf(
			"%s: %w: window start must precede its end",
			op, domain.ErrInvalidArgument,
		)
	}

	report, err := d.DeleteWindow(ctx, d.cfg.LogsPath, d.cfg.PageSize, window)
	if err != nil {
		return report, fmt.Errorf("%s: %w", op, err)
	}
	return report, nil
}

// ResetUserData empties every per-user collection, one after another.
// Reports of the collections already processed are returned with an error.
func (d Deleter) ResetUserData(
	ctx context.Context, userID string,
) ([]domain.DeleteReport, error) {
	const op = "Deleter.ResetUserData"
	log := slog.With("op", op, "userID", userID)

	if userID == "" || strings.Contains(userID, "/") {
		return nil, fmt.Errorf(
			"%s: %w: malformed user id %q", op, domain.ErrInvalidArgument, userID,
		)
	}

	reports := make([]domain.DeleteReport, 0, len(d.cfg.UserCollections))
	for _, c := range d.cfg.UserCollections {
		path := d.userPath(userID, c)
		report, err := d.DeleteAll(ctx, path, d.cfg.PageSize)
		if err != nil {
			return append(reports, report), fmt.Errorf("%s: %w", op, err)
		}
		reports = append(reports, report)
	}

	log.Info("user data reset", "collections", len(reports))
	return reports, nil
}

func (d Deleter) userPath(userID, collection string) string {
	return d.cfg.UserRoot + "/" + userID + "/" + collection
}

func sameWindow(a, b domain.TimeWindow) bool {
	return a.From.Equal(b.From) && a.To.Equal(b.To)
}
