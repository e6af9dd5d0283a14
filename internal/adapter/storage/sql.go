package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/internal/core/port"
	_ "modernc.org/sqlite"
)

var _ port.DocumentStore = (*SQLStore)(nil)

// sqliteSchema is applied on open. Postgres is migrated by cmd/migrator.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT   NOT NULL,
	id         TEXT   NOT NULL,
	data       TEXT   NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (path, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_path_updated_at
	ON documents (path, updated_at);
`

type documentRow struct {
	ID        string `db:"id"`
	Data      string `db:"data"`
	UpdatedAt int64  `db:"updated_at"`
}

type refRow struct {
	ID        string `db:"id"`
	UpdatedAt int64  `db:"updated_at"`
}

// SQLStore keeps documents in a single "documents" table keyed by
// (path, id). Fields are stored as JSON text.
type SQLStore struct {
	db           *sqlx.DB
	maxBatchSize int
}

// OpenSQL opens a store over driverName ("pgx" or "sqlite").
func OpenSQL(
	ctx context.Context, driverName, dsn string, maxBatchSize int,
) (*SQLStore, error) {
	const op = "OpenSQL"
	log := slog.With("op", op, "driver", driverName)

	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}

	connStr := dsn
	if driverName == "pgx" {
		connConfig, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		connStr = stdlib.RegisterConnConfig(connConfig)
	}

	db, err := sqlx.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if driverName == "sqlite" {
		// every :memory: connection is a distinct database
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db, maxBatchSize: maxBatchSize}
	if err := s.db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: database is unavailable: %w", op, err)
	}

	if driverName == "sqlite" {
		if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: failed to ensure schema: %w", op, err)
		}
	}

	log.Info("database is available")
	return s, nil
}

func (s *SQLStore) MaxBatchSize() int {
	return s.maxBatchSize
}

func (s *SQLStore) CommitBatch(
	ctx context.Context, ws []domain.Write,
) (commitErr error) {
	const op = "SQLStore.CommitBatch"
	log := slog.With("op", op)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := checkBatch(ws, s.maxBatchSize); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(ws) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to begin tx: %w", op, classify(err))
	}

	defer func() {
		if commitErr == nil {
			if err := tx.Commit(); err != nil {
				commitErr = fmt.Errorf("%s: failed to commit: %w", op, classify(err))
			}
			return
		}

		if err := tx.Rollback(); err != nil {
			log.Error("failed to rollback tx", "err", err)
		}
	}()

	query := s.db.Rebind(`
		INSERT INTO documents (path, id, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (path, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`)

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%s: failed to prepare stmt: %w", op, classify(err))
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			log.Error("failed to close prepared stmt", "err", err)
		}
	}()

	for _, w := range ws {
		data, err := json.Marshal(w.Doc.Fields)
		if err != nil {
			return fmt.Errorf("%s: %w: %w", op, domain.ErrInvalidArgument, err)
		}
		_, err = stmt.ExecContext(ctx,
			w.Path, w.Doc.ID, string(data), toMicros(w.Doc.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("%s: failed to exec: %w", op, classify(err))
		}
	}

	return nil
}

func (s *SQLStore) Page(
	ctx context.Context, q domain.PageQuery,
) ([]domain.DocumentRef, error) {
	const op = "SQLStore.Page"

	if q.Limit <= 0 {
		return nil, fmt.Errorf("%s: %w: limit %d", op, domain.ErrInvalidArgument, q.Limit)
	}

	var b strings.Builder
	args := []any{q.Path}
	b.WriteString("SELECT id, updated_at FROM documents WHERE path = ?")
	if q.After != nil {
		b.WriteString(" AND id > ?")
		args = append(args, q.After.ID)
	}
	if !q.Window.From.IsZero() {
		b.WriteString(" AND updated_at >= ?")
		args = append(args, toMicros(q.Window.From))
	}
	if !q.Window.To.IsZero() {
		b.WriteString(" AND updated_at < ?")
		args = append(args, toMicros(q.Window.To))
	}
	b.WriteString(" ORDER BY id LIMIT ?")
	args = append(args, q.Limit)

	var rows []refRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	refs := make([]domain.DocumentRef, len(rows))
	for i, r := range rows {
		refs[i] = domain.DocumentRef{ID: r.ID, UpdatedAt: fromMicros(r.UpdatedAt)}
	}
	return refs, nil
}

func (s *SQLStore) DeleteBatch(
	ctx context.Context, path string, ids []string,
) error {
	const op = "SQLStore.DeleteBatch"

	if len(ids) == 0 {
		return nil
	}
	if len(ids) > s.maxBatchSize {
		return fmt.Errorf("%s: %w", op, ErrBatchTooLarge)
	}

	query, args, err := sqlx.In(
		"DELETE FROM documents WHERE path = ? AND id IN (?)", path, ids,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return nil
}

func (s *SQLStore) Get(
	ctx context.Context, path, id string,
) (domain.Document, error) {
	const op = "SQLStore.Get"

	var row documentRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		"SELECT id, data, updated_at FROM documents WHERE path = ? AND id = ?",
	), path, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Document{}, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		return domain.Document{}, fmt.Errorf("%s: %w", op, classify(err))
	}

	d := domain.Document{ID: row.ID, UpdatedAt: fromMicros(row.UpdatedAt)}
	if err := json.Unmarshal([]byte(row.Data), &d.Fields); err != nil {
		return domain.Document{}, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

func (s *SQLStore) Close() {
	const op = "SQLStore.Close"
	log := slog.With("op", op)

	log.Info("closing sql database...")

	if err := s.db.Close(); err != nil {
		log.Error("failed to close", "err", err)
		return
	}
	log.Info("sql database is closed")
}

// classify marks connection-level failures as retryable network errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var (
		netErr  net.Error
		connErr *pgconn.ConnectError
	)
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.As(err, &netErr),
		errors.As(err, &connErr),
		pgconn.SafeToRetry(err):
		return fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	return err
}

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}
