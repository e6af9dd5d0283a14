package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/niksmo/pricesync/internal/core/domain"
	"google.golang.org/api/option"
)

// DefaultMaxBatchSize is the per-commit write limit of Firestore, shared by
// every driver.
const DefaultMaxBatchSize = 500

const (
	DriverMemory    = "memory"
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverFirestore = "firestore"
)

var (
	ErrBatchTooLarge = errors.New("batch exceeds max batch size")
	ErrEmptyID       = errors.New("document id is empty")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

type Options struct {
	Driver           string
	DSN              string
	FirestoreProject string
	// FirestoreCredentialsFile is a service account key; empty means
	// application default credentials.
	FirestoreCredentialsFile string
	MaxBatchSize             int
}

// Store is a [port.DocumentStore] owned by the process entry point.
type Store interface {
	CommitBatch(ctx context.Context, ws []domain.Write) error
	Page(ctx context.Context, q domain.PageQuery) ([]domain.DocumentRef, error)
	DeleteBatch(ctx context.Context, path string, ids []string) error
	Get(ctx context.Context, path, id string) (domain.Document, error)
	MaxBatchSize() int
	Close()
}

// Open connects the store selected by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	const op = "storage.Open"

	var (
		s   Store
		err error
	)
	switch strings.ToLower(opts.Driver) {
	case DriverMemory, "":
		s = memoryCloser{NewMemoryStore(opts.MaxBatchSize)}
	case DriverSQLite:
		s, err = OpenSQL(ctx, "sqlite", opts.DSN, opts.MaxBatchSize)
	case DriverPostgres:
		s, err = OpenSQL(ctx, "pgx", opts.DSN, opts.MaxBatchSize)
	case DriverFirestore:
		var fsOpts []option.ClientOption
		if opts.FirestoreCredentialsFile != "" {
			fsOpts = append(fsOpts, option.WithCredentialsFile(opts.FirestoreCredentialsFile))
		}
		s, err = OpenFirestore(ctx, opts.FirestoreProject, opts.MaxBatchSize, fsOpts...)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

type memoryCloser struct {
	*MemoryStore
}

func (memoryCloser) Close() {}

func checkBatch(ws []domain.Write, max int) error {
	if len(ws) > max {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(ws), max)
	}
	for _, w := range ws {
		if w.Doc.ID == "" {
			return fmt.Errorf("%w: path %q", ErrEmptyID, w.Path)
		}
	}
	return nil
}
