package port

import (
	"context"

	"github.com/niksmo/pricesync/internal/core/domain"
)

type closer interface {
	Close()
}

// DocumentStore is the persistence boundary shared by every operation.
//
// Implementations must be safe for concurrent use on different paths.
type DocumentStore interface {
	// CommitBatch atomically replaces every document in ws.
	// len(ws) never exceeds MaxBatchSize.
	CommitBatch(ctx context.Context, ws []domain.Write) error

	// Page returns up to q.Limit refs under q.Path in a stable identity
	// order, strictly after q.After.
	Page(ctx context.Context, q domain.PageQuery) ([]domain.DocumentRef, error)

	// DeleteBatch atomically deletes ids under path.
	DeleteBatch(ctx context.Context, path string, ids []string) error

	Get(ctx context.Context, path, id string) (domain.Document, error)

	MaxBatchSize() int
}

type CatalogFetcher interface {
	FetchCatalog(context.Context, domain.Credentials) ([]domain.ProductRecord, error)
}

type ProductsUpserter interface {
	UpsertAll(context.Context, []domain.ProductRecord) (int, error)
}

type SyncStatusReader interface {
	Status(context.Context) (domain.SyncStatus, error)
}

type SyncRunner interface {
	RunSync(context.Context) domain.SyncResult
}

type LogsPurger interface {
	PurgeLogs(context.Context, domain.TimeWindow) (domain.DeleteReport, error)
}

type UserDataResetter interface {
	ResetUserData(ctx context.Context, userID string) ([]domain.DeleteReport, error)
}

type WebhookAcceptor interface {
	Accept(ctx context.Context, body []byte, signature string) (domain.WebhookEvent, error)
}

// StatusDispatcher receives a verified, parsed webhook event.
type StatusDispatcher interface {
	DispatchStatus(context.Context, domain.WebhookEvent) error
}

type StatusProducer interface {
	StatusDispatcher
	closer
}

type IdentityVerifier interface {
	Identify(ctx context.Context, token string) (domain.Identity, error)
}
