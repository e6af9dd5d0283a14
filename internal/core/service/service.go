// Package service implements catalog synchronization, webhook intake and
// paged bulk deletion on top of the [port.DocumentStore].
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/pkg/retry"
)

const (
	DefaultProductsPath = "products"
	DefaultStatusPath   = "app-settings"
	DefaultStatusID     = "product-sync"
	DefaultLogsPath     = "sync-logs"
	DefaultTxStatusPath = "transaction-status"
	DefaultUserRoot     = "finance"
	DefaultPageSize     = 100
)

var DefaultUserCollections = []string{"transactions", "goals", "debts", "categories"}

// StoreRetry retries store operations that failed on the network.
func StoreRetry(maxAttempts int, delay time.Duration) retry.RetryConfig {
	return retry.RetryConfig{
		MaxAttempts: maxAttempts,
		Backoff:     retry.ExponentialBackoff(delay),
		ShouldRetry: func(err error) bool {
			return errors.Is(err, domain.ErrNetwork)
		},
	}
}

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

func ctxErr(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// toInt reads a number that went through any of the store encodings.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
