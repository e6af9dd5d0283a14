package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrNetwork          = errors.New("network error")
	ErrFetchFailed      = errors.New("fetch failed")
	ErrSchemaMismatch   = errors.New("schema mismatch")
	ErrSignatureMissing = errors.New("signature missing")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrPartialWrite     = errors.New("partial write failure")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// FetchError reports a non-2xx answer of the pricing provider.
type FetchError struct {
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: status code %d", ErrFetchFailed, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return ErrFetchFailed
}

// PartialWriteError is returned when some product batches were committed
// and the rest were not. SyncStatus is never updated in that case.
type PartialWriteError struct {
	Committed int
	Total     int
	Err       error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf(
		"%s: %d of %d batches committed: %v",
		ErrPartialWrite, e.Committed, e.Total, e.Err,
	)
}

func (e *PartialWriteError) Unwrap() []error {
	return []error{ErrPartialWrite, e.Err}
}
