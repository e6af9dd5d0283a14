// Package auth resolves bearer tokens into caller identities.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/internal/core/port"
)

var _ port.IdentityVerifier = (*TokenTable)(nil)

type Entry struct {
	Token  string
	UserID string
	Admin  bool
}

// TokenTable is a static token list loaded from config.
type TokenTable struct {
	entries []Entry
}

func NewTokenTable(entries []Entry) (TokenTable, error) {
	const op = "NewTokenTable"

	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.Token == "" {
			return TokenTable{}, fmt.Errorf("%s: entry %d: %w", op, i,
				errors.New("token is empty"))
		}
		if _, ok := seen[e.Token]; ok {
			return TokenTable{}, fmt.Errorf("%s: entry %d: %w", op, i,
				errors.New("duplicate token"))
		}
		seen[e.Token] = struct{}{}
	}
	return TokenTable{entries: append([]Entry(nil), entries...)}, nil
}

// Identify compares token against every entry so the lookup time does not
// depend on which entry matched.
func (t TokenTable) Identify(
	_ context.Context, token string,
) (domain.Identity, error) {
	const op = "TokenTable.Identify"

	if token == "" {
		return domain.Identity{}, fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}

	var (
		found bool
		id    domain.Identity
	)
	for _, e := range t.entries {
		if subtle.ConstantTimeCompare([]byte(e.Token), []byte(token)) == 1 {
			found = true
			id = domain.Identity{UserID: e.UserID, Admin: e.Admin}
		}
	}
	if !found {
		return domain.Identity{}, fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}
	return id, nil
}
