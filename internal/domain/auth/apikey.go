// Package auth holds the API key credential model and the Basic
// authentication flow built on top of it.
package auth

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned by stores when no key matches the lookup.
var ErrKeyNotFound = errors.New("api key not found")

// Credential is a stored API key row.
type Credential struct {
	ID         int64
	KeyID      string
	SecretHash string
	Label      string
	Owner      string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Identity is the caller resolved by a successful authentication. It lives
// for one request and is never persisted.
type Identity struct {
	ID    int64
	KeyID string
	Label string
	Owner string
}

// Identity returns the request-scoped view of the credential.
func (c *Credential) Identity() *Identity {
	return &Identity{
		ID:    c.ID,
		KeyID: c.KeyID,
		Label: c.Label,
		Owner: c.Owner,
	}
}

// CredentialStore looks up keys eligible for authentication.
type CredentialStore interface {
	// LookupActive returns the active key with the given public key id, or
	// ErrKeyNotFound when it is unknown or revoked.
	LookupActive(ctx context.Context, keyID string) (*Credential, error)
}

// NewKey holds the fields required to provision a key.
type NewKey struct {
	KeyID      string
	SecretHash string
	Label      string
	Owner      string
}

// KeyStore manages the key lifecycle.
type KeyStore interface {
	CreateKey(ctx context.Context, k NewKey) (*Credential, error)
	ListKeys(ctx context.Context) ([]Credential, error)
	// RevokeKey marks the key inactive. Returns ErrKeyNotFound for unknown ids.
	RevokeKey(ctx context.Context, keyID string) error
	// DeleteKey removes the key and its usage history. Returns ErrKeyNotFound
	// for unknown ids.
	DeleteKey(ctx context.Context, keyID string) error
}
