// Package keyadmin provisions and manages API keys.
package keyadmin

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/tradegate/internal/domain/auth"
)

const secretBytes = 32

// CreatedKey is a freshly provisioned key. Secret is only available here;
// the store keeps its hash.
type CreatedKey struct {
	*auth.Credential
	Secret string
}

// Service wraps a key store with provisioning logic.
type Service struct {
	store auth.KeyStore
	lg    *zap.Logger
}

// NewService creates a Service.
func NewService(store auth.KeyStore, lg *zap.Logger) *Service {
	return &Service{store: store, lg: lg}
}

// Create provisions a key with a random UUID key id and a random secret.
func (s *Service) Create(ctx context.Context, label, owner string) (*CreatedKey, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashSecret(secret)
	if err != nil {
		return nil, errors.Wrap(err, "hash secret")
	}

	c, err := s.store.CreateKey(ctx, auth.NewKey{
		KeyID:      uuid.NewString(),
		SecretHash: hash,
		Label:      label,
		Owner:      owner,
	})
	if err != nil {
		return nil, errors.Wrap(err, "insert api key")
	}

	s.lg.Info("API key created",
		zap.String("key_id", c.KeyID),
		zap.String("label", label),
		zap.String("owner", owner),
	)
	return &CreatedKey{Credential: c, Secret: secret}, nil
}

// List returns all keys, newest first.
func (s *Service) List(ctx context.Context) ([]auth.Credential, error) {
	keys, err := s.store.ListKeys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "query api keys")
	}
	return keys, nil
}

// Revoke deactivates a key.
func (s *Service) Revoke(ctx context.Context, keyID string) error {
	if err := s.store.RevokeKey(ctx, keyID); err != nil {
		return notFound(err, keyID, "revoke api key")
	}
	s.lg.Info("API key revoked", zap.String("key_id", keyID))
	return nil
}

// Delete removes a key and its usage history.
func (s *Service) Delete(ctx context.Context, keyID string) error {
	if err := s.store.DeleteKey(ctx, keyID); err != nil {
		return notFound(err, keyID, "delete api key")
	}
	s.lg.Info("API key deleted", zap.String("key_id", keyID))
	return nil
}

func notFound(err error, keyID, op string) error {
	if errors.Is(err, auth.ErrKeyNotFound) {
		return errors.Errorf("API key %s not found", keyID)
	}
	return errors.Wrap(err, op)
}

// GenerateSecret returns 32 random bytes as unpadded URL-safe base64.
func GenerateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "generate secret")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
