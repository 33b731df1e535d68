package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tradegate/internal/domain/auth"
	"github.com/xenking/tradegate/internal/usage"
)

var (
	_ auth.CredentialStore = (*Store)(nil)
	_ auth.KeyStore        = (*Store)(nil)
	_ usage.Sink           = (*Store)(nil)
)

const keyColumns = `id, key_id, secret_hash, label, owner, active, created_at, updated_at`

// Store implements the key and usage stores backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// LookupActive implements auth.CredentialStore.
func (s *Store) LookupActive(ctx context.Context, keyID string) (*auth.Credential, error) {
	const query = `SELECT ` + keyColumns + ` FROM api_keys WHERE key_id = $1 AND active`

	c, err := scanCredential(s.pool.QueryRow(ctx, query, keyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, errors.Wrapf(err, "lookup key %q", keyID)
	}
	return c, nil
}

// CreateKey implements auth.KeyStore.
func (s *Store) CreateKey(ctx context.Context, k auth.NewKey) (*auth.Credential, error) {
	const query = `INSERT INTO api_keys (key_id, secret_hash, label, owner)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + keyColumns

	c, err := scanCredential(s.pool.QueryRow(ctx, query, k.KeyID, k.SecretHash, k.Label, k.Owner))
	if err != nil {
		return nil, errors.Wrapf(err, "create key %q", k.KeyID)
	}
	return c, nil
}

// ListKeys implements auth.KeyStore.
func (s *Store) ListKeys(ctx context.Context) ([]auth.Credential, error) {
	const query = `SELECT ` + keyColumns + ` FROM api_keys ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list keys")
	}
	defer rows.Close()

	var keys []auth.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan key")
		}
		keys = append(keys, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate keys")
	}
	return keys, nil
}

// RevokeKey implements auth.KeyStore.
func (s *Store) RevokeKey(ctx context.Context, keyID string) error {
	const query = `UPDATE api_keys SET active = FALSE, updated_at = now() WHERE key_id = $1`

	tag, err := s.pool.Exec(ctx, query, keyID)
	if err != nil {
		return errors.Wrapf(err, "revoke key %q", keyID)
	}
	return expectAffected(tag, keyID)
}

// DeleteKey implements auth.KeyStore. Usage rows are removed by cascade.
func (s *Store) DeleteKey(ctx context.Context, keyID string) error {
	const query = `DELETE FROM api_keys WHERE key_id = $1`

	tag, err := s.pool.Exec(ctx, query, keyID)
	if err != nil {
		return errors.Wrapf(err, "delete key %q", keyID)
	}
	return expectAffected(tag, keyID)
}

// InsertUsage implements usage.Sink.
func (s *Store) InsertUsage(ctx context.Context, e usage.Event) error {
	const query = `INSERT INTO usage_logs (api_key_id, method, path, status_code, latency_ms)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.pool.Exec(ctx, query, e.KeyID, e.Method, e.Path, e.Status, e.LatencyMillis()); err != nil {
		return errors.Wrap(err, "insert usage")
	}
	return nil
}

func expectAffected(tag pgconn.CommandTag, keyID string) error {
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(auth.ErrKeyNotFound, "key %q", keyID)
	}
	return nil
}

func scanCredential(row pgx.Row) (*auth.Credential, error) {
	var c auth.Credential
	if err := row.Scan(&c.ID, &c.KeyID, &c.SecretHash, &c.Label, &c.Owner, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
