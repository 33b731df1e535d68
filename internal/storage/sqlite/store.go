package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/tradegate/internal/domain/auth"
	"github.com/xenking/tradegate/internal/usage"
)

// Compile-time interface satisfaction checks.
var (
	_ auth.CredentialStore = (*Store)(nil)
	_ auth.KeyStore        = (*Store)(nil)
	_ usage.Sink           = (*Store)(nil)
)

const timeLayout = "2006-01-02T15:04:05Z"

const keyColumns = `id, key_id, secret_hash, label, owner, active, created_at, updated_at`

// Store implements the key and usage stores.
type Store struct {
	db *DB
}

// NewStore returns a Store over db.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LookupActive implements auth.CredentialStore.
func (s *Store) LookupActive(ctx context.Context, keyID string) (*auth.Credential, error) {
	const query = `SELECT ` + keyColumns + ` FROM api_keys WHERE key_id = ? AND active = 1`

	c, err := scanCredential(s.db.Reader.QueryRowContext(ctx, query, keyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "lookup key %q", keyID)
	}
	return c, nil
}

// CreateKey implements auth.KeyStore.
func (s *Store) CreateKey(ctx context.Context, k auth.NewKey) (*auth.Credential, error) {
	const query = `INSERT INTO api_keys (key_id, secret_hash, label, owner)
		VALUES (?, ?, ?, ?)
		RETURNING ` + keyColumns

	c, err := scanCredential(s.db.Writer.QueryRowContext(ctx, query, k.KeyID, k.SecretHash, k.Label, k.Owner))
	if err != nil {
		return nil, errors.Wrapf(err, "create key %q", k.KeyID)
	}
	return c, nil
}

// ListKeys implements auth.KeyStore.
func (s *Store) ListKeys(ctx context.Context) ([]auth.Credential, error) {
	const query = `SELECT ` + keyColumns + ` FROM api_keys ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list keys")
	}
	defer func() { _ = rows.Close() }()

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
	const query = `UPDATE api_keys
		SET active = 0, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE key_id = ?`

	res, err := s.db.Writer.ExecContext(ctx, query, keyID)
	if err != nil {
		return errors.Wrapf(err, "revoke key %q", keyID)
	}
	return expectAffected(res, keyID)
}

// DeleteKey implements auth.KeyStore. Usage rows are removed by cascade.
func (s *Store) DeleteKey(ctx context.Context, keyID string) error {
	const query = `DELETE FROM api_keys WHERE key_id = ?`

	res, err := s.db.Writer.ExecContext(ctx, query, keyID)
	if err != nil {
		return errors.Wrapf(err, "delete key %q", keyID)
	}
	return expectAffected(res, keyID)
}

// InsertUsage implements usage.Sink.
func (s *Store) InsertUsage(ctx context.Context, e usage.Event) error {
	const query = `INSERT INTO usage_logs (api_key_id, method, path, status_code, latency_ms)
		VALUES (?, ?, ?, ?, ?)`

	if _, err := s.db.Writer.ExecContext(ctx, query, e.KeyID, e.Method, e.Path, e.Status, e.LatencyMillis()); err != nil {
		return errors.Wrap(err, "insert usage")
	}
	return nil
}

func expectAffected(res sql.Result, keyID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.Wrapf(auth.ErrKeyNotFound, "key %q", keyID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(row scanner) (*auth.Credential, error) {
	var (
		c                auth.Credential
		created, updated string
	)
	if err := row.Scan(&c.ID, &c.KeyID, &c.SecretHash, &c.Label, &c.Owner, &c.Active, &created, &updated); err != nil {
		return nil, err
	}

	var err error
	if c.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, errors.Wrap(err, "parse created_at")
	}
	if c.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, errors.Wrap(err, "parse updated_at")
	}
	return &c, nil
}
