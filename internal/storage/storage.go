// Package storage opens the key and usage store selected by the database URL.
package storage

import (
	"context"
	"io"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/tradegate/internal/domain/auth"
	"github.com/xenking/tradegate/internal/storage/postgres"
	"github.com/xenking/tradegate/internal/storage/sqlite"
	"github.com/xenking/tradegate/internal/usage"
)

// Backend is a migrated store.
type Backend interface {
	auth.CredentialStore
	auth.KeyStore
	usage.Sink
	io.Closer
	Ping(ctx context.Context) error
}

var (
	_ Backend = (*postgres.Store)(nil)
	_ Backend = (*sqlite.Store)(nil)
)

// Open connects to the database at url and applies migrations.
//
//	postgres://..., postgresql://...   PostgreSQL via pgx
//	sqlite:<path>                      SQLite file, created if missing
//	[sqlite:]file:<name>?<params>      raw SQLite DSN (e.g. shared in-memory)
func Open(ctx context.Context, url string) (Backend, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		pool, err := postgres.NewPool(ctx, url)
		if err != nil {
			return nil, err
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return postgres.NewStore(pool), nil

	case strings.HasPrefix(url, "sqlite:"), strings.HasPrefix(url, "file:"):
		var (
			db  *sqlite.DB
			err error
		)
		rest, _ := strings.CutPrefix(url, "sqlite:")
		if strings.HasPrefix(rest, "file:") {
			db, err = sqlite.OpenDSN(rest)
		} else {
			db, err = sqlite.Open(strings.TrimPrefix(rest, "//"))
		}
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		if err := sqlite.RunMigrations(db.Writer); err != nil {
			_ = db.Close()
			return nil, err
		}
		return sqlite.NewStore(db), nil

	default:
		return nil, errors.Errorf("unsupported database url scheme: %q", redact(url))
	}
}

// redact drops everything after the scheme so credentials never reach logs.
func redact(url string) string {
	if scheme, _, ok := strings.Cut(url, ":"); ok {
		return scheme + ":..."
	}
	return "..."
}
