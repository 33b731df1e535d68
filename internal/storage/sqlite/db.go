// Package sqlite implements the key and usage stores on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	_ "modernc.org/sqlite"
)

const pragmas = "_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"

// DB holds a single-connection writer and a small reader pool. SQLite allows
// one writer at a time, so writes are serialized on the client side instead
// of surfacing "database is locked".
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
}

// Open opens (creating if needed) the database file at path in WAL mode.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.Wrap(err, "create database dir")
		}
	}
	return OpenDSN(fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path))
}

// OpenDSN opens a raw driver DSN such as "file:keys?mode=memory&cache=shared".
// Connection pragmas are appended to the query string.
func OpenDSN(dsn string) (*DB, error) {
	if strings.Contains(dsn, "?") {
		dsn += "&" + pragmas
	} else {
		dsn += "?" + pragmas
	}

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open writer")
	}
	writer.SetMaxOpenConns(1)
	if err := writer.Ping(); err != nil {
		_ = writer.Close()
		return nil, errors.Wrap(err, "ping writer")
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, errors.Wrap(err, "open reader")
	}
	reader.SetMaxOpenConns(4)
	if err := reader.Ping(); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, errors.Wrap(err, "ping reader")
	}

	return &DB{Writer: writer, Reader: reader}, nil
}

// Ping checks both connections.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.Writer.PingContext(ctx); err != nil {
		return errors.Wrap(err, "ping writer")
	}
	if err := db.Reader.PingContext(ctx); err != nil {
		return errors.Wrap(err, "ping reader")
	}
	return nil
}

// Close closes both pools and returns the first error.
func (db *DB) Close() error {
	var firstErr error
	if err := db.Reader.Close(); err != nil {
		firstErr = errors.Wrap(err, "close reader")
	}
	if err := db.Writer.Close(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "close writer")
	}
	return firstErr
}
