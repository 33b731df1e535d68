package sqlite

import (
	"fmt"
	"net/url"
	"testing"
)

// setupTestStore creates a named shared in-memory database per test. WAL does
// not apply to in-memory databases, so only the connection pragmas are set.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := OpenDSN(fmt.Sprintf("file:%s?mode=memory&cache=shared", url.PathEscape(t.Name())))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	s := NewStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
