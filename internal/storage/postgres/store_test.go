//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/tradegate/internal/domain/auth"
	"github.com/xenking/tradegate/internal/usage"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "tradegate",
				"POSTGRES_PASSWORD": "tradegate",
				"POSTGRES_DB":       "tradegate",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	pool, err := NewPool(ctx, fmt.Sprintf("postgres://tradegate:tradegate@%s:%s/tradegate?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	require.NoError(t, RunMigrations(ctx, pool))
	// The schema is idempotent.
	require.NoError(t, RunMigrations(ctx, pool))

	s := NewStore(pool)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	k1, err := s.CreateKey(ctx, auth.NewKey{KeyID: "k1", SecretHash: "h1", Label: "bot", Owner: "alice"})
	require.NoError(t, err)
	assert.True(t, k1.Active)
	k2, err := s.CreateKey(ctx, auth.NewKey{KeyID: "k2", SecretHash: "h2"})
	require.NoError(t, err)

	got, err := s.LookupActive(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, k1.ID, got.ID)
	assert.Equal(t, "h1", got.SecretHash)

	_, err = s.LookupActive(ctx, "missing")
	require.ErrorIs(t, err, auth.ErrKeyNotFound)

	require.NoError(t, s.InsertUsage(ctx, usage.Event{KeyID: k1.ID, Method: "GET", Path: "/v1/tokens", Status: 501, Latency: time.Millisecond}))
	require.NoError(t, s.InsertUsage(ctx, usage.Event{KeyID: k2.ID, Method: "GET", Path: "/v1/tokens", Status: 501}))

	require.NoError(t, s.RevokeKey(ctx, "k2"))
	_, err = s.LookupActive(ctx, "k2")
	require.ErrorIs(t, err, auth.ErrKeyNotFound)
	require.ErrorIs(t, s.RevokeKey(ctx, "missing"), auth.ErrKeyNotFound)

	require.NoError(t, s.DeleteKey(ctx, "k1"))
	require.ErrorIs(t, s.DeleteKey(ctx, "k1"), auth.ErrKeyNotFound)

	var n int
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM usage_logs`).Scan(&n))
	assert.Equal(t, 1, n)

	keys, err := s.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "k2", keys[0].KeyID)
	assert.False(t, keys[0].Active)
}
