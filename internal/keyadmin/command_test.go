package keyadmin

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/tradegate/internal/domain/auth"
	"github.com/xenking/tradegate/internal/storage"
)

// keepOpen hides Close so an in-memory database survives between commands.
type keepOpen struct {
	storage.Backend
}

func (keepOpen) Close() error { return nil }

func setupBackend(t *testing.T) storage.Backend {
	t.Helper()
	b, err := storage.Open(context.Background(),
		fmt.Sprintf("sqlite:file:%s?mode=memory&cache=shared", url.PathEscape(t.Name())))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func run(t *testing.T, b storage.Backend, args ...string) (string, error) {
	t.Helper()
	open := func(context.Context, string) (Store, error) {
		return keepOpen{b}, nil
	}
	cmd := NewRootCommand(open, "unused", zap.NewNop())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

var (
	keyIDLine  = regexp.MustCompile(`Key ID:\s+(\S+)`)
	secretLine = regexp.MustCompile(`Secret:\s+(\S+)`)
)

func TestCreate(t *testing.T) {
	b := setupBackend(t)

	out, err := run(t, b, "create", "--label", "bot", "--owner", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "API key created successfully")
	assert.Contains(t, out, "It will not be shown again")

	keyID := keyIDLine.FindStringSubmatch(out)
	secret := secretLine.FindStringSubmatch(out)
	require.Len(t, keyID, 2)
	require.Len(t, secret, 2)
	assert.Len(t, secret[1], 43, "32 bytes of unpadded base64")

	c, err := b.LookupActive(context.Background(), keyID[1])
	require.NoError(t, err)
	assert.Equal(t, "bot", c.Label)
	assert.Equal(t, "alice", c.Owner)

	h, err := auth.ParseSecretHash(c.SecretHash)
	require.NoError(t, err)
	assert.True(t, h.Verify(secret[1]))
}

func TestCreate_RequiresFlags(t *testing.T) {
	_, err := run(t, setupBackend(t), "create", "--label", "bot")
	require.Error(t, err)
}

func TestList(t *testing.T) {
	b := setupBackend(t)

	out, err := run(t, b, "list")
	require.NoError(t, err)
	assert.Equal(t, "No API keys found\n", out)

	_, err = run(t, b, "create", "--label", "first", "--owner", "alice")
	require.NoError(t, err)
	_, err = run(t, b, "create", "--label", "second", "--owner", "bob")
	require.NoError(t, err)

	out, err = run(t, b, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "KEY_ID")
	assert.Contains(t, out, "first")
	assert.Contains(t, out, "second")
	assert.Contains(t, out, "true")
}

func TestRevokeAndDelete(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	out, err := run(t, b, "create", "--label", "bot", "--owner", "alice")
	require.NoError(t, err)
	keyID := keyIDLine.FindStringSubmatch(out)[1]

	out, err = run(t, b, "revoke", keyID)
	require.NoError(t, err)
	assert.Equal(t, "API key "+keyID+" revoked successfully\n", out)
	_, err = b.LookupActive(ctx, keyID)
	require.ErrorIs(t, err, auth.ErrKeyNotFound)

	out, err = run(t, b, "delete", keyID)
	require.NoError(t, err)
	assert.Equal(t, "API key "+keyID+" deleted successfully\n", out)

	keys, err := b.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestUnknownKey(t *testing.T) {
	b := setupBackend(t)

	for _, sub := range []string{"revoke", "delete"} {
		_, err := run(t, b, sub, "nonexistent")
		require.EqualError(t, err, "API key nonexistent not found")
	}
}

func TestRevoke_RequiresArg(t *testing.T) {
	_, err := run(t, setupBackend(t), "revoke")
	require.Error(t, err)
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^[A-Za-z0-9_-]+$`, a)
}
