package auth

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashSecret(t *testing.T) {
	encoded, err := HashSecret("s3cret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=19456,t=2,p=1$"), encoded)

	h, err := ParseSecretHash(encoded)
	require.NoError(t, err)
	assert.Len(t, h.Salt, 16)
	assert.Len(t, h.Key, 32)
	assert.Equal(t, encoded, h.String())

	assert.True(t, h.Verify("s3cret"))
	assert.False(t, h.Verify("s3cret "))
	assert.False(t, h.Verify(""))
}

func TestHashSecret_FreshSalt(t *testing.T) {
	a, err := HashSecret("same")
	require.NoError(t, err)
	b, err := HashSecret("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

// validKey is 32 bytes of unpadded base64.
var validKey = base64.RawStdEncoding.EncodeToString(make([]byte, 32))

func TestParseSecretHash_Malformed(t *testing.T) {
	for _, tt := range []struct {
		name  string
		input string
	}{
		{"Empty", ""},
		{"Plain", "not-a-hash"},
		{"Bcrypt", "$2a$10$abcdefghijklmnopqrstuv"},
		{"Argon2i", "$argon2i$v=19$m=19456,t=2,p=1$c2FsdHNhbHQ$a2V5a2V5"},
		{"Version", "$argon2id$v=16$m=19456,t=2,p=1$c2FsdHNhbHQ$a2V5a2V5"},
		{"Params", "$argon2id$v=19$m=x,t=2,p=1$c2FsdHNhbHQ$a2V5a2V5"},
		{"ZeroThreads", "$argon2id$v=19$m=19456,t=2,p=0$c2FsdHNhbHQ$a2V5a2V5"},
		{"Salt", "$argon2id$v=19$m=19456,t=2,p=1$!!!$a2V5a2V5"},
		{"Key", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdHNhbHQ$"},
		{"ShortKey", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdHNhbHQ$a2V5a2V5"},
		{"VersionTrailing", "$argon2id$v=19junk$m=19456,t=2,p=1$c2FsdHNhbHQ$" + validKey},
		{"ParamsTrailing", "$argon2id$v=19$m=19456,t=2,p=1garbage$c2FsdHNhbHQ$" + validKey},
		{"ParamsOrder", "$argon2id$v=19$t=2,m=19456,p=1$c2FsdHNhbHQ$" + validKey},
		{"ParamsExtra", "$argon2id$v=19$m=19456,t=2,p=1,x=1$c2FsdHNhbHQ$" + validKey},
		{"ParamsSigned", "$argon2id$v=19$m=+19456,t=2,p=1$c2FsdHNhbHQ$" + validKey},
		{"HugeMemory", "$argon2id$v=19$m=4294967295,t=1,p=1$c2FsdHNhbHQ$" + validKey},
		{"MemoryOverflow", "$argon2id$v=19$m=4294967296,t=1,p=1$c2FsdHNhbHQ$" + validKey},
		{"HugeTime", "$argon2id$v=19$m=19456,t=1000000,p=1$c2FsdHNhbHQ$" + validKey},
		{"ThreadsOverflow", "$argon2id$v=19$m=19456,t=2,p=256$c2FsdHNhbHQ$" + validKey},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSecretHash(tt.input)
			require.ErrorIs(t, err, ErrMalformedHash)
		})
	}
}
