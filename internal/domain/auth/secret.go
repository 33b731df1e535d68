package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for newly hashed secrets.
const (
	argonTime    uint32 = 2
	argonMemory  uint32 = 19 * 1024
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
	argonSaltLen        = 16
)

// Upper bounds accepted for stored records. Verification cost is paid per
// request, so a corrupt record must not be able to request unbounded work.
const (
	maxMemory  = 256 * 1024 // KiB
	maxTime    = 16
	maxThreads = 16
	minKeyLen  = 16
	maxKeyLen  = 64
	maxSaltLen = 64
)

// ErrMalformedHash is returned when a stored hash record cannot be parsed.
var ErrMalformedHash = errors.New("malformed secret hash")

var b64 = base64.RawStdEncoding

// SecretHash is a parsed Argon2id hash in PHC string format:
//
//	$argon2id$v=19$m=19456,t=2,p=1$<salt>$<key>
type SecretHash struct {
	Memory  uint32
	Time    uint32
	Threads uint8
	Salt    []byte
	Key     []byte
}

// HashSecret hashes secret with a fresh random salt and returns the PHC
// encoded record.
func HashSecret(secret string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, "generate salt")
	}
	h := &SecretHash{
		Memory:  argonMemory,
		Time:    argonTime,
		Threads: argonThreads,
		Salt:    salt,
	}
	h.Key = h.derive(secret, argonKeyLen)
	return h.String(), nil
}

// ParseSecretHash decodes a PHC encoded Argon2id record.
func ParseSecretHash(s string) (*SecretHash, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.Wrap(ErrMalformedHash, "unexpected field count")
	}
	if parts[1] != "argon2id" {
		return nil, errors.Wrapf(ErrMalformedHash, "unsupported algorithm %q", parts[1])
	}

	version, err := parseField(parts[2], "v", 32)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedHash, "version")
	}
	if version != argon2.Version {
		return nil, errors.Wrapf(ErrMalformedHash, "unsupported version %d", version)
	}

	params := strings.Split(parts[3], ",")
	if len(params) != 3 {
		return nil, errors.Wrap(ErrMalformedHash, "params")
	}
	m, errM := parseField(params[0], "m", 32)
	t, errT := parseField(params[1], "t", 32)
	p, errP := parseField(params[2], "p", 8)
	if errM != nil || errT != nil || errP != nil {
		return nil, errors.Wrap(ErrMalformedHash, "params")
	}
	h := SecretHash{Memory: uint32(m), Time: uint32(t), Threads: uint8(p)}
	if h.Time == 0 || h.Time > maxTime ||
		h.Threads == 0 || h.Threads > maxThreads ||
		h.Memory < 8*uint32(h.Threads) || h.Memory > maxMemory {
		return nil, errors.Wrap(ErrMalformedHash, "params out of range")
	}

	if h.Salt, err = b64.DecodeString(parts[4]); err != nil || len(h.Salt) == 0 || len(h.Salt) > maxSaltLen {
		return nil, errors.Wrap(ErrMalformedHash, "salt")
	}
	if h.Key, err = b64.DecodeString(parts[5]); err != nil || len(h.Key) < minKeyLen || len(h.Key) > maxKeyLen {
		return nil, errors.Wrap(ErrMalformedHash, "key")
	}
	return &h, nil
}

// parseField parses "<name>=<decimal>", rejecting anything else.
func parseField(field, name string, bitSize int) (uint64, error) {
	raw, ok := strings.CutPrefix(field, name+"=")
	if !ok {
		return 0, errors.Errorf("expected %s=", name)
	}
	return strconv.ParseUint(raw, 10, bitSize)
}

// Verify reports whether secret matches the hash. The final comparison runs in
// constant time.
func (h *SecretHash) Verify(secret string) bool {
	got := h.derive(secret, uint32(len(h.Key)))
	return subtle.ConstantTimeCompare(got, h.Key) == 1
}

func (h *SecretHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.Memory, h.Time, h.Threads,
		b64.EncodeToString(h.Salt), b64.EncodeToString(h.Key),
	)
}

func (h *SecretHash) derive(secret string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(secret), h.Salt, h.Time, h.Memory, h.Threads, keyLen)
}
