package handler

import (
	"encoding/hex"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

const (
	hashLen    = 32
	addressLen = 20

	maxBodyBytes = 1 << 20
)

func parseHash(s string) ([]byte, error) {
	return parseHex(s, hashLen)
}

func parseAddress(s string) ([]byte, error) {
	return parseHex(s, addressLen)
}

// parseHex decodes a fixed-length hex string with an optional 0x prefix.
func parseHex(s string, n int) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s) != 2*n {
		return nil, errors.Errorf("expected %d hex characters, got %d", 2*n, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.New("invalid hex")
	}
	return b, nil
}

// readJSONObject consumes the body and checks that it is one JSON object.
func readJSONObject(r *http.Request) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if !jx.Valid(body) {
		return errors.New("invalid json")
	}
	if jx.DecodeBytes(body).Next() != jx.Object {
		return errors.New("body is not a json object")
	}
	return nil
}
