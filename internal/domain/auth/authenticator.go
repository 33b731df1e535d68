package auth

import (
	"context"
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Authentication failures. All of them except ErrLookupFailed are reported to
// the caller as unauthorized.
var (
	ErrMissingCredentials = errors.New("missing Authorization header")
	ErrBadScheme          = errors.New("invalid Authorization scheme")
	ErrMalformedEncoding  = errors.New("invalid base64 encoding")
	ErrMalformedFormat    = errors.New("invalid credentials format")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLookupFailed       = errors.New("authentication check failed")
)

// LookupError is an internal failure while resolving credentials: the store
// was unavailable or returned a corrupt hash record.
type LookupError struct {
	KeyID string
	Err   error
}

func (e *LookupError) Error() string {
	return "authentication check failed: " + e.Err.Error()
}

func (e *LookupError) Unwrap() error { return e.Err }

// Is makes every LookupError match ErrLookupFailed.
func (e *LookupError) Is(target error) bool { return target == ErrLookupFailed }

// IsInternal reports whether err is a server-side failure rather than a
// rejection of the caller.
func IsInternal(err error) bool {
	return errors.Is(err, ErrLookupFailed)
}

const basicPrefix = "Basic "

// AuthenticatorOptions configures an Authenticator.
type AuthenticatorOptions struct {
	// MaxConcurrentVerify bounds concurrent Argon2id verifications. Zero means
	// unbounded.
	MaxConcurrentVerify int64
	TracerProvider      trace.TracerProvider
}

// Authenticator resolves Basic credentials to an Identity.
type Authenticator struct {
	store  CredentialStore
	verify *semaphore.Weighted
	tracer trace.Tracer
}

// NewAuthenticator creates an Authenticator backed by store.
func NewAuthenticator(store CredentialStore, opts AuthenticatorOptions) *Authenticator {
	tp := opts.TracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	a := &Authenticator{
		store:  store,
		tracer: tp.Tracer("tradegate/auth"),
	}
	if opts.MaxConcurrentVerify > 0 {
		a.verify = semaphore.NewWeighted(opts.MaxConcurrentVerify)
	}
	return a
}

// Authenticate checks a raw Authorization header value. Failures are logged
// with their precise reason through the request logger in ctx.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (*Identity, error) {
	lg := zctx.From(ctx)

	keyID, secret, err := parseBasic(header)
	if err != nil {
		lg.Warn("Authentication rejected", zap.String("reason", err.Error()))
		return nil, err
	}

	ctx, span := a.tracer.Start(ctx, "auth.Authenticate",
		trace.WithAttributes(attribute.String("auth.key_id", keyID)),
	)
	defer span.End()

	id, err := a.resolve(ctx, keyID, secret)
	switch {
	case err == nil:
		lg.Info("Authenticated", zap.String("key_id", id.KeyID), zap.String("label", id.Label))
		return id, nil
	case IsInternal(err):
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		lg.Error("Authentication check failed", zap.String("key_id", keyID), zap.Error(err))
	default:
		span.SetStatus(codes.Error, err.Error())
		lg.Warn("Authentication rejected", zap.String("key_id", keyID), zap.String("reason", err.Error()))
	}
	return nil, err
}

func (a *Authenticator) resolve(ctx context.Context, keyID, secret string) (*Identity, error) {
	cred, err := a.store.LookupActive(ctx, keyID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, errors.Wrap(ErrInvalidCredentials, "key not found or inactive")
		}
		return nil, &LookupError{KeyID: keyID, Err: err}
	}

	h, err := ParseSecretHash(cred.SecretHash)
	if err != nil {
		return nil, &LookupError{KeyID: keyID, Err: err}
	}

	if a.verify != nil {
		if err := a.verify.Acquire(ctx, 1); err != nil {
			return nil, &LookupError{KeyID: keyID, Err: errors.Wrap(err, "acquire verify slot")}
		}
		defer a.verify.Release(1)
	}
	if !h.Verify(secret) {
		return nil, errors.Wrap(ErrInvalidCredentials, "secret mismatch")
	}
	return cred.Identity(), nil
}

// parseBasic splits a Basic credential into key id and secret. The checks run
// in a fixed order so each failure class is reported precisely.
func parseBasic(header string) (keyID, secret string, err error) {
	if header == "" {
		return "", "", ErrMissingCredentials
	}
	if len(header) <= len(basicPrefix) || !strings.EqualFold(header[:len(basicPrefix)], basicPrefix) {
		return "", "", ErrBadScheme
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(basicPrefix):])
	if err != nil {
		return "", "", ErrMalformedEncoding
	}
	if !utf8.Valid(decoded) {
		return "", "", ErrMalformedFormat
	}
	keyID, secret, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", ErrMalformedFormat
	}
	return keyID, secret, nil
}
