package admission

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/tradegate/internal/domain/auth"
	"github.com/xenking/tradegate/pkg/ratelimit"
)

// fakeAuth accepts "Basic base64(<keyID>:ok)" for the keys it knows.
type fakeAuth struct {
	keys  map[string]int64
	err   error
	calls int
}

func (a *fakeAuth) Authenticate(_ context.Context, header string) (*auth.Identity, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	if header == "" {
		return nil, auth.ErrMissingCredentials
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return nil, auth.ErrMalformedEncoding
	}
	keyID, secret, _ := strings.Cut(string(raw), ":")
	id, ok := a.keys[keyID]
	if !ok || secret != "ok" {
		return nil, auth.ErrInvalidCredentials
	}
	return &auth.Identity{ID: id, KeyID: keyID}, nil
}

func basic(keyID, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(keyID+":"+secret))
}

type failingLimiter struct {
	globalErr error
	keyErr    error
}

func (l failingLimiter) CheckGlobal() (ratelimit.Decision, error) {
	if l.globalErr != nil {
		return ratelimit.Decision{}, l.globalErr
	}
	return ratelimit.Decision{Allowed: true}, nil
}

func (l failingLimiter) CheckKey(int64) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, l.keyErr
}

func newPipeline(t *testing.T, l Limiter, a Authenticator) *Pipeline {
	t.Helper()
	p, err := NewPipeline(l, a, noop.NewMeterProvider())
	require.NoError(t, err)
	return p
}

func TestPipeline_PublicRouteSkipsAuth(t *testing.T) {
	a := &fakeAuth{}
	p := newPipeline(t, ratelimit.New(ratelimit.Config{Global: 5}), a)

	rc := &RequestContext{}
	d := p.Admit(context.Background(), rc, "", false)

	assert.Equal(t, Admitted, d.Outcome)
	assert.Equal(t, StageGlobal, d.Stage)
	require.NotNil(t, d.Quota)
	assert.Equal(t, 4, d.Quota.Remaining)
	assert.Equal(t, d.Quota, rc.Quota)
	assert.Zero(t, a.calls)
}

func TestPipeline_GlobalBeforeAuth(t *testing.T) {
	a := &fakeAuth{}
	p := newPipeline(t, ratelimit.New(ratelimit.Config{Global: 1}), a)
	ctx := context.Background()

	d := p.Admit(ctx, &RequestContext{}, "", true)
	assert.Equal(t, Unauthorized, d.Outcome)
	assert.Nil(t, d.Quota)
	require.ErrorIs(t, d.Err, auth.ErrMissingCredentials)

	d = p.Admit(ctx, &RequestContext{}, "", true)
	assert.Equal(t, RateLimited, d.Outcome)
	assert.Equal(t, StageGlobal, d.Stage)
	assert.Equal(t, 0, d.Quota.Remaining)
	assert.Equal(t, 1, a.calls, "authentication must not run after a global rejection")
}

func TestPipeline_PerKeyQuotaSupersedesGlobal(t *testing.T) {
	a := &fakeAuth{keys: map[string]int64{"k": 7}}
	p := newPipeline(t, ratelimit.New(ratelimit.Config{Global: 100, PerKey: 2}), a)
	ctx := context.Background()

	rc := &RequestContext{}
	d := p.Admit(ctx, rc, basic("k", "ok"), true)
	assert.Equal(t, Admitted, d.Outcome)
	assert.Equal(t, StagePerKey, d.Stage)
	assert.Equal(t, 2, d.Quota.Limit)
	assert.Equal(t, 1, d.Quota.Remaining)
	assert.Equal(t, int64(7), rc.Identity.ID)
	assert.Equal(t, d.Quota, rc.Quota)

	p.Admit(ctx, &RequestContext{}, basic("k", "ok"), true)

	rc = &RequestContext{}
	d = p.Admit(ctx, rc, basic("k", "ok"), true)
	assert.Equal(t, RateLimited, d.Outcome)
	assert.Equal(t, StagePerKey, d.Stage)
	assert.Equal(t, 2, d.Quota.Limit)
	assert.Equal(t, 0, d.Quota.Remaining)
	require.NotNil(t, rc.Identity, "identity is kept for usage attribution")
	assert.Equal(t, int64(7), rc.Identity.ID)
}

func TestPipeline_PerKeyDisabledUsesGlobalQuota(t *testing.T) {
	a := &fakeAuth{keys: map[string]int64{"k": 1}}
	p := newPipeline(t, ratelimit.New(ratelimit.Config{Global: 10}), a)

	d := p.Admit(context.Background(), &RequestContext{}, basic("k", "ok"), true)
	assert.Equal(t, Admitted, d.Outcome)
	require.NotNil(t, d.Quota)
	assert.Equal(t, 10, d.Quota.Limit)
}

func TestPipeline_AllDisabled(t *testing.T) {
	a := &fakeAuth{keys: map[string]int64{"k": 1}}
	p := newPipeline(t, ratelimit.New(ratelimit.Config{}), a)

	d := p.Admit(context.Background(), &RequestContext{}, basic("k", "ok"), true)
	assert.Equal(t, Admitted, d.Outcome)
	assert.Nil(t, d.Quota)
}

func TestPipeline_InternalFailures(t *testing.T) {
	lookupErr := &auth.LookupError{KeyID: "k", Err: errors.New("db down")}

	for _, tt := range []struct {
		name    string
		limiter Limiter
		auth    *fakeAuth
		stage   Stage
	}{
		{
			name:    "GlobalLock",
			limiter: failingLimiter{globalErr: ratelimit.ErrLockUnavailable},
			auth:    &fakeAuth{},
			stage:   StageGlobal,
		},
		{
			name:    "Lookup",
			limiter: ratelimit.New(ratelimit.Config{Global: 10}),
			auth:    &fakeAuth{err: lookupErr},
			stage:   StageAuth,
		},
		{
			name:    "PerKeyLock",
			limiter: failingLimiter{keyErr: ratelimit.ErrLockUnavailable},
			auth:    &fakeAuth{keys: map[string]int64{"k": 1}},
			stage:   StagePerKey,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, tt.limiter, tt.auth)

			d := p.Admit(context.Background(), &RequestContext{}, basic("k", "ok"), true)
			assert.Equal(t, Internal, d.Outcome)
			assert.Equal(t, tt.stage, d.Stage)
			assert.Nil(t, d.Quota)
			require.Error(t, d.Err)
		})
	}
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "admitted", Admitted.String())
	assert.Equal(t, "unauthorized", Unauthorized.String())
	assert.Equal(t, "rate_limited", RateLimited.String())
	assert.Equal(t, "internal", Internal.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
