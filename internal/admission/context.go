// Package admission decides, per request, whether it may reach a handler:
// global rate limit first, then authentication, then the per-key limit.
package admission

import (
	"context"
	"time"

	"github.com/xenking/tradegate/internal/domain/auth"
	"github.com/xenking/tradegate/pkg/ratelimit"
)

// RequestContext is the per-request state shared by admission stages, the
// handler and response finalization. It is created once at request entry.
type RequestContext struct {
	RequestID string
	Start     time.Time
	// Identity is set as soon as authentication succeeds, before the per-key
	// check, so usage is attributed even when that check rejects.
	Identity *auth.Identity
	// Quota is the most specific quota computed for the request.
	Quota *ratelimit.Quota
}

type requestContextKey struct{}

// WithRequestContext attaches rc to ctx.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the RequestContext attached to ctx.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}
