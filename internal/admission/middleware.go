package admission

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/xenking/tradegate/internal/httperr"
	"github.com/xenking/tradegate/internal/usage"
	"github.com/xenking/tradegate/pkg/httpmiddleware"
	"github.com/xenking/tradegate/pkg/ratelimit"
)

// Rate limit response headers.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

var retryAfter = strconv.Itoa(int(ratelimit.Window / time.Second))

// UsageRecorder accepts completed request events.
type UsageRecorder interface {
	Record(ctx context.Context, e usage.Event)
}

// Track creates the RequestContext for each request and, once the response
// is written, hands a usage event to usageRec if an identity was resolved.
func Track(usageRec UsageRecorder) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			rc := &RequestContext{
				RequestID: httpmiddleware.RequestIDFromContext(ctx),
				Start:     time.Now(),
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				// A panicking handler is answered with 500 by the recovery
				// middleware further out; record it as such and keep unwinding.
				rec := recover()
				if rc.Identity != nil {
					status := ww.Status()
					switch {
					case rec != nil && status == 0:
						status = http.StatusInternalServerError
					case status == 0:
						status = http.StatusOK
					}
					usageRec.Record(ctx, usage.Event{
						KeyID:     rc.Identity.ID,
						Method:    r.Method,
						Path:      r.URL.Path,
						Status:    status,
						Latency:   time.Since(rc.Start),
						RequestID: rc.RequestID,
					})
				}
				if rec != nil {
					panic(rec)
				}
			}()
			next.ServeHTTP(ww, r.WithContext(WithRequestContext(ctx, rc)))
		})
	}
}

// Guard admits requests through p. When requireIdentity is false only the
// global limit applies.
func Guard(p *Pipeline, requireIdentity bool) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, ok := FromContext(r.Context())
			if !ok {
				rc = &RequestContext{
					RequestID: httpmiddleware.RequestIDFromContext(r.Context()),
					Start:     time.Now(),
				}
				r = r.WithContext(WithRequestContext(r.Context(), rc))
			}

			d := p.Admit(r.Context(), rc, r.Header.Get("Authorization"), requireIdentity)
			switch d.Outcome {
			case Admitted:
				setQuotaHeaders(w.Header(), d.Quota)
				next.ServeHTTP(w, r)
			case RateLimited:
				setQuotaHeaders(w.Header(), d.Quota)
				w.Header().Set(HeaderRetryAfter, retryAfter)
				httperr.RateLimited(w)
			case Unauthorized:
				httperr.Unauthorized(w)
			default:
				httperr.Internal(w)
			}
		})
	}
}

func setQuotaHeaders(h http.Header, q *ratelimit.Quota) {
	if q == nil {
		return
	}
	h.Set(HeaderLimit, strconv.Itoa(q.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(q.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(q.Reset, 10))
}
