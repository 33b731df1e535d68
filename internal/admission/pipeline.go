package admission

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/tradegate/internal/domain/auth"
	"github.com/xenking/tradegate/pkg/ratelimit"
)

// Outcome is the terminal state of an admission.
type Outcome int

const (
	Admitted Outcome = iota
	Unauthorized
	RateLimited
	Internal
)

func (o Outcome) String() string {
	switch o {
	case Admitted:
		return "admitted"
	case Unauthorized:
		return "unauthorized"
	case RateLimited:
		return "rate_limited"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Stage names the step that produced a decision.
type Stage string

const (
	StageGlobal Stage = "global"
	StageAuth   Stage = "auth"
	StagePerKey Stage = "per_key"
)

// Decision is the result of Admit.
type Decision struct {
	Outcome Outcome
	Stage   Stage
	// Identity is set once authentication succeeded.
	Identity *auth.Identity
	// Quota is the header source: the per-key quota when one was computed,
	// else the global one. Nil for Unauthorized and Internal outcomes.
	Quota *ratelimit.Quota
	Err   error
}

// Authenticator resolves an Authorization header.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (*auth.Identity, error)
}

// Limiter checks the global and per-key scopes.
type Limiter interface {
	CheckGlobal() (ratelimit.Decision, error)
	CheckKey(id int64) (ratelimit.Decision, error)
}

// Pipeline runs the admission stages in order, stopping at the first
// rejection.
type Pipeline struct {
	limiter   Limiter
	auth      Authenticator
	decisions metric.Int64Counter
}

// NewPipeline creates a Pipeline.
func NewPipeline(limiter Limiter, authenticator Authenticator, mp metric.MeterProvider) (*Pipeline, error) {
	meter := mp.Meter("tradegate/admission")
	decisions, err := meter.Int64Counter("tradegate.admission.decisions",
		metric.WithDescription("Admission decisions by outcome and deciding stage"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create decisions counter")
	}
	return &Pipeline{
		limiter:   limiter,
		auth:      authenticator,
		decisions: decisions,
	}, nil
}

// Admit runs the pipeline for one request. Identity and quota are recorded
// on rc as they are resolved.
func (p *Pipeline) Admit(ctx context.Context, rc *RequestContext, authorization string, requireIdentity bool) Decision {
	d := p.admit(ctx, rc, authorization, requireIdentity)
	p.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", d.Outcome.String()),
		attribute.String("stage", string(d.Stage)),
	))
	return d
}

func (p *Pipeline) admit(ctx context.Context, rc *RequestContext, authorization string, requireIdentity bool) Decision {
	lg := zctx.From(ctx)

	global, err := p.limiter.CheckGlobal()
	if err != nil {
		lg.Error("Global rate limiter failed", zap.Error(err))
		return Decision{Outcome: Internal, Stage: StageGlobal, Err: err}
	}
	rc.Quota = global.Quota
	if !global.Allowed {
		lg.Warn("Global rate limit exceeded")
		return Decision{Outcome: RateLimited, Stage: StageGlobal, Quota: global.Quota}
	}
	if !requireIdentity {
		return Decision{Outcome: Admitted, Stage: StageGlobal, Quota: global.Quota}
	}

	id, err := p.auth.Authenticate(ctx, authorization)
	if err != nil {
		// The authenticator logs the precise reason.
		if auth.IsInternal(err) {
			return Decision{Outcome: Internal, Stage: StageAuth, Err: err}
		}
		return Decision{Outcome: Unauthorized, Stage: StageAuth, Err: err}
	}
	rc.Identity = id

	perKey, err := p.limiter.CheckKey(id.ID)
	if err != nil {
		lg.Error("Per-key rate limiter failed", zap.String("key_id", id.KeyID), zap.Error(err))
		return Decision{Outcome: Internal, Stage: StagePerKey, Identity: id, Err: err}
	}
	quota := global.Quota
	if perKey.Quota != nil {
		quota = perKey.Quota
		rc.Quota = quota
	}
	if !perKey.Allowed {
		lg.Warn("Per-key rate limit exceeded", zap.String("key_id", id.KeyID))
		return Decision{Outcome: RateLimited, Stage: StagePerKey, Identity: id, Quota: quota}
	}
	return Decision{Outcome: Admitted, Stage: StagePerKey, Identity: id, Quota: quota}
}
