package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/tradegate/internal/admission"
	"github.com/xenking/tradegate/internal/handler"
	"github.com/xenking/tradegate/internal/httperr"
	"github.com/xenking/tradegate/pkg/health"
	"github.com/xenking/tradegate/pkg/httpmiddleware"
)

// RouterDeps are the collaborators NewRouter mounts.
type RouterDeps struct {
	Logger         *zap.Logger
	Pipeline       *admission.Pipeline
	Recorder       admission.UsageRecorder
	Health         *health.Health
	Handler        *handler.Handler
	CORS           CORSConfig
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// NewRouter builds the HTTP handler tree. Probes are served outside
// admission; every /v1 route requires an API key.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(httpmiddleware.RouteLabeler())
	r.NotFound(d.Handler.NotFound)
	r.MethodNotAllowed(d.Handler.MethodNotAllowed)

	r.Get("/health", d.Handler.Health)
	r.Get("/livez", d.Health.LiveEndpoint)
	r.Get("/readyz", d.Health.ReadyEndpoint)

	r.Route("/v1", func(r chi.Router) {
		r.Use(
			admission.Track(d.Recorder),
			admission.Guard(d.Pipeline, true),
		)
		d.Handler.RegisterTrading(r)
	})

	return httpmiddleware.Wrap(r,
		httpmiddleware.InjectLogger(d.Logger),
		httpmiddleware.Instrument("tradegate-api", d.TracerProvider, d.MeterProvider),
		httpmiddleware.RequestID(),
		httpmiddleware.LogRequests(),
		httpmiddleware.Recovery(httperr.Internal),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins: d.CORS.Origins,
			AllowHeaders: []string{"Authorization", "Content-Type", httpmiddleware.RequestIDHeader},
			ExposeHeaders: []string{
				httpmiddleware.RequestIDHeader,
				admission.HeaderLimit,
				admission.HeaderRemaining,
				admission.HeaderReset,
				admission.HeaderRetryAfter,
			},
			AllowCredentials: d.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
	)
}
