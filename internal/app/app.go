package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/tradegate/internal/admission"
	"github.com/xenking/tradegate/internal/domain/auth"
	"github.com/xenking/tradegate/internal/handler"
	"github.com/xenking/tradegate/internal/storage"
	"github.com/xenking/tradegate/internal/usage"
	"github.com/xenking/tradegate/pkg/health"
	"github.com/xenking/tradegate/pkg/ratelimit"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.Int("global_limit", cfg.RateLimit.Global),
		zap.Int("per_key_limit", cfg.RateLimit.PerKey),
	)

	store, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer func() {
		if err := store.Close(); err != nil {
			lg.Warn("Close storage", zap.Error(err))
		}
	}()

	recorder := usage.NewRecorder(store, cfg.Usage, lg.Named("usage"))

	healthSvc := health.New(lg.Named("health"))
	healthSvc.AddReadinessCheck("database", 5*time.Second, health.PingCheck(store.Ping))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("usage_queue", time.Second, health.SaturationCheck(recorder.Saturation, 0.9))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	limiter := ratelimit.New(ratelimit.Config{
		Global: cfg.RateLimit.Global,
		PerKey: cfg.RateLimit.PerKey,
	})
	authenticator := auth.NewAuthenticator(store, auth.AuthenticatorOptions{
		MaxConcurrentVerify: cfg.Auth.MaxConcurrentVerify,
		TracerProvider:      m.TracerProvider(),
	})
	pipeline, err := admission.NewPipeline(limiter, authenticator, m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create admission pipeline")
	}

	// The recorder outlives ctx so writes queued by in-flight requests are
	// flushed after the server stops.
	recCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
	var bg errgroup.Group
	bg.Go(func() error { return recorder.Run(recCtx) })
	defer func() {
		stopRecorder()
		if err := bg.Wait(); err != nil {
			lg.Error("Usage recorder stopped", zap.Error(err))
		}
		lg.Info("Usage recorder stopped", zap.Uint64("dropped", recorder.Dropped()))
	}()

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: NewRouter(RouterDeps{
			Logger:         lg,
			Pipeline:       pipeline,
			Recorder:       recorder,
			Health:         healthSvc,
			Handler:        handler.New(),
			CORS:           cfg.CORS,
			TracerProvider: m.TracerProvider(),
			MeterProvider:  m.MeterProvider(),
		}),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
