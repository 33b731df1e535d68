// Command apikeys manages the API keys accepted by api-server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"

	appkg "github.com/xenking/tradegate/internal/app"
	"github.com/xenking/tradegate/internal/keyadmin"
	"github.com/xenking/tradegate/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lg, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	defaultURL := appkg.DefaultDatabaseURL
	if cfg, err := appkg.LoadEnvConfig(); err == nil {
		defaultURL = cfg.DatabaseURL
	} else {
		lg.Warn("Config not loaded, using default database URL", zap.Error(err))
	}

	open := func(ctx context.Context, databaseURL string) (keyadmin.Store, error) {
		return storage.Open(ctx, databaseURL)
	}
	cmd := keyadmin.NewRootCommand(open, defaultURL, lg)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
