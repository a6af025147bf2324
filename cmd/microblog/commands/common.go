package commands

import (
	"context"

	"go.uber.org/zap"

	"github.com/d60-Lab/microblog/config"
	"github.com/d60-Lab/microblog/internal/app"
	"github.com/d60-Lab/microblog/pkg/logger"
	"github.com/d60-Lab/microblog/pkg/tracing"
)

// bootstrap loads config, installs logging and tracing, and builds the app. The returned
// cleanup closes everything in reverse order.
func bootstrap(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(cfg); err != nil {
		return nil, nil, err
	}
	shutdownTracing, err := tracing.Init(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, logger.L())
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, nil, err
	}
	cleanup := func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
		logger.Sync()
	}
	return a, cleanup, nil
}
