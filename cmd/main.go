package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"red-ai/handler"
	"red-ai/internal/app"
	"red-ai/internal/config"
	"red-ai/internal/logger"
	"red-ai/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load("")
	if err != nil {
		logger.New(false).Fatal("failed to load configuration", zap.Error(err))
	}
	log := logger.New(cfg.Debug)
	defer func() { _ = log.Sync() }()

	flow := usecase.Flow(cfg.Flow)
	if flow == "" {
		log.Error("required environment variable is not set", zap.String("key", "PIPELINE_FLOW"))
		os.Exit(1)
	}
	log = log.With(zap.String("flow", string(flow)))

	// ---- Clients ----
	a, err := app.Build(ctx, cfg, log, flow)
	if err != nil {
		log.Error("failed to build pipeline", zap.Error(err))
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	// ---- Handler ----
	h, err := handler.NewHandler(a.Pipeline, log)
	if err != nil {
		log.Error("failed to create handler", zap.Error(err))
		os.Exit(1)
	}
	fn, err := h.For(flow)
	if err != nil {
		log.Error("failed to select handler", zap.Error(err))
		os.Exit(1)
	}

	lambda.Start(fn)
}
