package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"red-ai/internal/logger"
)

// stage logs the boundaries of one external call within a flow.
type stage struct {
	log     *zap.Logger
	started time.Time
}

func (p *Pipeline) startStage(ctx context.Context, flow Flow, name string, fields ...zap.Field) *stage {
	l := logger.FromContext(ctx, p.log).With(
		zap.String("flow", string(flow)),
		zap.String("stage", name),
	)
	l.Debug("stage started", fields...)
	return &stage{log: l, started: time.Now()}
}

func (s *stage) succeeded(fields ...zap.Field) {
	fields = append(fields, zap.Duration("duration", time.Since(s.started)))
	s.log.Info("stage succeeded", fields...)
}

func (s *stage) failed(e *Error) *Error {
	fields := []zap.Field{
		zap.String("kind", string(e.Kind)),
		zap.Error(e.Err),
		zap.Duration("duration", time.Since(s.started)),
	}
	if status, ok := upstreamStatusCode(e.Err); ok {
		fields = append(fields, zap.Int("upstream_status", status))
	}
	s.log.Error("stage failed", fields...)
	return e
}

// reject logs a failure detected before any external call.
func (p *Pipeline) reject(ctx context.Context, e *Error) *Error {
	logger.FromContext(ctx, p.log).Warn("request rejected",
		zap.String("flow", string(e.Flow)),
		zap.String("stage", e.Stage),
		zap.String("kind", string(e.Kind)),
		zap.Error(e.Err),
	)
	return e
}
