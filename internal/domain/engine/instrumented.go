package engine

import (
	"context"
	"log/slog"
	"time"

	"odiadev-tts-server-go/internal/platform/logging"
	"odiadev-tts-server-go/internal/platform/observability"
)

// InstrumentedEngine records the outcome and latency of every attempt.
type InstrumentedEngine struct {
	inner   Engine
	metrics *observability.Metrics
	logger  *logging.Logger
}

func WithInstrumentation(inner Engine, metrics *observability.Metrics, logger *logging.Logger) *InstrumentedEngine {
	return &InstrumentedEngine{inner: inner, metrics: metrics, logger: logger}
}

func (e *InstrumentedEngine) Name() string { return e.inner.Name() }

func (e *InstrumentedEngine) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	ctx, span := observability.StartSpan(ctx, "engine", "synthesize",
		slog.String("engine", e.inner.Name()),
		slog.String("voice", req.Voice.ID),
	)
	start := time.Now()
	data, err := e.inner.Synthesize(ctx, req)
	elapsed := time.Since(start)
	span.Annotate(slog.Int("bytes", len(data)))
	span.End(err)

	result := "ok"
	if err != nil {
		result = string(KindOf(err))
		e.logger.WarnTag("Engine", "%s synthesis failed after %v (voice=%s): %v",
			e.inner.Name(), elapsed, req.Voice.ID, err)
	} else {
		e.logger.DebugTag("Engine", "%s synthesized %d bytes in %v (voice=%s, format=%s)",
			e.inner.Name(), len(data), elapsed, req.Voice.ID, req.Format)
	}
	e.metrics.RecordEngineAttempt(e.inner.Name(), result, elapsed)
	return data, err
}

func (e *InstrumentedEngine) HealthCheck(ctx context.Context) error {
	return e.inner.HealthCheck(ctx)
}
