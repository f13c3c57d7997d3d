package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config controls span logging.
type Config struct {
	// Tracing logs every finished span at debug level.
	Tracing bool
	// SlowThreshold logs spans that take at least this long at warn level,
	// with or without tracing. Zero turns it off.
	SlowThreshold time.Duration
}

func (c Config) active() bool {
	return c.Tracing || c.SlowThreshold > 0
}

// ShutdownFunc detaches the span logger installed by Setup.
type ShutdownFunc func(context.Context) error

var (
	mu        sync.RWMutex
	spanLog   *slog.Logger
	spanState Config
)

func current() (*slog.Logger, Config) {
	mu.RLock()
	defer mu.RUnlock()
	return spanLog, spanState
}

// Setup installs the logger that receives finished spans. Until it is called,
// and after the returned ShutdownFunc runs, StartSpan is a no-op.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	mu.Lock()
	spanLog = logger
	spanState = cfg
	mu.Unlock()

	if logger != nil {
		logger.InfoContext(ctx, "[Observability] span logging configured",
			slog.Bool("tracing", cfg.Tracing),
			slog.Duration("slow_threshold", cfg.SlowThreshold),
		)
	}
	return func(context.Context) error {
		mu.Lock()
		spanLog = nil
		spanState = Config{}
		mu.Unlock()
		return nil
	}, nil
}
