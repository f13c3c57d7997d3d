package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type spanKey struct{}

// Span times one operation. A nil *Span is valid and does nothing, which is
// what StartSpan returns while span logging is off.
type Span struct {
	logger    *slog.Logger
	cfg       Config
	component string
	operation string
	parent    string
	start     time.Time

	mu    sync.Mutex
	attrs []slog.Attr
	ended bool
}

// StartSpan begins a span and stores it in the returned context so nested
// calls record it as their parent.
func StartSpan(ctx context.Context, component, operation string, attrs ...slog.Attr) (context.Context, *Span) {
	logger, cfg := current()
	if logger == nil || !cfg.active() {
		return ctx, nil
	}
	s := &Span{
		logger:    logger,
		cfg:       cfg,
		component: component,
		operation: operation,
		start:     time.Now(),
		attrs:     append([]slog.Attr(nil), attrs...),
	}
	if parent := SpanFromContext(ctx); parent != nil {
		s.parent = parent.Name()
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

// SpanFromContext returns the innermost span in ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

func (s *Span) Name() string {
	if s == nil {
		return ""
	}
	return s.component + "/" + s.operation
}

// Annotate adds attributes reported when the span ends.
func (s *Span) Annotate(attrs ...slog.Attr) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, attrs...)
	s.mu.Unlock()
}

// End logs the span once. Spans at or above the slow threshold log at warn
// level; the rest only appear with tracing on.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	attrs := s.attrs
	s.mu.Unlock()

	elapsed := time.Since(s.start)
	slow := s.cfg.SlowThreshold > 0 && elapsed >= s.cfg.SlowThreshold
	if !slow && !s.cfg.Tracing {
		return
	}

	level, msg := slog.LevelDebug, "span"
	if slow {
		level, msg = slog.LevelWarn, "slow span"
	}

	out := make([]slog.Attr, 0, len(attrs)+5)
	out = append(out,
		slog.String("component", s.component),
		slog.String("operation", s.operation),
		slog.Duration("duration", elapsed),
	)
	if s.parent != "" {
		out = append(out, slog.String("parent", s.parent))
	}
	if err != nil {
		out = append(out, slog.String("error", err.Error()))
	}
	out = append(out, attrs...)
	s.logger.LogAttrs(context.Background(), level, msg, out...)
}
