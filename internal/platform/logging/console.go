package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	colorReset = "\x1b[0m"
	colorTime  = "\x1b[90m"
	colorDebug = "\x1b[36m"
	colorInfo  = "\x1b[32m"
	colorWarn  = "\x1b[33m"
	colorError = "\x1b[31m"
)

// moduleColors assigns a console color to each module tag.
var moduleColors = map[string]string{
	"[Boot]":          "\x1b[96m",
	"[HTTP]":          "\x1b[95m",
	"[Engine]":        "\x1b[94m",
	"[Cache]":         "\x1b[92m",
	"[Ledger]":        "\x1b[93m",
	"[Voice]":         "\x1b[35m",
	"[Clone]":         "\x1b[35m",
	"[Dispatch]":      "\x1b[97m",
	"[Storage]":       "\x1b[36m",
	"[EventBus]":      "\x1b[90m",
	"[OBSERVABILITY]": "\x1b[90m",
}

// consoleHandler renders records as "[time] [LEVEL] msg { k=v }" with colors.
type consoleHandler struct {
	writer io.Writer
	level  slog.Level
	attrs  []slog.Attr
	mu     *sync.Mutex
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	timeStr := r.Time.Format("2006-01-02 15:04:05.000")

	var levelColor string
	switch {
	case r.Level >= slog.LevelError:
		levelColor = colorError
	case r.Level >= slog.LevelWarn:
		levelColor = colorWarn
	case r.Level >= slog.LevelInfo:
		levelColor = colorInfo
	default:
		levelColor = colorDebug
	}

	var b strings.Builder
	msg := r.Message
	if color, ok := tagColor(msg); ok {
		fmt.Fprintf(&b, "%s[%s]%s %s%s%s", colorTime, timeStr, colorReset, color, msg, colorReset)
	} else {
		fmt.Fprintf(&b, "%s[%s]%s %s[%s]%s %s", colorTime, timeStr, colorReset, levelColor, r.Level.String(), colorReset, msg)
	}

	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		b.WriteString(" {")
		for _, a := range h.attrs {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		}
		r.Attrs(func(a slog.Attr) bool {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
			return true
		})
		b.WriteString(" }")
	}
	b.WriteByte('\n')

	mu := h.mu
	if mu == nil {
		mu = &defaultConsoleMu
	}
	mu.Lock()
	defer mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

var defaultConsoleMu sync.Mutex

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *consoleHandler) WithGroup(string) slog.Handler {
	return h
}

func tagColor(msg string) (string, bool) {
	if !strings.HasPrefix(msg, "[") {
		return "", false
	}
	end := strings.IndexByte(msg, ']')
	if end < 0 {
		return "", false
	}
	color, ok := moduleColors[msg[:end+1]]
	return color, ok
}
