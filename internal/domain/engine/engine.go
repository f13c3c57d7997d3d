// Package engine defines the contract between the gateway and the speech
// synthesis backend, plus decorators that wrap any backend.
package engine

import (
	"context"
	"errors"
	"fmt"

	"odiadev-tts-server-go/internal/domain/audio"
	"odiadev-tts-server-go/internal/domain/voice"
)

// Request is one synthesis call.
type Request struct {
	Text   string
	Voice  voice.Profile
	Format audio.Format
}

// Engine turns text into audio bytes in the requested format. An
// implementation must return either non-empty audio or an error.
type Engine interface {
	Name() string
	Synthesize(ctx context.Context, req Request) ([]byte, error)
	HealthCheck(ctx context.Context) error
}

// Kind classifies engine failures for the retry policy.
type Kind string

const (
	KindTimeout      Kind = "timeout"
	KindOverloaded   Kind = "overloaded"
	KindInvalidInput Kind = "invalid_input"
	KindUnknown      Kind = "unknown"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Error is returned by engines for classified failures.
type Error struct {
	Kind   Kind
	Engine string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("engine %s: %s", e.Engine, e.Kind)
	}
	return fmt.Sprintf("engine %s: %s: %v", e.Engine, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func Timeout(engine string, err error) error {
	return &Error{Kind: KindTimeout, Engine: engine, Err: err}
}

func Overloaded(engine string, err error) error {
	return &Error{Kind: KindOverloaded, Engine: engine, Err: err}
}

func InvalidInput(engine string, err error) error {
	return &Error{Kind: KindInvalidInput, Engine: engine, Err: err}
}

// KindOf classifies err. A deadline that expired while waiting on the engine
// counts as a timeout even when the engine did not wrap it.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// Retryable reports whether a single retry may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindOverloaded:
		return true
	default:
		return false
	}
}
