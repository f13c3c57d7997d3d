// Package edge adapts Microsoft Edge's online neural voices to the engine
// contract.
package edge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/wujunwei928/edge-tts-go/edge_tts"

	"odiadev-tts-server-go/internal/domain/audio"
	"odiadev-tts-server-go/internal/domain/engine"
	"odiadev-tts-server-go/internal/domain/voice"
	"odiadev-tts-server-go/internal/platform/logging"
)

const Name = "edge"

// Prosody is the SSML adjustment Edge applies on top of a voice, in the
// signed forms the service accepts ("-10%", "+2Hz").
type Prosody struct {
	Rate   string
	Volume string
	Pitch  string
}

// ProsodyFor converts a profile's offsets.
func ProsodyFor(p voice.Profile) Prosody {
	return Prosody{
		Rate:   fmt.Sprintf("%+d%%", p.RateOffsetPct),
		Volume: fmt.Sprintf("%+d%%", p.VolumeOffsetPct),
		Pitch:  fmt.Sprintf("%+dHz", p.PitchOffsetHz),
	}
}

// Options builds the session options for voiceName.
func (p Prosody) Options(voiceName string) []edge_tts.CommunicateOption {
	return []edge_tts.CommunicateOption{
		edge_tts.SetVoice(voiceName),
		edge_tts.SetRate(p.Rate),
		edge_tts.SetVolume(p.Volume),
		edge_tts.SetPitch(p.Pitch),
	}
}

// Dialer runs one Edge session and returns the MP3 it streamed.
type Dialer func(text, voiceName string, prosody Prosody) ([]byte, error)

// DialEdge synthesizes through the live Edge service.
func DialEdge(text, voiceName string, prosody Prosody) ([]byte, error) {
	communicate, err := edge_tts.NewCommunicate(text, prosody.Options(voiceName)...)
	if err != nil {
		return nil, err
	}
	return communicate.Stream()
}

// Config tunes the adapter.
type Config struct {
	// MaxConcurrent bounds simultaneous Edge sessions. Calls beyond it are
	// rejected as overloaded rather than queued.
	MaxConcurrent int
	Dial          Dialer
}

// Engine synthesizes through Edge TTS. Edge always returns MP3; WAV requests
// are converted after the call.
type Engine struct {
	dial   Dialer
	slots  chan struct{}
	closed atomic.Bool
	logger *logging.Logger
}

func New(cfg Config, logger *logging.Logger) *Engine {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 16
	}
	if cfg.Dial == nil {
		cfg.Dial = DialEdge
	}
	return &Engine{
		dial:   cfg.Dial,
		slots:  make(chan struct{}, cfg.MaxConcurrent),
		logger: logger,
	}
}

func (e *Engine) Name() string { return Name }

type result struct {
	data []byte
	err  error
}

// Synthesize runs the blocking Edge call on its own goroutine so the caller
// can give up when ctx ends. An abandoned call finishes in the background
// and its result is discarded.
func (e *Engine) Synthesize(ctx context.Context, req engine.Request) ([]byte, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, engine.InvalidInput(Name, errors.New("text is empty"))
	}
	if req.Voice.EngineVoice == "" {
		return nil, engine.InvalidInput(Name, fmt.Errorf("voice %s has no edge voice", req.Voice.ID))
	}
	if req.Format != audio.FormatWAV && req.Format != audio.FormatMP3 {
		return nil, engine.InvalidInput(Name, fmt.Errorf("unsupported format %q", req.Format))
	}
	if e.closed.Load() {
		return nil, engine.Overloaded(Name, errors.New("engine closed"))
	}

	select {
	case e.slots <- struct{}{}:
	default:
		return nil, engine.Overloaded(Name, fmt.Errorf("all %d sessions busy", cap(e.slots)))
	}

	prosody := ProsodyFor(req.Voice)
	e.logger.DebugTag("Engine", "edge session for %s: voice=%s rate=%s volume=%s pitch=%s",
		req.Voice.ID, req.Voice.EngineVoice, prosody.Rate, prosody.Volume, prosody.Pitch)

	done := make(chan result, 1)
	go func() {
		defer func() { <-e.slots }()
		data, err := e.call(text, req.Voice.EngineVoice, prosody)
		done <- result{data: data, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, engine.Timeout(Name, ctx.Err())
		}
		return nil, ctx.Err()
	}

	if res.err != nil {
		return nil, engine.Overloaded(Name, res.err)
	}
	if len(res.data) == 0 {
		return nil, engine.Overloaded(Name, errors.New("edge returned no audio"))
	}

	if req.Format == audio.FormatMP3 {
		return res.data, nil
	}
	wav, err := audio.MP3ToWAV(res.data)
	if err != nil {
		return nil, fmt.Errorf("convert edge output to wav: %w", err)
	}
	return wav, nil
}

func (e *Engine) call(text, voiceName string, prosody Prosody) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("edge session panicked: %v", r)
		}
	}()
	data, err = e.dial(text, voiceName, prosody)
	if err != nil {
		return nil, fmt.Errorf("edge session for %s: %w", voiceName, err)
	}
	return data, nil
}

// HealthCheck reports whether the adapter can accept work. It does not call
// Edge; the breaker tracks remote failures.
func (e *Engine) HealthCheck(context.Context) error {
	if e.closed.Load() {
		return errors.New("edge engine closed")
	}
	if len(e.slots) == cap(e.slots) {
		return engine.Overloaded(Name, errors.New("all sessions busy"))
	}
	return nil
}

// InFlight returns the number of open Edge sessions.
func (e *Engine) InFlight() int {
	return len(e.slots)
}

func (e *Engine) Close() {
	e.closed.Store(true)
}
