package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"odiadev-tts-server-go/internal/domain/audio"
	"odiadev-tts-server-go/internal/domain/cache"
	"odiadev-tts-server-go/internal/domain/engine"
	"odiadev-tts-server-go/internal/domain/usage"
	"odiadev-tts-server-go/internal/domain/voice"
	platformerrors "odiadev-tts-server-go/internal/platform/errors"
	"odiadev-tts-server-go/internal/platform/logging"
	"odiadev-tts-server-go/internal/platform/observability"
)

// State is a step of a speak request.
type State string

const (
	StateValidating   State = "validating"
	StateAuthorizing  State = "authorizing"
	StateCacheCheck   State = "cache_check"
	StateCacheHit     State = "cache_hit"
	StateCacheMiss    State = "cache_miss"
	StateSynthesizing State = "synthesizing"
	StateCaching      State = "caching"
	StateResponding   State = "responding"
	StateFailed       State = "failed"
)

func (s State) terminal() bool {
	return s == StateResponding || s == StateFailed
}

// Transition is reported for every state change of a request.
type Transition struct {
	RequestID string
	From      State
	To        State
	At        time.Time
}

type SpeakRequest struct {
	Text    string
	VoiceID string
	Format  string
	APIKey  string
}

// SpeakResult is the audio and the facts the HTTP layer reports in headers.
type SpeakResult struct {
	RequestID   string
	Audio       []byte
	Format      audio.Format
	Voice       voice.Profile
	Characters  int
	Outcome     cache.Outcome
	Fingerprint cache.Fingerprint
	Tier        string
	Attempts    int
	Account     usage.Account
}

func (r SpeakResult) Cached() bool {
	return r.Outcome.Cached()
}

// Voices resolves voice selectors.
type Voices interface {
	Resolve(id string) (voice.Profile, error)
	IDs() []string
}

// AudioCache runs a synthesis at most once per fingerprint.
type AudioCache interface {
	Do(ctx context.Context, fp cache.Fingerprint, format audio.Format, synth cache.SynthFunc) (cache.Entry, cache.Outcome, error)
}

// Ledger authorizes and bills requests.
type Ledger interface {
	Authorize(ctx context.Context, key string, chars int) (usage.Decision, error)
	Commit(ctx context.Context, key string, chars int, cacheHit bool) (usage.Account, error)
	Release(ctx context.Context, key string, failed bool) error
}

// SpeechConfig wires the dispatcher.
type SpeechConfig struct {
	Voices  Voices
	Engine  engine.Engine
	Cache   AudioCache
	Ledger  Ledger
	Metrics *observability.Metrics
	Logger  *logging.Logger

	EngineTimeout time.Duration
	RetryBackoff  time.Duration
	MaxTextChars  int
	DefaultFormat audio.Format
	DefaultVoice  string
	DefaultAPIKey string

	// OnTransition, when set, is called synchronously for every transition.
	OnTransition func(Transition)
}

// SpeechService turns a speak request into audio: validate, authorize,
// fingerprint, check the cache, synthesize on a miss, commit usage.
type SpeechService struct {
	voices  Voices
	engine  engine.Engine
	cache   AudioCache
	ledger  Ledger
	metrics *observability.Metrics
	logger  *logging.Logger

	engineTimeout time.Duration
	retryBackoff  time.Duration
	maxTextChars  int
	defaultFormat audio.Format
	defaultVoice  string
	defaultAPIKey string
	onTransition  func(Transition)
}

func NewSpeechService(config *SpeechConfig) (*SpeechService, error) {
	if config.Voices == nil || config.Engine == nil || config.Cache == nil || config.Ledger == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "services.NewSpeechService", "voices, engine, cache and ledger are required")
	}
	s := &SpeechService{
		voices:        config.Voices,
		engine:        config.Engine,
		cache:         config.Cache,
		ledger:        config.Ledger,
		metrics:       config.Metrics,
		logger:        config.Logger,
		engineTimeout: config.EngineTimeout,
		retryBackoff:  config.RetryBackoff,
		maxTextChars:  config.MaxTextChars,
		defaultFormat: config.DefaultFormat,
		defaultVoice:  config.DefaultVoice,
		defaultAPIKey: config.DefaultAPIKey,
		onTransition:  config.OnTransition,
	}
	if s.engineTimeout <= 0 {
		s.engineTimeout = 20 * time.Second
	}
	if s.retryBackoff <= 0 {
		s.retryBackoff = 500 * time.Millisecond
	}
	if s.maxTextChars <= 0 {
		s.maxTextChars = 5000
	}
	if s.defaultFormat == "" {
		s.defaultFormat = audio.FormatWAV
	}
	return s, nil
}

func (s *SpeechService) DefaultVoice() string  { return s.defaultVoice }
func (s *SpeechService) DefaultAPIKey() string { return s.defaultAPIKey }
func (s *SpeechService) VoiceIDs() []string    { return s.voices.IDs() }

// tracker records one request's state machine. The synthesis closure may
// report transitions after the caller has given up, so it is locked and
// ignores anything after a terminal state.
type tracker struct {
	mu    sync.Mutex
	id    string
	state State
	svc   *SpeechService
}

func (t *tracker) to(next State) {
	t.mu.Lock()
	if t.state.terminal() {
		t.mu.Unlock()
		return
	}
	tr := Transition{RequestID: t.id, From: t.state, To: next, At: time.Now()}
	t.state = next
	t.mu.Unlock()

	t.svc.logger.DebugTag("Dispatch", "%s %s -> %s", tr.RequestID, tr.From, tr.To)
	if t.svc.onTransition != nil {
		t.svc.onTransition(tr)
	}
}

func (t *tracker) fail(err error) error {
	t.to(StateFailed)
	return err
}

type validated struct {
	text   string
	chars  int
	voice  voice.Profile
	format audio.Format
	key    string
}

// Speak runs one request through the dispatcher. Errors carry a
// platformerrors kind, except a caller cancellation which returns ctx.Err().
func (s *SpeechService) Speak(ctx context.Context, req SpeakRequest) (res SpeakResult, err error) {
	t := &tracker{id: uuid.NewString(), svc: s}
	ctx, span := observability.StartSpan(ctx, "dispatch", "speak", slog.String("request_id", t.id))
	defer func() {
		if err == nil {
			span.Annotate(slog.String("outcome", string(res.Outcome)), slog.Int("attempts", res.Attempts))
		}
		span.End(err)
	}()
	t.to(StateValidating)

	in, err := s.validate(req)
	if err != nil {
		s.metrics.RecordSpeak(string(platformerrors.KindOf(err)), false)
		return SpeakResult{}, t.fail(err)
	}

	t.to(StateAuthorizing)
	decision, err := s.ledger.Authorize(ctx, in.key, in.chars)
	if err != nil {
		s.logger.ErrorTag("Dispatch", "%s authorize failed: %v", t.id, err)
		s.metrics.RecordSpeak(string(platformerrors.KindInternal), false)
		return SpeakResult{}, t.fail(platformerrors.Reclassify(platformerrors.KindInternal, "dispatch.authorize", "usage ledger unavailable", err))
	}
	if !decision.Allowed {
		err := denial(decision)
		s.metrics.RecordSpeak(string(platformerrors.KindOf(err)), false)
		return SpeakResult{}, t.fail(err)
	}

	t.to(StateCacheCheck)
	fp := cache.Compute(in.text, in.voice.CacheKey(), in.format)
	var attempts atomic.Int32
	entry, outcome, err := s.cache.Do(ctx, fp, in.format, func(flightCtx context.Context) ([]byte, error) {
		t.to(StateCacheMiss)
		t.to(StateSynthesizing)
		data, err := s.synthesize(flightCtx, in, &attempts)
		if err == nil {
			t.to(StateCaching)
		}
		return data, err
	})
	if err != nil {
		return SpeakResult{}, t.fail(s.abort(ctx, t.id, in.key, err))
	}
	if outcome.Cached() {
		t.to(StateCacheHit)
	}

	// The audio exists; billing must not depend on the client staying.
	acct, err := s.ledger.Commit(context.WithoutCancel(ctx), in.key, in.chars, outcome.Cached())
	if err != nil {
		s.logger.ErrorTag("Dispatch", "%s commit failed for %s: %v", t.id, fp.Short(), err)
		s.metrics.RecordSpeak(string(platformerrors.KindInternal), outcome.Cached())
		return SpeakResult{}, t.fail(platformerrors.Reclassify(platformerrors.KindInternal, "dispatch.commit", "failed to record usage", err))
	}

	t.to(StateResponding)
	s.metrics.RecordSpeak("ok", outcome.Cached())
	s.logger.InfoTag("Dispatch", "%s voice=%s format=%s chars=%d outcome=%s tier=%s bytes=%d",
		t.id, in.voice.ID, in.format, in.chars, outcome, acct.Tier, len(entry.Audio))

	return SpeakResult{
		RequestID:   t.id,
		Audio:       entry.Audio,
		Format:      entry.Format,
		Voice:       in.voice,
		Characters:  in.chars,
		Outcome:     outcome,
		Fingerprint: fp,
		Tier:        acct.Tier,
		Attempts:    int(attempts.Load()),
		Account:     acct,
	}, nil
}

func (s *SpeechService) validate(req SpeakRequest) (validated, error) {
	const op = "dispatch.validate"

	text := cache.NormalizeText(req.Text)
	if text == "" {
		return validated{}, platformerrors.New(platformerrors.KindInvalidRequest, op, "text is required")
	}
	chars := utf8.RuneCountInString(text)
	if chars > s.maxTextChars {
		return validated{}, platformerrors.New(platformerrors.KindInvalidRequest, op,
			fmt.Sprintf("text is %d characters, maximum is %d", chars, s.maxTextChars))
	}

	format, err := audio.ParseFormat(req.Format, s.defaultFormat)
	if err != nil {
		return validated{}, platformerrors.Reclassify(platformerrors.KindInvalidRequest, op, "unsupported format", err)
	}

	voiceID := strings.TrimSpace(req.VoiceID)
	if voiceID == "" {
		voiceID = s.defaultVoice
	}
	profile, err := s.voices.Resolve(voiceID)
	if err != nil {
		return validated{}, err
	}

	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		key = s.defaultAPIKey
	}
	if key == "" {
		return validated{}, platformerrors.New(platformerrors.KindInvalidRequest, op, "api_key is required")
	}

	return validated{text: text, chars: chars, voice: profile, format: format, key: key}, nil
}

func denial(d usage.Decision) error {
	const op = "dispatch.authorize"
	switch d.Reason {
	case usage.ReasonQuotaExceeded:
		return platformerrors.New(platformerrors.KindQuotaExceeded, op,
			fmt.Sprintf("request limit of %d for the %s tier reached", d.Account.RequestsLimit, d.Plan.Tier))
	case usage.ReasonRateLimited:
		return platformerrors.New(platformerrors.KindRateLimited, op, "too many requests, slow down")
	case usage.ReasonTextTooLong:
		return platformerrors.New(platformerrors.KindInvalidRequest, op,
			fmt.Sprintf("the %s tier allows at most %d characters per request", d.Plan.Tier, d.Plan.MaxTextChars))
	default:
		return platformerrors.New(platformerrors.KindUnauthorized, op, "invalid api key")
	}
}

// synthesize calls the engine, retrying once after retryBackoff when the
// failure is transient. Each attempt gets its own timeout.
func (s *SpeechService) synthesize(ctx context.Context, in validated, attempts *atomic.Int32) ([]byte, error) {
	req := engine.Request{Text: in.text, Voice: in.voice, Format: in.format}
	return backoff.Retry(ctx, func() ([]byte, error) {
		n := attempts.Add(1)
		attemptCtx, cancel := context.WithTimeout(ctx, s.engineTimeout)
		defer cancel()

		data, err := s.engine.Synthesize(attemptCtx, req)
		if err == nil {
			return data, nil
		}
		if !engine.Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		s.logger.WarnTag("Dispatch", "engine attempt %d for voice %s failed (%s): %v", n, in.voice.ID, engine.KindOf(err), err)
		return nil, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.retryBackoff)),
		backoff.WithMaxTries(2),
	)
}

// abort releases the reservation and maps a synthesis failure to a request
// error. No substitute audio is ever produced.
func (s *SpeechService) abort(ctx context.Context, requestID, key string, err error) error {
	const op = "dispatch.synthesize"
	releaseCtx := context.WithoutCancel(ctx)

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		if relErr := s.ledger.Release(releaseCtx, key, false); relErr != nil {
			s.logger.ErrorTag("Dispatch", "%s release failed: %v", requestID, relErr)
		}
		s.metrics.RecordSpeak("cancelled", false)
		s.logger.InfoTag("Dispatch", "%s caller went away: %v", requestID, ctxErr)
		return ctxErr
	}

	var mapped *platformerrors.Error
	failed := true
	switch engine.KindOf(err) {
	case engine.KindInvalidInput:
		failed = false
		mapped = platformerrors.Reclassify(platformerrors.KindInvalidRequest, op, "the engine rejected the text", err)
	case engine.KindTimeout:
		mapped = platformerrors.Reclassify(platformerrors.KindServiceUnavailable, op, "speech engine timed out",
			platformerrors.Reclassify(platformerrors.KindEngineTimeout, op, "engine timeout", err))
	case engine.KindOverloaded:
		mapped = platformerrors.Reclassify(platformerrors.KindServiceUnavailable, op, "speech engine is overloaded",
			platformerrors.Reclassify(platformerrors.KindEngineOverloaded, op, "engine overloaded", err))
	default:
		mapped = platformerrors.Reclassify(platformerrors.KindInternal, op, "speech synthesis failed", err)
	}

	if relErr := s.ledger.Release(releaseCtx, key, failed); relErr != nil {
		s.logger.ErrorTag("Dispatch", "%s release failed: %v", requestID, relErr)
	}
	s.metrics.RecordSpeak(string(mapped.Kind), false)
	s.logger.WarnTag("Dispatch", "%s synthesis failed: %v", requestID, err)
	return mapped
}

// EngineCause returns the engine-level kind beneath a service_unavailable
// error, for the error envelope's reason field.
func EngineCause(err error) platformerrors.Kind {
	for e := err; e != nil; e = errors.Unwrap(e) {
		typed, ok := e.(*platformerrors.Error)
		if ok && (typed.Kind == platformerrors.KindEngineTimeout || typed.Kind == platformerrors.KindEngineOverloaded) {
			return typed.Kind
		}
	}
	return ""
}
