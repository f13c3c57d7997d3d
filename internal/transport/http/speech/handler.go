// Package speech serves the gateway's public HTTP API.
package speech

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"odiadev-tts-server-go/internal/app/services"
	"odiadev-tts-server-go/internal/domain/cache"
	"odiadev-tts-server-go/internal/domain/engine"
	"odiadev-tts-server-go/internal/domain/usage"
	"odiadev-tts-server-go/internal/domain/voice"
	"odiadev-tts-server-go/internal/domain/voice/clone"
	platformerrors "odiadev-tts-server-go/internal/platform/errors"
	"odiadev-tts-server-go/internal/platform/logging"
	"odiadev-tts-server-go/internal/platform/observability"
	httptransport "odiadev-tts-server-go/internal/transport/http"
)

const (
	serviceName  = "ODIADEV Nigerian Multilingual TTS"
	testSentence = "Hello from Nigeria! This is a test of our multilingual TTS system."

	// statusClientClosed is logged when the caller disconnects mid-request.
	statusClientClosed = 499
)

// Options wires the handlers to the service objects built at startup.
type Options struct {
	Speech  *services.SpeechService
	Voices  *voice.Registry
	Clone   *clone.Service
	Ledger  *usage.Ledger
	Cache   *cache.Cache
	Engine  engine.Engine
	Metrics *observability.Metrics
	Logger  *logging.Logger

	Version        string
	MetricsPath    string
	ClientCacheAge time.Duration
}

// Service is the HTTP transport for speech, voices, cloning and status.
type Service struct {
	speech  *services.SpeechService
	voices  *voice.Registry
	clone   *clone.Service
	ledger  *usage.Ledger
	cache   *cache.Cache
	engine  engine.Engine
	metrics *observability.Metrics
	logger  *logging.Logger

	version        string
	metricsPath    string
	clientCacheAge time.Duration
	started        time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Speech == nil || opts.Voices == nil || opts.Ledger == nil || opts.Cache == nil || opts.Engine == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "speech.NewService", "speech, voices, ledger, cache and engine are required")
	}
	s := &Service{
		speech:         opts.Speech,
		voices:         opts.Voices,
		clone:          opts.Clone,
		ledger:         opts.Ledger,
		cache:          opts.Cache,
		engine:         opts.Engine,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		version:        opts.Version,
		metricsPath:    opts.MetricsPath,
		clientCacheAge: opts.ClientCacheAge,
		started:        time.Now(),
	}
	if s.version == "" {
		s.version = "dev"
	}
	if s.clientCacheAge <= 0 {
		s.clientCacheAge = time.Hour
	}
	return s, nil
}

// Register mounts every route on router.
func (s *Service) Register(_ context.Context, router gin.IRoutes) error {
	router.GET("/", s.handleRoot)
	router.GET("/speak", s.handleSpeak)
	router.POST("/speak", s.handleSpeak)
	router.GET("/test", s.handleTest)
	router.GET("/voices", s.handleVoices)
	router.GET("/health", s.handleHealth)
	router.GET("/stats", s.handleStats)

	if s.clone != nil {
		router.POST("/clone-voice", s.handleCloneSubmit)
		router.GET("/clone-voice/:job_id", s.handleCloneStatus)
	}
	if s.metrics != nil && s.metricsPath != "" {
		router.GET(s.metricsPath, gin.WrapH(s.metrics.Handler()))
	}

	s.logger.InfoTag("HTTP", "speech routes registered")
	return nil
}

// apiKey prefers an explicit parameter, then X-API-Key, then a bearer token.
func apiKey(c *gin.Context, param string) string {
	if key := strings.TrimSpace(param); key != "" {
		return key
	}
	if key := strings.TrimSpace(c.GetHeader("X-API-Key")); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// respondError writes the error envelope with the details each kind carries.
func (s *Service) respondError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		s.logger.DebugTag("HTTP", "%s %s: client went away", c.Request.Method, c.Request.URL.Path)
		c.AbortWithStatus(statusClientClosed)
		return
	}

	extra := gin.H{}
	switch platformerrors.KindOf(err) {
	case platformerrors.KindVoiceNotFound:
		extra["available_voices"] = s.voices.IDs()
	case platformerrors.KindServiceUnavailable:
		if cause := services.EngineCause(err); cause != "" {
			extra["reason"] = string(cause)
		}
	case platformerrors.KindInternal, platformerrors.KindUnknown:
		s.logger.ErrorTag("HTTP", "%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	httptransport.RespondKindError(c, err, extra)
}

func (s *Service) respondNotFound(c *gin.Context, message string) {
	httptransport.RespondError(c, http.StatusNotFound, message, gin.H{"error": "not_found"})
}
