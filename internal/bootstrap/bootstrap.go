package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"odiadev-tts-server-go/internal/app/services"
	"odiadev-tts-server-go/internal/domain/audio"
	"odiadev-tts-server-go/internal/domain/cache"
	"odiadev-tts-server-go/internal/domain/engine"
	"odiadev-tts-server-go/internal/domain/engine/edge"
	"odiadev-tts-server-go/internal/domain/eventbus"
	"odiadev-tts-server-go/internal/domain/usage"
	usagestore "odiadev-tts-server-go/internal/domain/usage/store"
	"odiadev-tts-server-go/internal/domain/voice"
	"odiadev-tts-server-go/internal/domain/voice/clone"
	platformconfig "odiadev-tts-server-go/internal/platform/config"
	platformerrors "odiadev-tts-server-go/internal/platform/errors"
	platformlogging "odiadev-tts-server-go/internal/platform/logging"
	platformobservability "odiadev-tts-server-go/internal/platform/observability"
	platformstorage "odiadev-tts-server-go/internal/platform/storage"
	httptransport "odiadev-tts-server-go/internal/transport/http"
	httpspeech "odiadev-tts-server-go/internal/transport/http/speech"
)

// Version is reported by GET / and /health. Release builds set it with
// -ldflags "-X odiadev-tts-server-go/internal/bootstrap.Version=...".
var Version = "2.0.0"

const (
	janitorInterval  = time.Minute
	eventBusWorkers  = 2
	closeStepTimeout = 5 * time.Second
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	metrics               *platformobservability.Metrics
	db                    *gorm.DB
	bus                   *eventbus.AsyncEventBus
	voices                *voice.Registry
	edge                  *edge.Engine
	engine                engine.Engine
	cache                 *cache.Cache
	ledger                *usage.Ledger
	speech                *services.SpeechService
	clone                 *clone.Service
}

// Option adjusts how Run boots the gateway.
type Option func(*appState)

// WithConfigPath loads configuration from path instead of searching the
// default locations.
func WithConfigPath(path string) Option {
	return func(s *appState) { s.configPath = path }
}

// Run starts the gateway and blocks until ctx ends or SIGINT/SIGTERM arrives.
func Run(ctx context.Context, opts ...Option) error {
	state := &appState{}
	for _, opt := range opts {
		opt(state)
	}
	defer state.close()

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	logger := state.logger
	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	return waitForShutdown(signalCtx, cancel, state, group)
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("Boot", "initialisation graph")
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag("Boot", "  %s", step.Title)
			continue
		}
		logger.InfoTag("Boot", "  %s (after %s)", step.Title, strings.Join(step.DependsOn, ", "))
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Open database",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "eventbus:init",
			Title:     "Start event bus",
			DependsOn: []string{"logging:init-provider"},
			Execute:   initEventBusStep,
		},
		{
			ID:        "voice:init-registry",
			Title:     "Load voice registry",
			DependsOn: []string{"storage:init-database"},
			Execute:   initVoiceRegistryStep,
		},
		{
			ID:        "engine:init",
			Title:     "Initialise synthesis engine",
			DependsOn: []string{"observability:setup-hooks"},
			Execute:   initEngineStep,
		},
		{
			ID:        "cache:init",
			Title:     "Initialise audio cache",
			DependsOn: []string{"observability:setup-hooks"},
			Kind:      platformerrors.KindStorage,
			Execute:   initCacheStep,
		},
		{
			ID:        "usage:init-ledger",
			Title:     "Initialise usage ledger",
			DependsOn: []string{"storage:init-database", "observability:setup-hooks"},
			Kind:      platformerrors.KindStorage,
			Execute:   initLedgerStep,
		},
		{
			ID:        "dispatch:init-speech",
			Title:     "Initialise speech dispatcher",
			DependsOn: []string{"voice:init-registry", "engine:init", "cache:init", "usage:init-ledger"},
			Execute:   initSpeechStep,
		},
		{
			ID:        "clone:init-service",
			Title:     "Start voice cloning workers",
			DependsOn: []string{"voice:init-registry", "eventbus:init"},
			Execute:   initCloneStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := platformconfig.NewLoader()
	if state.configPath != "" {
		loader = loader.WithPath(state.configPath)
	}
	result, err := loader.Load()
	if err != nil {
		return err
	}
	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "logging:init-provider", "config not loaded")
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return err
	}
	state.logger = logger
	logger.InfoTag("Boot", "logging ready [%s] config from %s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	cfg := platformobservability.Config{
		Tracing:       strings.EqualFold(state.config.Log.Level, "debug"),
		SlowThreshold: state.config.Metrics.SlowThreshold,
	}
	shutdown, err := platformobservability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return err
	}
	state.observabilityShutdown = shutdown

	if state.config.Metrics.Enabled {
		state.metrics = platformobservability.NewMetrics(state.config.Metrics.Namespace)
	}
	return nil
}

func initDatabaseStep(_ context.Context, state *appState) error {
	db, err := platformstorage.Open(state.config.Storage.SQLitePath)
	if err != nil {
		return err
	}
	state.db = db
	state.logger.InfoTag("Boot", "database ready at %s", state.config.Storage.SQLitePath)
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	bus := eventbus.NewAsyncEventBus(eventBusWorkers, state.logger)
	if err := eventbus.SetupEventHandlers(bus, eventbus.NewLoggingHandler(state.logger)); err != nil {
		return err
	}
	bus.Start()
	state.bus = bus
	return nil
}

func initVoiceRegistryStep(ctx context.Context, state *appState) error {
	profileStore, err := voice.NewSQLiteStore(state.db)
	if err != nil {
		return err
	}
	registry, err := voice.NewRegistry(voice.ProfilesFromConfig(state.config.Voices.Profiles), profileStore, state.logger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "voice:init-registry", "invalid voice profiles", err)
	}
	loaded, err := registry.LoadPersisted(ctx)
	if err != nil {
		return err
	}
	state.voices = registry
	state.logger.InfoTag("Voice", "%d voices ready (%d cloned)", registry.Len(), loaded)
	return nil
}

func initEngineStep(_ context.Context, state *appState) error {
	cfg := state.config.Engine
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", edge.Name:
	default:
		return platformerrors.New(platformerrors.KindConfig, "engine:init", "unsupported engine provider: "+cfg.Provider)
	}

	state.edge = edge.New(edge.Config{MaxConcurrent: cfg.MaxConcurrent}, state.logger)
	instrumented := engine.WithInstrumentation(state.edge, state.metrics, state.logger)
	state.engine = engine.WithBreaker(instrumented, engine.NewCircuitBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.RetryAfter))
	state.logger.InfoTag("Engine", "%s engine ready (max %d sessions)", state.engine.Name(), cfg.MaxConcurrent)
	return nil
}

func initCacheStep(_ context.Context, state *appState) error {
	cfg := state.config.Cache
	durable, err := cache.NewStore(cfg.Store, cfg.TTL)
	if err != nil {
		return err
	}
	audioCache, err := cache.New(cache.Config{
		MaxEntries: cfg.MaxEntries,
		MaxBytes:   cfg.MaxBytes,
		TTL:        cfg.TTL,
		Shards:     cfg.Shards,
	}, durable, state.metrics, state.logger)
	if err != nil {
		if durable != nil {
			_ = durable.Close(context.Background())
		}
		return err
	}
	state.cache = audioCache

	tier := "memory only"
	if durable != nil {
		tier = "durable tier " + durable.Name()
	}
	state.logger.InfoTag("Cache", "audio cache ready (%d entries, %d bytes, %s)", cfg.MaxEntries, cfg.MaxBytes, tier)
	return nil
}

func initLedgerStep(ctx context.Context, state *appState) error {
	cfg := state.config.Usage

	storeCfg := usagestore.Config{Driver: strings.ToLower(strings.TrimSpace(cfg.Store.Type))}
	if storeCfg.Driver == usagestore.DriverRedis {
		if cfg.Store.Redis.Addr == "" {
			return platformerrors.New(platformerrors.KindConfig, "usage:init-ledger", "usage.store.redis.addr is required")
		}
		storeCfg.Redis = &usagestore.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Username: cfg.Store.Redis.Username,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		}
	}
	accounts, err := usagestore.New(storeCfg, usagestore.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return err
	}

	plans, err := usage.PlansFromConfig(cfg.Tiers)
	if err != nil {
		_ = accounts.Close(ctx)
		return platformerrors.Wrap(platformerrors.KindConfig, "usage:init-ledger", "invalid tiers", err)
	}
	ledger, err := usage.NewLedger(accounts, plans, state.metrics, state.logger)
	if err != nil {
		_ = accounts.Close(ctx)
		return err
	}
	state.ledger = ledger

	if err := ledger.Provision(ctx, cfg.Accounts); err != nil {
		return err
	}
	state.logger.InfoTag("Ledger", "usage ledger ready (%s store, %d tiers, %d accounts)",
		storeCfg.Driver, len(plans), len(cfg.Accounts))
	return nil
}

func initSpeechStep(_ context.Context, state *appState) error {
	cfg := state.config.Dispatch
	format, err := audio.ParseFormat(cfg.DefaultFormat, audio.FormatWAV)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "dispatch:init-speech", "invalid dispatch.default_format", err)
	}

	logger := state.logger
	speech, err := services.NewSpeechService(&services.SpeechConfig{
		Voices:        state.voices,
		Engine:        state.engine,
		Cache:         state.cache,
		Ledger:        state.ledger,
		Metrics:       state.metrics,
		Logger:        logger,
		EngineTimeout: cfg.EngineTimeout,
		RetryBackoff:  cfg.RetryBackoff,
		MaxTextChars:  cfg.MaxTextChars,
		DefaultFormat: format,
		DefaultVoice:  cfg.DefaultVoice,
		DefaultAPIKey: cfg.DefaultAPIKey,
		OnTransition: func(tr services.Transition) {
			logger.DebugTag("Dispatch", "%s %s -> %s", tr.RequestID, tr.From, tr.To)
		},
	})
	if err != nil {
		return err
	}
	state.speech = speech
	return nil
}

func initCloneStep(_ context.Context, state *appState) error {
	cfg := state.config.Clone
	svc, err := clone.NewService(clone.Config{
		SamplesDir:     cfg.SamplesDir,
		MaxSampleBytes: cfg.MaxSampleBytes,
		Workers:        cfg.Workers,
		DefaultVoice:   state.config.Dispatch.DefaultVoice,
	}, clone.ReferenceTrainer{}, state.voices, state.bus, state.metrics, state.logger)
	if err != nil {
		return err
	}
	state.clone = svc
	return nil
}

// newHandler builds the router with every route mounted.
func newHandler(ctx context.Context, state *appState) (http.Handler, error) {
	router, err := httptransport.Build(httptransport.Options{
		Config:  state.config,
		Logger:  state.logger,
		Metrics: state.metrics,
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "http:build-router", "failed to build router", err)
	}

	metricsPath := ""
	if state.config.Metrics.Enabled {
		metricsPath = state.config.Metrics.Path
	}
	speechService, err := httpspeech.NewService(httpspeech.Options{
		Speech:         state.speech,
		Voices:         state.voices,
		Clone:          state.clone,
		Ledger:         state.ledger,
		Cache:          state.cache,
		Engine:         state.engine,
		Metrics:        state.metrics,
		Logger:         state.logger,
		Version:        Version,
		MetricsPath:    metricsPath,
		ClientCacheAge: state.config.Dispatch.ClientCacheAge,
	})
	if err != nil {
		return nil, err
	}
	if err := speechService.Register(ctx, router.Root); err != nil {
		return nil, err
	}
	httptransport.RegisterDocs(router.Root, state.logger)

	return router.Engine, nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	handler, err := newHandler(groupCtx, state)
	if err != nil {
		return nil, err
	}

	cfg := state.config.Server
	logger := state.logger
	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.IP, strconv.Itoa(cfg.Port)),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "listening on http://%s", httpServer.Addr)
		logger.InfoTag("HTTP", "API reference at http://localhost:%d/docs", cfg.Port)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "HTTP server shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "HTTP server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	if _, err := startHTTPServer(state, g, groupCtx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	g.Go(func() error {
		return state.cache.RunJanitor(groupCtx, janitorInterval)
	})
	return nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	state *appState,
	g *errgroup.Group,
) error {
	logger := state.logger
	<-ctx.Done()
	logger.InfoTag("Boot", "shutting down: %v", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	timeout := state.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("Boot", "service stopped with error: %v", err)
			return err
		}
		logger.InfoTag("Boot", "all services stopped")
	case <-time.After(timeout):
		logger.ErrorTag("Boot", "shutdown timed out after %v", timeout)
		return errors.New("shutdown timed out")
	}
	return nil
}

// close releases everything the init steps built, newest first. Fields left
// nil by a failed step are skipped.
func (s *appState) close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeStepTimeout)
	defer cancel()

	report := func(component string, err error) {
		if err == nil {
			return
		}
		s.logger.WarnTag("Boot", "%s did not close cleanly: %v", component, err)
		if s.bus != nil {
			s.bus.Publish(eventbus.EventSystemError, eventbus.SystemEventData{
				Level:   "warn",
				Message: component + " close failed",
				Data:    err.Error(),
			})
		}
	}

	if s.clone != nil {
		report("clone service", s.clone.Close(ctx))
	}
	if s.ledger != nil {
		report("usage ledger", s.ledger.Close(ctx))
	}
	if s.cache != nil {
		report("audio cache", s.cache.Close(ctx))
	}
	if s.edge != nil {
		s.edge.Close()
	}
	if s.bus != nil {
		s.bus.Stop()
	}
	if s.db != nil {
		report("database", platformstorage.Close(s.db))
	}
	if s.observabilityShutdown != nil {
		report("observability", s.observabilityShutdown(ctx))
	}
	if s.logger != nil {
		_ = s.logger.Close()
	}
}
