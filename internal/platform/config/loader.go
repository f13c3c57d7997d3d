package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	platformerrors "odiadev-tts-server-go/internal/platform/errors"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "TTS_CONFIG"

// DefaultPath is used when neither the loader nor the environment name a file.
const DefaultPath = "config.yaml"

// Loader reads YAML configuration on top of DefaultConfig and applies
// environment overrides.
type Loader struct {
	useDotEnv bool
	path      string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader that reads .env and the file named by TTS_CONFIG.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the configuration file path.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnv overrides environment lookups (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load resolves the configuration. A missing file yields the defaults.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		// A missing .env is normal outside local development.
		_ = godotenv.Load()
	}

	path := l.path
	if path == "" {
		if v, ok := l.lookupEnv(EnvConfigPath); ok && strings.TrimSpace(v) != "" {
			path = strings.TrimSpace(v)
		} else {
			path = DefaultPath
		}
	}

	cfg := DefaultConfig()
	origin := "defaults"

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "config.load", "failed to parse "+path, err)
		}
		origin = path
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, platformerrors.Wrap(platformerrors.KindConfig, "config.load", "failed to read "+path, err)
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: origin}, nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	if v, ok := l.lookupEnv("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return platformerrors.Wrap(platformerrors.KindConfig, "config.env", "PORT must be an integer", err)
		}
		cfg.Server.Port = port
	}
	if v, ok := l.lookupEnv("LOG_LEVEL"); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := l.lookupEnv("REDIS_ADDR"); ok && v != "" {
		cfg.Cache.Store.Redis.Addr = v
		cfg.Usage.Store.Redis.Addr = v
	}
	if v, ok := l.lookupEnv("NATS_URL"); ok && v != "" {
		cfg.Cache.Store.NATS.URL = v
	}
	return nil
}

func (l *Loader) validate(cfg *Config) error {
	invalid := func(msg string) error {
		return platformerrors.New(platformerrors.KindConfig, "config.validate", msg)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return invalid(fmt.Sprintf("server.port out of range: %d", cfg.Server.Port))
	}
	if cfg.Cache.MaxEntries <= 0 || cfg.Cache.MaxBytes <= 0 {
		return invalid("cache.max_entries and cache.max_bytes must be positive")
	}
	if cfg.Dispatch.EngineTimeout <= 0 {
		return invalid("dispatch.engine_timeout must be positive")
	}
	if cfg.Dispatch.RetryBackoff < 0 {
		return invalid("dispatch.retry_backoff must not be negative")
	}
	if cfg.Dispatch.MaxTextChars <= 0 {
		return invalid("dispatch.max_text_chars must be positive")
	}
	if cfg.Metrics.SlowThreshold < 0 {
		return invalid("metrics.slow_threshold must not be negative")
	}
	if len(cfg.Usage.Tiers) == 0 {
		return invalid("usage.tiers must define at least one tier")
	}
	for name, tier := range cfg.Usage.Tiers {
		if tier.RequestsLimit <= 0 {
			return invalid(fmt.Sprintf("usage.tiers.%s.requests_limit must be positive", name))
		}
		switch tier.Period {
		case "daily", "monthly":
		default:
			return invalid(fmt.Sprintf("usage.tiers.%s.period must be daily or monthly", name))
		}
	}
	for _, acct := range cfg.Usage.Accounts {
		if strings.TrimSpace(acct.Key) == "" {
			return invalid("usage.accounts entries require a key")
		}
		if _, ok := cfg.Usage.Tiers[acct.Tier]; !ok {
			return invalid(fmt.Sprintf("usage account %q references unknown tier %q", acct.Key, acct.Tier))
		}
	}
	return nil
}
