package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func TestLoader_Load(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	configContent := `
server:
  ip: "127.0.0.1"
  port: 8080
log:
  log_level: "debug"
  log_dir: "/tmp/logs"
  log_file: "test.log"
dispatch:
  engine_timeout: 5s
cache:
  max_entries: 10
  store:
    type: redis
    redis:
      addr: "localhost:6379"
usage:
  accounts:
    - key: "biz-key"
      tier: business
`
	if err := os.WriteFile(configFile, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	res, err := NewLoader().WithDotEnv(false).WithEnv(noEnv).WithPath(configFile).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	cfg := res.Config

	if res.Path != configFile {
		t.Errorf("expected origin %s, got %s", configFile, res.Path)
	}
	if cfg.Server.IP != "127.0.0.1" || cfg.Server.Port != 8080 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Dispatch.EngineTimeout != 5*time.Second {
		t.Errorf("expected engine timeout 5s, got %s", cfg.Dispatch.EngineTimeout)
	}
	if cfg.Cache.MaxEntries != 10 || cfg.Cache.MaxBytes != DefaultConfig().Cache.MaxBytes {
		t.Errorf("cache bounds not merged with defaults: %+v", cfg.Cache)
	}
	if cfg.Cache.Store.Type != "redis" || cfg.Cache.Store.Redis.Addr != "localhost:6379" {
		t.Errorf("unexpected cache store: %+v", cfg.Cache.Store)
	}
	if _, ok := cfg.Usage.Tiers["enterprise"]; !ok {
		t.Errorf("default tiers should survive a file without tiers")
	}
	if len(cfg.Usage.Accounts) != 1 || cfg.Usage.Accounts[0].Tier != "business" {
		t.Errorf("unexpected accounts: %+v", cfg.Usage.Accounts)
	}
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	res, err := NewLoader().
		WithDotEnv(false).
		WithEnv(noEnv).
		WithPath(filepath.Join(t.TempDir(), "absent.yaml")).
		Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Path != "defaults" {
		t.Errorf("expected defaults origin, got %s", res.Path)
	}
	if res.Config.Dispatch.DefaultVoice != "en-NG-EzinneNeural" {
		t.Errorf("unexpected default voice %s", res.Config.Dispatch.DefaultVoice)
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	env := map[string]string{
		"PORT":       "9090",
		"LOG_LEVEL":  "warn",
		"REDIS_ADDR": "redis:6379",
		"NATS_URL":   "nats://nats:4222",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	res, err := NewLoader().
		WithDotEnv(false).
		WithEnv(lookup).
		WithPath(filepath.Join(t.TempDir(), "absent.yaml")).
		Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := res.Config
	if cfg.Server.Port != 9090 || cfg.Log.Level != "warn" {
		t.Errorf("env overrides not applied: port=%d level=%s", cfg.Server.Port, cfg.Log.Level)
	}
	if cfg.Usage.Store.Redis.Addr != "redis:6379" || cfg.Cache.Store.Redis.Addr != "redis:6379" {
		t.Errorf("redis addr not applied")
	}
	if cfg.Cache.Store.NATS.URL != "nats://nats:4222" {
		t.Errorf("nats url not applied")
	}

	env["PORT"] = "not-a-port"
	if _, err := NewLoader().WithDotEnv(false).WithEnv(lookup).WithPath("absent.yaml").Load(); err == nil {
		t.Fatal("expected invalid PORT to fail")
	}
}

func TestLoader_Validate(t *testing.T) {
	loader := NewLoader()

	mutate := func(fn func(*Config)) *Config {
		cfg := DefaultConfig()
		fn(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "valid config", config: DefaultConfig(), wantErr: false},
		{
			name:    "invalid server port",
			config:  mutate(func(c *Config) { c.Server.Port = 70000 }),
			wantErr: true,
		},
		{
			name:    "zero cache bound",
			config:  mutate(func(c *Config) { c.Cache.MaxBytes = 0 }),
			wantErr: true,
		},
		{
			name:    "zero engine timeout",
			config:  mutate(func(c *Config) { c.Dispatch.EngineTimeout = 0 }),
			wantErr: true,
		},
		{
			name:    "negative slow threshold",
			config:  mutate(func(c *Config) { c.Metrics.SlowThreshold = -time.Second }),
			wantErr: true,
		},
		{
			name: "bad tier period",
			config: mutate(func(c *Config) {
				c.Usage.Tiers["free"] = TierConfig{RequestsLimit: 1, Period: "hourly"}
			}),
			wantErr: true,
		},
		{
			name: "account with unknown tier",
			config: mutate(func(c *Config) {
				c.Usage.Accounts = append(c.Usage.Accounts, AccountConfig{Key: "x", Tier: "gold"})
			}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loader.validate(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
