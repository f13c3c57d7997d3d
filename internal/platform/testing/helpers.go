package testing

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"odiadev-tts-server-go/internal/platform/config"
	"odiadev-tts-server-go/internal/platform/logging"
)

// SetupTestConfig returns defaults tuned for isolated tests: memory stores,
// a temp sqlite file, short timeouts and no durable cache tier.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Server.Port = 18080
	cfg.Log = config.LogConfig{
		Level: "debug",
		Dir:   filepath.Join(dir, "logs"),
		File:  "test.log",
	}
	cfg.Storage.SQLitePath = filepath.Join(dir, "test.db")
	cfg.Usage.Store.Type = "memory"
	cfg.Cache.Store.Type = "none"
	cfg.Dispatch.EngineTimeout = 2 * time.Second
	cfg.Dispatch.RetryBackoff = 10 * time.Millisecond
	cfg.Clone.SamplesDir = filepath.Join(dir, "samples")
	return cfg
}

// SetupTestLogger builds a logger writing into the test's temp dir with a
// silent console.
func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	logger, err := logging.New(logging.Config{
		Level:    "debug",
		Dir:      t.TempDir(),
		Filename: "test.log",
		Console:  io.Discard,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })

	return logger
}
