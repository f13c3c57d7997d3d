package store

import (
	"context"
	"errors"
	"time"

	"odiadev-tts-server-go/internal/domain/usage/model"
)

// ErrNotFound is returned when no account exists for a key.
var ErrNotFound = errors.New("account not found")

// Store persists ledger accounts. Every mutating call is atomic for one key;
// the ledger serializes calls per key above it.
type Store interface {
	Get(ctx context.Context, key string) (model.Account, error)
	// Provision creates the account if it is missing and otherwise refreshes
	// only its tier and limit, keeping the counters.
	Provision(ctx context.Context, key, tier string, limit int64, periodStart time.Time) (model.Account, error)
	Apply(ctx context.Context, key string, delta model.Delta) (model.Account, error)
	// Rollover zeroes the period counters and moves the period start forward.
	Rollover(ctx context.Context, key string, periodStart time.Time) (model.Account, error)
	List(ctx context.Context) ([]model.Account, error)
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	Redis  *RedisConfig
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}
