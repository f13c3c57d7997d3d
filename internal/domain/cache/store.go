package cache

import (
	"context"
	"errors"
	"time"

	"odiadev-tts-server-go/internal/domain/audio"
)

// ErrNotFound is returned by a Store when no audio exists for a fingerprint.
var ErrNotFound = errors.New("cache entry not found")

// StoredAudio is what the durable tier keeps per fingerprint.
type StoredAudio struct {
	Fingerprint Fingerprint
	Audio       []byte
	Format      audio.Format
	CreatedAt   time.Time
}

// Store is the optional durable tier behind the in-memory cache. Callers
// treat every error as a miss.
type Store interface {
	Name() string
	Load(ctx context.Context, fp Fingerprint) (StoredAudio, error)
	Save(ctx context.Context, item StoredAudio, ttl time.Duration) error
	Delete(ctx context.Context, fp Fingerprint) error
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Store driver identifiers.
const (
	StoreNone  = "none"
	StoreRedis = "redis"
	StoreNATS  = "nats"
)
