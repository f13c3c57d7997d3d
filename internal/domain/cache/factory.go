package cache

import (
	"fmt"
	"strings"
	"time"

	"odiadev-tts-server-go/internal/platform/config"
)

// NewStore builds the durable tier named by cfg.Type. It returns nil for
// "none" so the cache runs memory-only.
func NewStore(cfg config.CacheStoreConfig, ttl time.Duration) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", StoreNone:
		return nil, nil
	case StoreRedis:
		store, err := NewRedisStore(RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoreNATS:
		store, err := NewNATSStore(NATSConfig{
			URL:    cfg.NATS.URL,
			Bucket: cfg.NATS.Bucket,
			TTL:    ttl,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported cache store type: %s", cfg.Type)
	}
}
