package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"odiadev-tts-server-go/internal/domain/audio"
)

const (
	redisFieldAudio = "audio"
	redisFieldMeta  = "meta"
)

type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

type redisMeta struct {
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"created_at"`
	Size      int       `json:"size"`
}

// RedisStore keeps each rendering in a hash with the audio bytes and a JSON
// metadata field, expiring with the cache TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "tts:audio:"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) Name() string { return StoreRedis }

func (s *RedisStore) key(fp Fingerprint) string {
	return s.prefix + string(fp)
}

func (s *RedisStore) Load(ctx context.Context, fp Fingerprint) (StoredAudio, error) {
	values, err := s.client.HMGet(ctx, s.key(fp), redisFieldAudio, redisFieldMeta).Result()
	if err != nil {
		return StoredAudio{}, err
	}
	rawAudio, okAudio := values[0].(string)
	rawMeta, okMeta := values[1].(string)
	if !okAudio || !okMeta {
		return StoredAudio{}, ErrNotFound
	}

	var meta redisMeta
	if err := sonic.UnmarshalString(rawMeta, &meta); err != nil {
		return StoredAudio{}, fmt.Errorf("decode cache metadata: %w", err)
	}
	if meta.Size != len(rawAudio) {
		return StoredAudio{}, fmt.Errorf("cache entry %s truncated: want %d bytes, got %d", fp.Short(), meta.Size, len(rawAudio))
	}
	return StoredAudio{
		Fingerprint: fp,
		Audio:       []byte(rawAudio),
		Format:      audio.Format(meta.Format),
		CreatedAt:   meta.CreatedAt,
	}, nil
}

func (s *RedisStore) Save(ctx context.Context, item StoredAudio, ttl time.Duration) error {
	meta, err := sonic.MarshalString(redisMeta{
		Format:    string(item.Format),
		CreatedAt: item.CreatedAt,
		Size:      len(item.Audio),
	})
	if err != nil {
		return err
	}
	key := s.key(item.Fingerprint)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, redisFieldAudio, item.Audio, redisFieldMeta, meta)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Delete(ctx context.Context, fp Fingerprint) error {
	n, err := s.client.Del(ctx, s.key(fp)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Stats(ctx context.Context) (map[string]any, error) {
	size, err := s.client.DBSize(ctx).Result()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":   StoreRedis,
		"keys":   size,
		"prefix": s.prefix,
	}, nil
}

func (s *RedisStore) Close(context.Context) error {
	err := s.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
