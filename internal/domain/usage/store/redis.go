package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"odiadev-tts-server-go/internal/domain/usage/model"
)

const (
	fieldTier        = "tier"
	fieldUsed        = "requests_used"
	fieldLimit       = "requests_limit"
	fieldChars       = "characters_used"
	fieldSynthesized = "synthesized_characters"
	fieldCacheHits   = "cache_hits"
	fieldFailures    = "failures"
	fieldPeriodStart = "period_start"
	fieldUpdatedAt   = "updated_at"
)

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a redis-backed usage store with one hash per account.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "tts:account:"
	}
	return &redisStore{
		client: client,
		prefix: prefix,
	}, nil
}

func (s *redisStore) key(apiKey string) string {
	return s.prefix + apiKey
}

func (s *redisStore) Get(ctx context.Context, apiKey string) (model.Account, error) {
	values, err := s.client.HGetAll(ctx, s.key(apiKey)).Result()
	if err != nil {
		return model.Account{}, err
	}
	if len(values) == 0 {
		return model.Account{}, ErrNotFound
	}
	return parseAccount(apiKey, values)
}

func (s *redisStore) Provision(ctx context.Context, apiKey, tier string, limit int64, periodStart time.Time) (model.Account, error) {
	key := s.key(apiKey)
	now := formatTime(time.Now())
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, field := range []string{fieldUsed, fieldChars, fieldSynthesized, fieldCacheHits, fieldFailures} {
			pipe.HSetNX(ctx, key, field, 0)
		}
		pipe.HSetNX(ctx, key, fieldPeriodStart, formatTime(periodStart))
		pipe.HSet(ctx, key, fieldTier, tier, fieldLimit, limit, fieldUpdatedAt, now)
		return nil
	})
	if err != nil {
		return model.Account{}, err
	}
	return s.Get(ctx, apiKey)
}

func (s *redisStore) Apply(ctx context.Context, apiKey string, d model.Delta) (model.Account, error) {
	key := s.key(apiKey)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return model.Account{}, err
	}
	if n == 0 {
		return model.Account{}, ErrNotFound
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldUsed, d.Requests)
		pipe.HIncrBy(ctx, key, fieldChars, d.Characters)
		pipe.HIncrBy(ctx, key, fieldSynthesized, d.SynthesizedCharacters)
		pipe.HIncrBy(ctx, key, fieldCacheHits, d.CacheHits)
		pipe.HIncrBy(ctx, key, fieldFailures, d.Failures)
		pipe.HSet(ctx, key, fieldUpdatedAt, formatTime(d.At))
		return nil
	})
	if err != nil {
		return model.Account{}, err
	}
	return s.Get(ctx, apiKey)
}

func (s *redisStore) Rollover(ctx context.Context, apiKey string, periodStart time.Time) (model.Account, error) {
	acct, err := s.Get(ctx, apiKey)
	if err != nil {
		return model.Account{}, err
	}
	if !acct.PeriodStart.Before(periodStart) {
		return acct, nil
	}
	key := s.key(apiKey)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldUsed, 0,
			fieldChars, 0,
			fieldSynthesized, 0,
			fieldCacheHits, 0,
			fieldFailures, 0,
			fieldPeriodStart, formatTime(periodStart),
			fieldUpdatedAt, formatTime(time.Now()),
		)
		return nil
	})
	if err != nil {
		return model.Account{}, err
	}
	return s.Get(ctx, apiKey)
}

func (s *redisStore) List(ctx context.Context) ([]model.Account, error) {
	var cursor uint64
	out := make([]model.Account, 0)
	pattern := s.prefix + "*"
	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			acct, err := s.Get(ctx, strings.TrimPrefix(key, s.prefix))
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, acct)
		}
		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	size, err := s.client.DBSize(ctx).Result()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":   DriverRedis,
		"total":  size,
		"prefix": s.prefix,
	}, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseAccount(apiKey string, values map[string]string) (model.Account, error) {
	acct := model.Account{Key: apiKey, Tier: values[fieldTier]}
	ints := []struct {
		field string
		dst   *int64
	}{
		{fieldUsed, &acct.RequestsUsed},
		{fieldLimit, &acct.RequestsLimit},
		{fieldChars, &acct.CharactersUsed},
		{fieldSynthesized, &acct.SynthesizedCharacters},
		{fieldCacheHits, &acct.CacheHits},
		{fieldFailures, &acct.Failures},
	}
	for _, f := range ints {
		raw, ok := values[f.field]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return model.Account{}, fmt.Errorf("account %s field %s: %w", apiKey, f.field, err)
		}
		*f.dst = n
	}
	for field, dst := range map[string]*time.Time{
		fieldPeriodStart: &acct.PeriodStart,
		fieldUpdatedAt:   &acct.UpdatedAt,
	} {
		raw, ok := values[field]
		if !ok {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return model.Account{}, fmt.Errorf("account %s field %s: %w", apiKey, field, err)
		}
		*dst = t
	}
	return acct, nil
}
