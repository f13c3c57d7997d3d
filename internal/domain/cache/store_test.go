package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odiadev-tts-server-go/internal/domain/audio"
	"odiadev-tts-server-go/internal/platform/config"
)

func storedAudio(text string) StoredAudio {
	return StoredAudio{
		Fingerprint: fp(text),
		Audio:       []byte("ID3-" + text),
		Format:      audio.FormatMP3,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store, mr
}

func newNATSStore(t *testing.T) *NATSStore {
	t.Helper()
	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	srv := test.RunServer(&opts)
	t.Cleanup(srv.Shutdown)

	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	store, err := NewNATSStoreFromConn(conn, NATSConfig{Bucket: "tts-test", TTL: time.Hour})
	require.NoError(t, err)
	return store
}

func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Load(ctx, fp("missing"))
	assert.ErrorIs(t, err, ErrNotFound)

	item := storedAudio("hello")
	require.NoError(t, store.Save(ctx, item, time.Hour))

	got, err := store.Load(ctx, item.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, item.Audio, got.Audio)
	assert.Equal(t, item.Format, got.Format)
	assert.True(t, item.CreatedAt.Equal(got.CreatedAt))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Name(), stats["type"])

	require.NoError(t, store.Delete(ctx, item.Fingerprint))
	_, err = store.Load(ctx, item.Fingerprint)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore(t *testing.T) {
	store, _ := newRedisStore(t)
	exerciseStore(t, store)
}

func TestRedisStoreAppliesTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	item := storedAudio("ttl")
	require.NoError(t, store.Save(context.Background(), item, time.Minute))

	assert.Equal(t, time.Minute, mr.TTL(store.key(item.Fingerprint)))
	mr.FastForward(2 * time.Minute)
	_, err := store.Load(context.Background(), item.Fingerprint)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNATSStore(t *testing.T) {
	exerciseStore(t, newNATSStore(t))
}

func TestNATSStoreBindsExistingBucket(t *testing.T) {
	store := newNATSStore(t)
	require.NoError(t, store.Save(context.Background(), storedAudio("kept"), 0))

	again, err := NewNATSStoreFromConn(store.conn, NATSConfig{Bucket: "tts-test", TTL: time.Hour})
	require.NoError(t, err)
	got, err := again.Load(context.Background(), fp("kept"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3-kept"), got.Audio)
}

func TestCacheReadsThroughDurableTier(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	var calls atomic.Int32
	synth := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("ID3-rendered"), nil
	}

	first, err := New(Config{MaxEntries: 8, MaxBytes: 1 << 20, TTL: time.Hour}, store, nil, nil)
	require.NoError(t, err)
	_, outcome, err := first.Do(ctx, fp("shared"), audio.FormatMP3, synth)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome)
	first.saves.Wait()

	// A fresh process with an empty memory tier.
	second, err := New(Config{MaxEntries: 8, MaxBytes: 1 << 20, TTL: time.Hour}, store, nil, nil)
	require.NoError(t, err)
	entry, outcome, err := second.Do(ctx, fp("shared"), audio.FormatMP3, synth)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStoreHit, outcome)
	assert.True(t, outcome.Cached())
	assert.Equal(t, []byte("ID3-rendered"), entry.Audio)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "redis", second.Stats().Store)
	assert.NoError(t, second.HealthCheck(ctx))
}

func TestCacheTreatsStoreFailureAsMiss(t *testing.T) {
	store, mr := newRedisStore(t)
	c, err := New(Config{MaxEntries: 8, MaxBytes: 1 << 20}, store, nil, nil)
	require.NoError(t, err)
	mr.Close()

	entry, outcome, err := c.Do(context.Background(), fp("x"), audio.FormatMP3, func(context.Context) ([]byte, error) {
		return []byte("ID3"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome)
	assert.Equal(t, []byte("ID3"), entry.Audio)
	c.saves.Wait()
	assert.GreaterOrEqual(t, c.Stats().StoreErrors, int64(1))
	assert.Error(t, c.HealthCheck(context.Background()))
}

func TestNewStoreFactory(t *testing.T) {
	store, err := NewStore(config.CacheStoreConfig{Type: "none"}, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, store)

	_, err = NewStore(config.CacheStoreConfig{Type: "memcached"}, time.Hour)
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	store, err = NewStore(config.CacheStoreConfig{Type: "redis", Redis: config.RedisConfig{Addr: mr.Addr()}}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, StoreRedis, store.Name())
	require.NoError(t, store.Close(context.Background()))
}
