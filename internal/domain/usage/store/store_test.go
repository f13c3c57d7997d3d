package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odiadev-tts-server-go/internal/domain/usage/model"
	platformerrors "odiadev-tts-server-go/internal/platform/errors"
	"odiadev-tts-server-go/internal/platform/storage"
)

var periodStart = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	db, err := storage.Open(fmt.Sprintf("file:usage-%d?mode=memory&cache=shared", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })

	s, err := New(Config{Driver: DriverSQLite}, Dependencies{SQLiteDB: db})
	require.NoError(t, err)
	return s
}

func newRedisStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := New(Config{Driver: DriverRedis, Redis: &RedisConfig{Addr: mr.Addr()}}, Dependencies{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func drivers(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		DriverMemory: func(*testing.T) Store { return NewMemory() },
		DriverSQLite: newSQLiteStore,
		DriverRedis:  newRedisStore,
	}
}

func TestStoreContract(t *testing.T) {
	for name, build := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build(t)

			_, err := s.Get(ctx, "nobody")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.Apply(ctx, "nobody", model.Delta{Requests: 1, At: time.Now()})
			assert.ErrorIs(t, err, ErrNotFound)

			acct, err := s.Provision(ctx, "k1", "free", 100, periodStart)
			require.NoError(t, err)
			assert.Equal(t, "free", acct.Tier)
			assert.Equal(t, int64(100), acct.RequestsLimit)
			assert.True(t, acct.PeriodStart.Equal(periodStart))

			acct, err = s.Apply(ctx, "k1", model.Delta{Requests: 1, Characters: 12, SynthesizedCharacters: 12, At: time.Now()})
			require.NoError(t, err)
			acct, err = s.Apply(ctx, "k1", model.Delta{Requests: 1, Characters: 12, CacheHits: 1, At: time.Now()})
			require.NoError(t, err)
			acct, err = s.Apply(ctx, "k1", model.Delta{Failures: 1, At: time.Now()})
			require.NoError(t, err)
			assert.Equal(t, int64(2), acct.RequestsUsed)
			assert.Equal(t, int64(24), acct.CharactersUsed)
			assert.Equal(t, int64(12), acct.SynthesizedCharacters)
			assert.Equal(t, int64(1), acct.CacheHits)
			assert.Equal(t, int64(1), acct.Failures)

			// Re-provisioning keeps counters and refreshes the plan.
			acct, err = s.Provision(ctx, "k1", "starter", 10000, periodStart.AddDate(0, 1, 0))
			require.NoError(t, err)
			assert.Equal(t, "starter", acct.Tier)
			assert.Equal(t, int64(10000), acct.RequestsLimit)
			assert.Equal(t, int64(2), acct.RequestsUsed)
			assert.True(t, acct.PeriodStart.Equal(periodStart))

			next := periodStart.AddDate(0, 1, 0)
			acct, err = s.Rollover(ctx, "k1", next)
			require.NoError(t, err)
			assert.Zero(t, acct.RequestsUsed)
			assert.Zero(t, acct.CharactersUsed)
			assert.Zero(t, acct.Failures)
			assert.True(t, acct.PeriodStart.Equal(next))

			// A stale rollover is ignored.
			_, err = s.Apply(ctx, "k1", model.Delta{Requests: 1, At: time.Now()})
			require.NoError(t, err)
			acct, err = s.Rollover(ctx, "k1", periodStart)
			require.NoError(t, err)
			assert.Equal(t, int64(1), acct.RequestsUsed)

			_, err = s.Provision(ctx, "k0", "free", 100, periodStart)
			require.NoError(t, err)
			all, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "k0", all[0].Key)
			assert.Equal(t, "k1", all[1].Key)

			stats, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, name, stats["type"])
		})
	}
}

func TestStoreConcurrentApply(t *testing.T) {
	for name, build := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build(t)
			_, err := s.Provision(ctx, "k", "free", 1000, periodStart)
			require.NoError(t, err)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.Apply(ctx, "k", model.Delta{Requests: 1, Characters: 3, At: time.Now()})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			acct, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, int64(20), acct.RequestsUsed)
			assert.Equal(t, int64(60), acct.CharactersUsed)
		})
	}
}

func TestFactory(t *testing.T) {
	s, err := New(Config{}, Dependencies{})
	require.NoError(t, err)
	assert.IsType(t, &memoryStore{}, s)

	s, err = New(Config{Driver: " Memory "}, Dependencies{})
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = New(Config{Driver: DriverSQLite}, Dependencies{})
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindStorage))

	_, err = New(Config{Driver: DriverRedis}, Dependencies{})
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindStorage))

	_, err = New(Config{Driver: "etcd"}, Dependencies{})
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindConfig))
	assert.Contains(t, err.Error(), "memory, redis, sqlite")
}
