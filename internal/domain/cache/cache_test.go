package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odiadev-tts-server-go/internal/domain/audio"
)

func newTestCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = 16
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 1 << 20
	}
	if cfg.Shards == 0 {
		cfg.Shards = 16
	}
	c, err := New(cfg, nil, nil, nil)
	require.NoError(t, err)
	return c
}

func fp(text string) Fingerprint {
	return Compute(text, "v1", audio.FormatMP3)
}

func TestNewRejectsNonPositiveBounds(t *testing.T) {
	_, err := New(Config{MaxEntries: 0, MaxBytes: 10}, nil, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{MaxEntries: 10, MaxBytes: 0}, nil, nil, nil)
	assert.Error(t, err)
}

func TestPutGet(t *testing.T) {
	c := newTestCache(t, Config{})
	c.Put(context.Background(), fp("a"), audio.FormatMP3, []byte("aaa"))

	entry, ok := c.Get(context.Background(), fp("a"))
	require.True(t, ok)
	assert.Equal(t, []byte("aaa"), entry.Audio)
	assert.Equal(t, int64(3), entry.Size)

	_, ok = c.Get(context.Background(), fp("b"))
	assert.False(t, ok)
}

func TestEvictsLeastRecentlyUsedByCount(t *testing.T) {
	c := newTestCache(t, Config{MaxEntries: 2})
	ctx := context.Background()
	c.Put(ctx, fp("a"), audio.FormatMP3, []byte("a"))
	c.Put(ctx, fp("b"), audio.FormatMP3, []byte("b"))
	_, _ = c.Get(ctx, fp("a"))
	c.Put(ctx, fp("c"), audio.FormatMP3, []byte("c"))

	_, okA := c.Get(ctx, fp("a"))
	_, okB := c.Get(ctx, fp("b"))
	_, okC := c.Get(ctx, fp("c"))
	assert.True(t, okA)
	assert.False(t, okB, "b was least recently used")
	assert.True(t, okC)

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestEvictsByBytes(t *testing.T) {
	c := newTestCache(t, Config{MaxBytes: 10})
	ctx := context.Background()
	c.Put(ctx, fp("a"), audio.FormatMP3, make([]byte, 6))
	c.Put(ctx, fp("b"), audio.FormatMP3, make([]byte, 6))

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.LessOrEqual(t, stats.Bytes, int64(10))
	_, ok := c.Get(ctx, fp("b"))
	assert.True(t, ok)
}

func TestSameShardEntriesShareTheWholeCapacity(t *testing.T) {
	c := newTestCache(t, Config{MaxEntries: 4, Shards: 16})
	ctx := context.Background()

	first := fp("first")
	var second Fingerprint
	for i := 0; ; i++ {
		candidate := fp(fmt.Sprintf("other-%d", i))
		if c.shardFor(candidate) == c.shardFor(first) {
			second = candidate
			break
		}
	}
	c.Put(ctx, first, audio.FormatMP3, []byte("1"))
	c.Put(ctx, second, audio.FormatMP3, []byte("2"))

	_, ok := c.Get(ctx, first)
	assert.True(t, ok)
	assert.Equal(t, 2, c.Stats().Entries)
	assert.Zero(t, c.Stats().Evictions)
}

func TestShardedCacheFillsToConfiguredBound(t *testing.T) {
	c := newTestCache(t, Config{MaxEntries: 20, Shards: 16})
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		c.Put(ctx, fp(fmt.Sprintf("utt-%d", i)), audio.FormatMP3, []byte{byte(i)})
	}
	stats := c.Stats()
	assert.Equal(t, 20, stats.Entries)
	assert.Zero(t, stats.Evictions)

	used := 0
	for _, s := range c.shards {
		if s.len() > 0 {
			used++
		}
	}
	assert.Greater(t, used, 1, "entries should spread over several shards")

	// utt-0 is the oldest overall; touching it makes utt-1 the victim.
	_, ok := c.Get(ctx, fp("utt-0"))
	require.True(t, ok)
	c.Put(ctx, fp("utt-20"), audio.FormatMP3, []byte("x"))

	stats = c.Stats()
	assert.Equal(t, 20, stats.Entries)
	assert.Equal(t, int64(1), stats.Evictions)
	_, ok = c.Get(ctx, fp("utt-1"))
	assert.False(t, ok, "utt-1 was least recently used across all shards")
	for _, text := range []string{"utt-0", "utt-2", "utt-19", "utt-20"} {
		_, ok := c.Get(ctx, fp(text))
		assert.True(t, ok, text)
	}
}

func TestShardedCacheEvictsByTotalBytes(t *testing.T) {
	c := newTestCache(t, Config{MaxBytes: 100, Shards: 16})
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		c.Put(ctx, fp(fmt.Sprintf("b-%d", i)), audio.FormatMP3, make([]byte, 10))
	}
	assert.Equal(t, int64(100), c.Stats().Bytes)
	assert.Zero(t, c.Stats().Evictions)

	c.Put(ctx, fp("big"), audio.FormatMP3, make([]byte, 25))
	stats := c.Stats()
	assert.Equal(t, int64(95), stats.Bytes)
	assert.Equal(t, int64(3), stats.Evictions)
	for i := 0; i < 3; i++ {
		_, ok := c.Get(ctx, fp(fmt.Sprintf("b-%d", i)))
		assert.False(t, ok)
	}
}

func TestConcurrentPutsNeverOverEvict(t *testing.T) {
	c := newTestCache(t, Config{MaxEntries: 32, Shards: 16})
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c.Put(ctx, fp(fmt.Sprintf("g%d-%d", g, i)), audio.FormatMP3, []byte("x"))
			}
		}(g)
	}
	wg.Wait()

	stats := c.Stats()
	assert.Equal(t, 32, stats.Entries)
	assert.Equal(t, int64(8*50-32), stats.Evictions)
	assert.Equal(t, int64(32), stats.Bytes)
}

func TestOversizeEntryIsReturnedButNotStored(t *testing.T) {
	c := newTestCache(t, Config{MaxBytes: 4})
	entry := c.Put(context.Background(), fp("big"), audio.FormatMP3, make([]byte, 5))
	assert.Equal(t, int64(5), entry.Size)

	_, ok := c.Get(context.Background(), fp("big"))
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Oversize)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t, Config{TTL: time.Minute})
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()
	c.Put(ctx, fp("a"), audio.FormatMP3, []byte("a"))
	c.Put(ctx, fp("b"), audio.FormatMP3, []byte("b"))

	now = now.Add(2 * time.Minute)
	_, ok := c.Get(ctx, fp("a"))
	assert.False(t, ok)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 0, c.Stats().Entries)
	assert.Equal(t, int64(2), c.Stats().Expired)
}

func TestInvalidate(t *testing.T) {
	c := newTestCache(t, Config{})
	c.Put(context.Background(), fp("a"), audio.FormatMP3, []byte("a"))
	require.NoError(t, c.Invalidate(context.Background(), fp("a")))
	_, ok := c.Get(context.Background(), fp("a"))
	assert.False(t, ok)
}

func TestDoMissThenHit(t *testing.T) {
	c := newTestCache(t, Config{})
	var calls atomic.Int32
	synth := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("ID3"), nil
	}

	entry, outcome, err := c.Do(context.Background(), fp("a"), audio.FormatMP3, synth)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome)
	assert.False(t, outcome.Cached())
	assert.Equal(t, []byte("ID3"), entry.Audio)

	_, outcome, err = c.Do(context.Background(), fp("a"), audio.FormatMP3, synth)
	require.NoError(t, err)
	assert.Equal(t, OutcomeHit, outcome)
	assert.True(t, outcome.Cached())
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoSharesConcurrentSynthesis(t *testing.T) {
	c := newTestCache(t, Config{})
	release := make(chan struct{})
	entered := make(chan struct{})
	var calls atomic.Int32
	synth := func(context.Context) ([]byte, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		<-release
		return []byte("ID3"), nil
	}

	const callers = 8
	outcomes := make([]Outcome, callers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, outcomes[0], _ = c.Do(context.Background(), fp("a"), audio.FormatMP3, synth)
	}()
	<-entered
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, outcomes[i], _ = c.Do(context.Background(), fp("a"), audio.FormatMP3, synth)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	misses := 0
	for _, o := range outcomes {
		if o == OutcomeMiss {
			misses++
			continue
		}
		assert.True(t, o.Cached(), "outcome %q", o)
	}
	assert.Equal(t, 1, misses)
}

func TestDoDoesNotCacheErrors(t *testing.T) {
	c := newTestCache(t, Config{})
	boom := errors.New("engine down")
	var calls atomic.Int32
	failing := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return nil, boom
	}

	_, _, err := c.Do(context.Background(), fp("a"), audio.FormatMP3, failing)
	assert.ErrorIs(t, err, boom)
	_, _, err = c.Do(context.Background(), fp("a"), audio.FormatMP3, failing)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestDoRejectsEmptyAudio(t *testing.T) {
	c := newTestCache(t, Config{})
	_, _, err := c.Do(context.Background(), fp("a"), audio.FormatMP3, func(context.Context) ([]byte, error) {
		return nil, nil
	})
	assert.Error(t, err)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestDoCallerCancelLeavesFlightRunning(t *testing.T) {
	c := newTestCache(t, Config{})
	release := make(chan struct{})
	entered := make(chan struct{})
	var flightCtxErr atomic.Value
	synth := func(ctx context.Context) ([]byte, error) {
		close(entered)
		<-release
		flightCtxErr.Store(ctx.Err() == nil)
		return []byte("ID3"), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, _, err := c.Do(ctx, fp("a"), audio.FormatMP3, synth)
		errCh <- err
	}()
	<-entered
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		_, ok := c.Get(context.Background(), fp("a"))
		return ok
	}, time.Second, time.Millisecond)
	assert.Equal(t, true, flightCtxErr.Load())
}

func TestRunJanitorStopsWithContext(t *testing.T) {
	c := newTestCache(t, Config{TTL: time.Millisecond})
	c.Put(context.Background(), fp("a"), audio.FormatMP3, []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.RunJanitor(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return c.Stats().Entries == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
