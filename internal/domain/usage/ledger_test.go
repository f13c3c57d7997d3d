package usage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odiadev-tts-server-go/internal/domain/usage/store"
	"odiadev-tts-server-go/internal/platform/config"
	platformerrors "odiadev-tts-server-go/internal/platform/errors"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testPlans() map[string]Plan {
	return map[string]Plan{
		"free":    {Tier: "free", RequestsLimit: 3, Period: PeriodDaily, MaxTextChars: 20, RatePerSecond: 0, Burst: 1},
		"limited": {Tier: "limited", RequestsLimit: 100, Period: PeriodMonthly, MaxTextChars: 100, RatePerSecond: 1, Burst: 2},
		"wide":    {Tier: "wide", RequestsLimit: 10, Period: PeriodMonthly, MaxTextChars: 100},
	}
}

func newTestLedger(t *testing.T, accounts ...config.AccountConfig) (*Ledger, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)}
	l, err := NewLedger(store.NewMemory(), testPlans(), nil, nil)
	require.NoError(t, err)
	l.now = c.Now
	require.NoError(t, l.Provision(context.Background(), accounts))
	return l, c
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2026, 10, 16, 23, 59, 0, 0, time.FixedZone("WAT", 3600))
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), PeriodDaily.Start(now))
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), PeriodMonthly.Start(now))
}

func TestPlansFromConfig(t *testing.T) {
	plans, err := PlansFromConfig(config.DefaultTiers())
	require.NoError(t, err)
	assert.Equal(t, int64(100), plans["free"].RequestsLimit)
	assert.Equal(t, PeriodDaily, plans["free"].Period)
	assert.Equal(t, 500, plans["free"].MaxTextChars)

	sorted := SortedPlans(plans)
	assert.Equal(t, "free", sorted[0].Tier)
	assert.Equal(t, "enterprise", sorted[len(sorted)-1].Tier)

	_, err = PlansFromConfig(map[string]config.TierConfig{"x": {RequestsLimit: 1, Period: "weekly", MaxTextChars: 1}})
	assert.Error(t, err)
	_, err = PlansFromConfig(map[string]config.TierConfig{"x": {RequestsLimit: 0, Period: "daily", MaxTextChars: 1}})
	assert.Error(t, err)
}

func TestAuthorizeUnknownKey(t *testing.T) {
	l, _ := newTestLedger(t)
	d, err := l.Authorize(context.Background(), "ghost", 5)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonUnknownKey, d.Reason)

	_, _, err = l.Snapshot(context.Background(), "ghost")
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindUnauthorized))
}

func TestAuthorizeTextTooLong(t *testing.T) {
	l, _ := newTestLedger(t, config.AccountConfig{Key: "k", Tier: "free"})
	d, err := l.Authorize(context.Background(), "k", 21)
	require.NoError(t, err)
	assert.Equal(t, ReasonTextTooLong, d.Reason)
	assert.Zero(t, l.Reserved("k"))
}

func TestReservationsPreventOvershoot(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, config.AccountConfig{Key: "k", Tier: "free"})

	for i := 0; i < 3; i++ {
		d, err := l.Authorize(ctx, "k", 5)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Authorize(ctx, "k", 5)
	require.NoError(t, err)
	assert.Equal(t, ReasonQuotaExceeded, d.Reason)

	require.NoError(t, l.Release(ctx, "k", false))
	d, err = l.Authorize(ctx, "k", 5)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestConcurrentAuthorizeNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, config.AccountConfig{Key: "k", Tier: "wide"})

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Authorize(ctx, "k", 4)
			if !assert.NoError(t, err) || !d.Allowed {
				return
			}
			allowed.Add(1)
			_, err = l.Commit(ctx, "k", 4, false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), allowed.Load())
	acct, _, err := l.Snapshot(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(10), acct.RequestsUsed)
	assert.Equal(t, int64(40), acct.CharactersUsed)
	assert.Zero(t, l.Reserved("k"))
}

func TestRateLimit(t *testing.T) {
	ctx := context.Background()
	l, c := newTestLedger(t, config.AccountConfig{Key: "k", Tier: "limited"})

	for i := 0; i < 2; i++ {
		d, err := l.Authorize(ctx, "k", 1)
		require.NoError(t, err)
		require.True(t, d.Allowed, "burst request %d", i)
	}
	d, err := l.Authorize(ctx, "k", 1)
	require.NoError(t, err)
	assert.Equal(t, ReasonRateLimited, d.Reason)
	assert.Equal(t, int64(2), l.Reserved("k"), "a denial reserves nothing")

	c.Advance(time.Second)
	d, err = l.Authorize(ctx, "k", 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCommitSeparatesHitsFromSynthesis(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, config.AccountConfig{Key: "k", Tier: "wide"})

	_, err := l.Authorize(ctx, "k", 10)
	require.NoError(t, err)
	_, err = l.Commit(ctx, "k", 10, false)
	require.NoError(t, err)

	_, err = l.Authorize(ctx, "k", 10)
	require.NoError(t, err)
	acct, err := l.Commit(ctx, "k", 10, true)
	require.NoError(t, err)

	assert.Equal(t, int64(2), acct.RequestsUsed)
	assert.Equal(t, int64(20), acct.CharactersUsed)
	assert.Equal(t, int64(10), acct.SynthesizedCharacters)
	assert.Equal(t, int64(1), acct.CacheHits)
}

func TestReleaseOnFailureDoesNotCharge(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, config.AccountConfig{Key: "k", Tier: "wide"})

	_, err := l.Authorize(ctx, "k", 10)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, "k", true))

	acct, _, err := l.Snapshot(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, acct.RequestsUsed)
	assert.Zero(t, acct.CharactersUsed)
	assert.Equal(t, int64(1), acct.Failures)
	assert.Zero(t, l.Reserved("k"))
}

func TestDailyRollover(t *testing.T) {
	ctx := context.Background()
	l, c := newTestLedger(t, config.AccountConfig{Key: "k", Tier: "free"})

	for i := 0; i < 3; i++ {
		_, err := l.Authorize(ctx, "k", 5)
		require.NoError(t, err)
		_, err = l.Commit(ctx, "k", 5, false)
		require.NoError(t, err)
	}
	d, err := l.Authorize(ctx, "k", 5)
	require.NoError(t, err)
	assert.Equal(t, ReasonQuotaExceeded, d.Reason)

	c.Advance(24 * time.Hour)
	acct, _, err := l.Snapshot(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, acct.RequestsUsed)
	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), acct.PeriodStart)

	d, err = l.Authorize(ctx, "k", 5)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestProvisionKeepsCounters(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, config.AccountConfig{Key: "k", Tier: "free"})
	_, err := l.Authorize(ctx, "k", 5)
	require.NoError(t, err)
	_, err = l.Commit(ctx, "k", 5, false)
	require.NoError(t, err)

	require.NoError(t, l.Provision(ctx, []config.AccountConfig{{Key: "k", Tier: "wide"}}))
	acct, plan, err := l.Snapshot(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "wide", plan.Tier)
	assert.Equal(t, int64(10), acct.RequestsLimit)
	assert.Equal(t, int64(1), acct.RequestsUsed)

	err = l.Provision(ctx, []config.AccountConfig{{Key: "x", Tier: "platinum"}})
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindConfig))
}

func TestTotals(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t,
		config.AccountConfig{Key: "a", Tier: "wide"},
		config.AccountConfig{Key: "b", Tier: "wide"},
	)
	for _, hit := range []bool{false, true} {
		_, err := l.Authorize(ctx, "a", 3)
		require.NoError(t, err)
		_, err = l.Commit(ctx, "a", 3, hit)
		require.NoError(t, err)
	}
	_, err := l.Authorize(ctx, "b", 7)
	require.NoError(t, err)

	totals, err := l.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Accounts)
	assert.Equal(t, int64(2), totals.Requests)
	assert.Equal(t, int64(6), totals.Characters)
	assert.Equal(t, int64(3), totals.SynthesizedCharacters)
	assert.Equal(t, int64(1), totals.CacheHits)
	assert.Equal(t, int64(1), totals.CacheMisses)
	assert.Equal(t, int64(1), totals.Reserved)
}
