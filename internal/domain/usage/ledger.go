// Package usage enforces per-key request quotas and rate limits and keeps
// the usage ledger that backs billing.
//
// Billing policy: a cache hit is one request and its characters count toward
// characters_used, but not toward synthesized_characters. A caller that joins
// another caller's in-flight synthesis is billed as a cache hit. Failed
// requests are never charged and only increment failures.
package usage

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"odiadev-tts-server-go/internal/domain/usage/model"
	"odiadev-tts-server-go/internal/domain/usage/store"
	"odiadev-tts-server-go/internal/platform/config"
	platformerrors "odiadev-tts-server-go/internal/platform/errors"
	"odiadev-tts-server-go/internal/platform/logging"
	"odiadev-tts-server-go/internal/platform/observability"
)

type Account = model.Account

// Reason explains a denied authorization.
type Reason string

const (
	ReasonUnknownKey    Reason = "unknown_key"
	ReasonQuotaExceeded Reason = "quota_exceeded"
	ReasonRateLimited   Reason = "rate_limited"
	ReasonTextTooLong   Reason = "text_too_long"
)

// Decision is the result of Authorize. An allowed decision holds one
// reservation that must be ended with Commit or Release.
type Decision struct {
	Allowed bool
	Reason  Reason
	Account Account
	Plan    Plan
}

// Totals aggregates every account's counters for the current periods.
type Totals struct {
	Accounts              int   `json:"accounts"`
	Requests              int64 `json:"requests"`
	Characters            int64 `json:"characters"`
	SynthesizedCharacters int64 `json:"synthesized_characters"`
	CacheHits             int64 `json:"cache_hits"`
	CacheMisses           int64 `json:"cache_misses"`
	Failures              int64 `json:"failures"`
	Reserved              int64 `json:"reserved"`
}

const stripeCount = 256

type keyLimiter struct {
	tier    string
	limiter *rate.Limiter
}

type stripe struct {
	mu       sync.Mutex
	reserved map[string]int64
	limiters map[string]*keyLimiter
}

// Ledger serializes every read-modify-write for a key on one of a fixed set
// of stripes, so unrelated keys rarely contend.
type Ledger struct {
	store   store.Store
	plans   map[string]Plan
	stripes [stripeCount]stripe
	metrics *observability.Metrics
	logger  *logging.Logger
	now     func() time.Time
}

func NewLedger(st store.Store, plans map[string]Plan, metrics *observability.Metrics, logger *logging.Logger) (*Ledger, error) {
	if st == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "usage.NewLedger", "usage store is required")
	}
	if len(plans) == 0 {
		return nil, platformerrors.New(platformerrors.KindConfig, "usage.NewLedger", "at least one plan is required")
	}
	l := &Ledger{
		store:   st,
		plans:   plans,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
	for i := range l.stripes {
		l.stripes[i].reserved = make(map[string]int64)
		l.stripes[i].limiters = make(map[string]*keyLimiter)
	}
	return l, nil
}

func (l *Ledger) stripeFor(key string) *stripe {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &l.stripes[h.Sum32()%stripeCount]
}

// Plan returns the plan for a tier.
func (l *Ledger) Plan(tier string) (Plan, bool) {
	p, ok := l.plans[tier]
	return p, ok
}

func (l *Ledger) Plans() []Plan {
	return SortedPlans(l.plans)
}

// Provision creates configured accounts and refreshes the tier and limit of
// existing ones. Counters are kept.
func (l *Ledger) Provision(ctx context.Context, accounts []config.AccountConfig) error {
	for _, a := range accounts {
		plan, ok := l.plans[a.Tier]
		if !ok {
			return platformerrors.New(platformerrors.KindConfig, "usage.Provision", "account "+a.Key+" references unknown tier "+a.Tier)
		}
		s := l.stripeFor(a.Key)
		s.mu.Lock()
		_, err := l.store.Provision(ctx, a.Key, plan.Tier, plan.RequestsLimit, plan.Period.Start(l.now()))
		s.mu.Unlock()
		if err != nil {
			return platformerrors.Wrap(platformerrors.KindStorage, "usage.Provision", "provision account", err)
		}
	}
	l.logger.InfoTag("Ledger", "provisioned %d accounts", len(accounts))
	return nil
}

// Authorize checks the key's plan and reserves one request slot. Denials are
// returned as a Decision, not an error; errors are infrastructure failures.
func (l *Ledger) Authorize(ctx context.Context, key string, chars int) (Decision, error) {
	s := l.stripeFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, plan, err := l.current(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return l.deny(ReasonUnknownKey, Account{Key: key}, Plan{}), nil
	}
	if err != nil {
		return Decision{}, err
	}

	if chars > plan.MaxTextChars {
		return l.deny(ReasonTextTooLong, acct, plan), nil
	}
	if acct.RequestsUsed+s.reserved[key] >= acct.RequestsLimit {
		return l.deny(ReasonQuotaExceeded, acct, plan), nil
	}
	if !l.limiterFor(s, key, plan).AllowN(l.now(), 1) {
		return l.deny(ReasonRateLimited, acct, plan), nil
	}

	s.reserved[key]++
	return Decision{Allowed: true, Account: acct, Plan: plan}, nil
}

func (l *Ledger) deny(reason Reason, acct Account, plan Plan) Decision {
	l.metrics.RecordDenial(string(reason))
	l.logger.DebugTag("Ledger", "denied key tier=%s reason=%s", plan.Tier, reason)
	return Decision{Reason: reason, Account: acct, Plan: plan}
}

// Commit charges a completed request and releases its reservation in one
// serialized step.
func (l *Ledger) Commit(ctx context.Context, key string, chars int, cacheHit bool) (Account, error) {
	s := l.stripeFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	l.unreserve(s, key)

	if _, _, err := l.current(ctx, key); err != nil {
		return Account{}, err
	}

	delta := model.Delta{Requests: 1, Characters: int64(chars), At: l.now().UTC()}
	if cacheHit {
		delta.CacheHits = 1
	} else {
		delta.SynthesizedCharacters = int64(chars)
	}
	acct, err := l.store.Apply(ctx, key, delta)
	if err != nil {
		return Account{}, platformerrors.Wrap(platformerrors.KindStorage, "usage.Commit", "apply usage", err)
	}
	synthesized := 0
	if !cacheHit {
		synthesized = chars
	}
	l.metrics.RecordCharacters(acct.Tier, chars, synthesized)
	return acct, nil
}

// Release drops a reservation without charging. failed records an engine
// failure against the key.
func (l *Ledger) Release(ctx context.Context, key string, failed bool) error {
	s := l.stripeFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	l.unreserve(s, key)

	if !failed {
		return nil
	}
	if _, err := l.store.Apply(ctx, key, model.Delta{Failures: 1, At: l.now().UTC()}); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "usage.Release", "record failure", err)
	}
	return nil
}

func (l *Ledger) unreserve(s *stripe, key string) {
	switch n := s.reserved[key]; {
	case n > 1:
		s.reserved[key] = n - 1
	case n == 1:
		delete(s.reserved, key)
	}
}

// Snapshot returns the key's account with any due rollover applied.
func (l *Ledger) Snapshot(ctx context.Context, key string) (Account, Plan, error) {
	s := l.stripeFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, plan, err := l.current(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return Account{}, Plan{}, platformerrors.New(platformerrors.KindUnauthorized, "usage.Snapshot", "unknown api key")
	}
	return acct, plan, err
}

// Reserved returns the number of open reservations for key.
func (l *Ledger) Reserved(key string) int64 {
	s := l.stripeFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserved[key]
}

// Totals sums every account. It reads the store without taking stripe locks,
// so the result may be slightly stale under load.
func (l *Ledger) Totals(ctx context.Context) (Totals, error) {
	accounts, err := l.store.List(ctx)
	if err != nil {
		return Totals{}, platformerrors.Wrap(platformerrors.KindStorage, "usage.Totals", "list accounts", err)
	}
	var t Totals
	for _, a := range accounts {
		t.Accounts++
		t.Requests += a.RequestsUsed
		t.Characters += a.CharactersUsed
		t.SynthesizedCharacters += a.SynthesizedCharacters
		t.CacheHits += a.CacheHits
		t.Failures += a.Failures
	}
	t.CacheMisses = t.Requests - t.CacheHits
	for i := range l.stripes {
		s := &l.stripes[i]
		s.mu.Lock()
		for _, n := range s.reserved {
			t.Reserved += n
		}
		s.mu.Unlock()
	}
	return t, nil
}

func (l *Ledger) HealthCheck(ctx context.Context) error {
	_, err := l.store.Stats(ctx)
	return err
}

func (l *Ledger) StoreStats(ctx context.Context) (map[string]any, error) {
	return l.store.Stats(ctx)
}

func (l *Ledger) Close(ctx context.Context) error {
	return l.store.Close(ctx)
}

// current loads the account and applies a lazy rollover. Callers hold the
// key's stripe lock.
func (l *Ledger) current(ctx context.Context, key string) (Account, Plan, error) {
	acct, err := l.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return Account{}, Plan{}, err
	}
	if err != nil {
		return Account{}, Plan{}, platformerrors.Wrap(platformerrors.KindStorage, "usage.load", "load account", err)
	}
	plan, ok := l.plans[acct.Tier]
	if !ok {
		return Account{}, Plan{}, platformerrors.New(platformerrors.KindConfig, "usage.load", "account tier "+acct.Tier+" has no plan")
	}

	start := plan.Period.Start(l.now())
	if acct.PeriodStart.Before(start) {
		acct, err = l.store.Rollover(ctx, key, start)
		if err != nil {
			return Account{}, Plan{}, platformerrors.Wrap(platformerrors.KindStorage, "usage.rollover", "roll over period", err)
		}
		l.logger.InfoTag("Ledger", "tier %s period rolled over to %s", plan.Tier, start.Format(time.RFC3339))
	}
	return acct, plan, nil
}

// limiterFor returns the key's token bucket, rebuilding it when the tier
// changed. Callers hold the stripe lock.
func (l *Ledger) limiterFor(s *stripe, key string, plan Plan) *rate.Limiter {
	if kl, ok := s.limiters[key]; ok && kl.tier == plan.Tier {
		return kl.limiter
	}
	limit := rate.Limit(plan.RatePerSecond)
	if plan.RatePerSecond <= 0 {
		limit = rate.Inf
	}
	kl := &keyLimiter{tier: plan.Tier, limiter: rate.NewLimiter(limit, plan.Burst)}
	s.limiters[key] = kl
	return kl.limiter
}
