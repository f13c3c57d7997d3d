// Package cache stores rendered audio by fingerprint and makes sure that
// concurrent requests for the same fingerprint share one synthesis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"odiadev-tts-server-go/internal/domain/audio"
	"odiadev-tts-server-go/internal/platform/logging"
	"odiadev-tts-server-go/internal/platform/observability"
)

// Entry is a published rendering. Audio is shared between readers and must
// not be modified.
type Entry struct {
	Fingerprint    Fingerprint
	Audio          []byte
	Format         audio.Format
	CreatedAt      time.Time
	LastAccessedAt time.Time
	Size           int64
}

// Outcome tells the caller where its audio came from.
type Outcome string

const (
	OutcomeHit      Outcome = "hit"       // served from memory
	OutcomeStoreHit Outcome = "store_hit" // loaded from the durable tier
	OutcomeShared   Outcome = "shared"    // joined another caller's synthesis
	OutcomeMiss     Outcome = "miss"      // this caller ran the synthesis
)

// Cached reports whether the caller avoided paying for a synthesis.
func (o Outcome) Cached() bool {
	return o != OutcomeMiss
}

// SynthFunc produces audio for a miss. It receives a context that is not
// cancelled when the requesting caller goes away.
type SynthFunc func(ctx context.Context) ([]byte, error)

type Config struct {
	MaxEntries int
	MaxBytes   int64
	TTL        time.Duration
	Shards     int

	// StoreTimeout bounds each durable-tier call.
	StoreTimeout time.Duration
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Entries     int    `json:"entries"`
	Bytes       int64  `json:"bytes"`
	MaxEntries  int    `json:"max_entries"`
	MaxBytes    int64  `json:"max_bytes"`
	Shards      int    `json:"shards"`
	Hits        int64  `json:"hits"`
	Misses      int64  `json:"misses"`
	SharedWaits int64  `json:"shared_waits"`
	Evictions   int64  `json:"evictions"`
	Expired     int64  `json:"expired"`
	Oversize    int64  `json:"oversize"`
	InFlight    int64  `json:"in_flight"`
	StoreHits   int64  `json:"store_hits"`
	StoreErrors int64  `json:"store_errors"`
	Store       string `json:"store"`
}

// Cache is a sharded in-memory LRU with an optional durable tier behind it.
// Shards only split the locking: MaxEntries and MaxBytes bound the whole
// cache, and eviction always removes the least recently used entry overall.
type Cache struct {
	cfg     Config
	shards  []*shard
	budget  budget
	evictMu sync.Mutex
	group   singleflight.Group
	store   Store
	metrics *observability.Metrics
	logger  *logging.Logger
	now     func() time.Time

	saves sync.WaitGroup

	hits        atomic.Int64
	misses      atomic.Int64
	shared      atomic.Int64
	evictions   atomic.Int64
	expired     atomic.Int64
	oversize    atomic.Int64
	inFlight    atomic.Int64
	storeHits   atomic.Int64
	storeErrors atomic.Int64
}

// New builds a cache. store may be nil for a memory-only cache.
func New(cfg Config, store Store, metrics *observability.Metrics, logger *logging.Logger) (*Cache, error) {
	if cfg.MaxEntries <= 0 || cfg.MaxBytes <= 0 {
		return nil, fmt.Errorf("cache bounds must be positive (entries=%d, bytes=%d)", cfg.MaxEntries, cfg.MaxBytes)
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 16
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}

	c := &Cache{
		cfg:     cfg,
		shards:  make([]*shard, cfg.Shards),
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
	for i := range c.shards {
		c.shards[i] = newShard(cfg.TTL, &c.budget)
	}
	return c, nil
}

func (c *Cache) shardFor(fp Fingerprint) *shard {
	h := fnv.New32a()
	h.Write([]byte(fp))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get looks up fp in memory only.
func (c *Cache) Get(_ context.Context, fp Fingerprint) (Entry, bool) {
	entry, ok, expired := c.shardFor(fp).get(fp, c.now())
	if expired {
		c.expired.Add(1)
		c.metrics.RecordCacheEvent("expired")
	}
	return entry, ok
}

// Put publishes audio under fp. Entries larger than MaxBytes are returned but
// not retained.
func (c *Cache) Put(_ context.Context, fp Fingerprint, format audio.Format, data []byte) Entry {
	now := c.now()
	entry := Entry{
		Fingerprint:    fp,
		Audio:          data,
		Format:         format,
		CreatedAt:      now,
		LastAccessedAt: now,
		Size:           int64(len(data)),
	}
	c.publish(entry)
	return entry
}

func (c *Cache) publish(entry Entry) {
	if entry.Size > c.cfg.MaxBytes {
		c.oversize.Add(1)
		c.metrics.RecordCacheEvent("oversize")
		c.logger.WarnTag("Cache", "entry %s (%d bytes) exceeds the %d byte cache, not cached",
			entry.Fingerprint.Short(), entry.Size, c.cfg.MaxBytes)
		return
	}
	c.shardFor(entry.Fingerprint).put(entry)
	if evicted := c.enforceBounds(); evicted > 0 {
		c.evictions.Add(int64(evicted))
		for i := 0; i < evicted; i++ {
			c.metrics.RecordCacheEvent("eviction")
		}
	}
	c.updateSizeMetrics()
}

// enforceBounds evicts cache-wide LRU entries until both bounds hold. The
// mutex keeps concurrent inserts from evicting more than the overflow.
func (c *Cache) enforceBounds() int {
	c.evictMu.Lock()
	defer c.evictMu.Unlock()

	evicted := 0
	for c.budget.over(c.cfg.MaxEntries, c.cfg.MaxBytes) {
		var victim *shard
		var oldest uint64
		for _, s := range c.shards {
			if stamp, ok := s.oldest(); ok && (victim == nil || stamp < oldest) {
				victim, oldest = s, stamp
			}
		}
		if victim == nil {
			break
		}
		if victim.evictOldest(oldest) {
			evicted++
		}
	}
	return evicted
}

// Do returns the cached audio for fp, or runs synth once for all concurrent
// callers with the same fingerprint. Errors are delivered to every waiter and
// never cached. ctx only bounds this caller's wait.
func (c *Cache) Do(ctx context.Context, fp Fingerprint, format audio.Format, synth SynthFunc) (Entry, Outcome, error) {
	if entry, ok := c.Get(ctx, fp); ok {
		c.hits.Add(1)
		c.metrics.RecordCacheEvent("hit")
		return entry, OutcomeHit, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	leader := false
	var leaderOutcome Outcome
	ch := c.group.DoChan(string(fp), func() (interface{}, error) {
		leader = true
		c.inFlight.Add(1)
		defer c.inFlight.Add(-1)

		entry, outcome, err := c.fill(flightCtx, fp, format, synth)
		leaderOutcome = outcome
		return entry, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, "", res.Err
		}
		entry := res.Val.(Entry)
		outcome := OutcomeShared
		if leader {
			outcome = leaderOutcome
		}
		c.count(outcome)
		return entry, outcome, nil
	case <-ctx.Done():
		return Entry{}, "", ctx.Err()
	}
}

// fill runs inside the flight: memory again, then the durable tier, then
// synth.
func (c *Cache) fill(ctx context.Context, fp Fingerprint, format audio.Format, synth SynthFunc) (Entry, Outcome, error) {
	if entry, ok := c.Get(ctx, fp); ok {
		return entry, OutcomeHit, nil
	}

	if entry, ok := c.loadDurable(ctx, fp, format); ok {
		c.publish(entry)
		return entry, OutcomeStoreHit, nil
	}

	data, err := synth(ctx)
	if err != nil {
		return Entry{}, OutcomeMiss, err
	}
	if len(data) == 0 {
		return Entry{}, OutcomeMiss, errors.New("synthesis produced no audio")
	}

	entry := c.Put(ctx, fp, format, data)
	c.saveDurable(entry)
	return entry, OutcomeMiss, nil
}

func (c *Cache) count(outcome Outcome) {
	switch outcome {
	case OutcomeHit:
		c.hits.Add(1)
	case OutcomeStoreHit:
		c.storeHits.Add(1)
	case OutcomeShared:
		c.shared.Add(1)
	case OutcomeMiss:
		c.misses.Add(1)
	}
	c.metrics.RecordCacheEvent(string(outcome))
}

func (c *Cache) loadDurable(ctx context.Context, fp Fingerprint, format audio.Format) (Entry, bool) {
	if c.store == nil {
		return Entry{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	defer cancel()

	stored, err := c.store.Load(ctx, fp)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.storeErrors.Add(1)
			c.metrics.RecordCacheEvent("store_error")
			c.logger.WarnTag("Cache", "durable load %s via %s failed, treating as miss: %v",
				fp.Short(), c.store.Name(), err)
		}
		return Entry{}, false
	}
	if stored.Format != format || len(stored.Audio) == 0 {
		return Entry{}, false
	}
	if c.cfg.TTL > 0 && c.now().Sub(stored.CreatedAt) >= c.cfg.TTL {
		return Entry{}, false
	}
	now := c.now()
	return Entry{
		Fingerprint:    fp,
		Audio:          stored.Audio,
		Format:         stored.Format,
		CreatedAt:      stored.CreatedAt,
		LastAccessedAt: now,
		Size:           int64(len(stored.Audio)),
	}, true
}

// saveDurable writes through in the background so waiters are released as
// soon as the entry is in memory.
func (c *Cache) saveDurable(entry Entry) {
	if c.store == nil {
		return
	}
	c.saves.Add(1)
	go func() {
		defer c.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StoreTimeout)
		defer cancel()
		err := c.store.Save(ctx, StoredAudio{
			Fingerprint: entry.Fingerprint,
			Audio:       entry.Audio,
			Format:      entry.Format,
			CreatedAt:   entry.CreatedAt,
		}, c.cfg.TTL)
		if err != nil {
			c.storeErrors.Add(1)
			c.metrics.RecordCacheEvent("store_error")
			c.logger.WarnTag("Cache", "durable save %s via %s failed: %v",
				entry.Fingerprint.Short(), c.store.Name(), err)
		}
	}()
}

// Invalidate drops fp from memory and the durable tier.
func (c *Cache) Invalidate(ctx context.Context, fp Fingerprint) error {
	c.shardFor(fp).remove(fp)
	c.updateSizeMetrics()
	if c.store == nil {
		return nil
	}
	if err := c.store.Delete(ctx, fp); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Sweep removes expired entries from every shard.
func (c *Cache) Sweep() int {
	now := c.now()
	removed := 0
	for _, s := range c.shards {
		removed += s.sweep(now)
	}
	if removed > 0 {
		c.expired.Add(int64(removed))
		c.updateSizeMetrics()
		c.logger.DebugTag("Cache", "swept %d expired entries", removed)
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is done.
func (c *Cache) RunJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *Cache) size() (int, int64) {
	return int(c.budget.entries.Load()), c.budget.bytes.Load()
}

func (c *Cache) updateSizeMetrics() {
	if c.metrics == nil {
		return
	}
	entries, bytes := c.size()
	c.metrics.SetCacheSize(entries, bytes)
}

func (c *Cache) Stats() Stats {
	entries, bytes := c.size()
	storeName := "none"
	if c.store != nil {
		storeName = c.store.Name()
	}
	return Stats{
		Entries:     entries,
		Bytes:       bytes,
		MaxEntries:  c.cfg.MaxEntries,
		MaxBytes:    c.cfg.MaxBytes,
		Shards:      len(c.shards),
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		SharedWaits: c.shared.Load(),
		Evictions:   c.evictions.Load(),
		Expired:     c.expired.Load(),
		Oversize:    c.oversize.Load(),
		InFlight:    c.inFlight.Load(),
		StoreHits:   c.storeHits.Load(),
		StoreErrors: c.storeErrors.Load(),
		Store:       storeName,
	}
}

// HealthCheck reports durable-tier reachability. A memory-only cache is
// always healthy.
func (c *Cache) HealthCheck(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	_, err := c.store.Stats(ctx)
	return err
}

// Close waits for pending write-through saves and closes the durable tier.
func (c *Cache) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.saves.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	if c.store == nil {
		return nil
	}
	return c.store.Close(ctx)
}
