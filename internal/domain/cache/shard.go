package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// budget holds the cache-wide totals. Shards update it under their own lock;
// the bounds are enforced against it, never per shard.
type budget struct {
	entries atomic.Int64
	bytes   atomic.Int64
	clock   atomic.Uint64 // access stamps, cache-wide
}

func (b *budget) over(maxEntries int, maxBytes int64) bool {
	return b.entries.Load() > int64(maxEntries) || b.bytes.Load() > maxBytes
}

type item struct {
	entry Entry
	stamp uint64
}

// shard is one independently locked LRU partition. Its list is ordered by
// stamp, so the cache-wide LRU entry is the oldest of the shard tails.
type shard struct {
	mu     sync.Mutex
	items  map[Fingerprint]*list.Element
	lru    *list.List // front = most recently used
	ttl    time.Duration
	budget *budget
}

func newShard(ttl time.Duration, b *budget) *shard {
	return &shard{
		items:  make(map[Fingerprint]*list.Element),
		lru:    list.New(),
		ttl:    ttl,
		budget: b,
	}
}

func (s *shard) expired(e *Entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.CreatedAt) >= s.ttl
}

// get returns a copy of the entry and marks it recently used. An expired
// entry is removed and reported as absent.
func (s *shard) get(fp Fingerprint, now time.Time) (Entry, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[fp]
	if !ok {
		return Entry{}, false, false
	}
	it := elem.Value.(*item)
	if s.expired(&it.entry, now) {
		s.removeElement(elem)
		return Entry{}, false, true
	}
	it.entry.LastAccessedAt = now
	it.stamp = s.budget.clock.Add(1)
	s.lru.MoveToFront(elem)
	return it.entry, true, false
}

// put inserts or replaces an entry. It never evicts; the cache does that
// against the global bounds once the shard lock is released.
func (s *shard) put(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[entry.Fingerprint]; ok {
		s.removeElement(elem)
	}
	s.items[entry.Fingerprint] = s.lru.PushFront(&item{entry: entry, stamp: s.budget.clock.Add(1)})
	s.budget.entries.Add(1)
	s.budget.bytes.Add(entry.Size)
}

// oldest reports the stamp of the shard's least recently used entry.
func (s *shard) oldest() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tail := s.lru.Back()
	if tail == nil {
		return 0, false
	}
	return tail.Value.(*item).stamp, true
}

// evictOldest removes the tail if it still carries stamp. A false return
// means the tail was touched or removed meanwhile.
func (s *shard) evictOldest(stamp uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tail := s.lru.Back()
	if tail == nil || tail.Value.(*item).stamp != stamp {
		return false
	}
	s.removeElement(tail)
	return true
}

func (s *shard) remove(fp Fingerprint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.items[fp]
	if !ok {
		return false
	}
	s.removeElement(elem)
	return true
}

// sweep drops every expired entry and returns how many were removed.
func (s *shard) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for elem := s.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if s.expired(&elem.Value.(*item).entry, now) {
			s.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

func (s *shard) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *shard) removeElement(elem *list.Element) {
	it := elem.Value.(*item)
	s.lru.Remove(elem)
	delete(s.items, it.entry.Fingerprint)
	s.budget.entries.Add(-1)
	s.budget.bytes.Add(-it.entry.Size)
}
