package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"odiadev-tts-server-go/internal/domain/usage/model"
)

type memoryStore struct {
	items map[string]model.Account
	mutex sync.RWMutex
}

// NewMemory builds an in-memory usage store. Counters are lost on restart.
func NewMemory() Store {
	return &memoryStore{items: make(map[string]model.Account)}
}

func (s *memoryStore) Get(_ context.Context, key string) (model.Account, error) {
	s.mutex.RLock()
	acct, ok := s.items[key]
	s.mutex.RUnlock()
	if !ok {
		return model.Account{}, ErrNotFound
	}
	return acct, nil
}

func (s *memoryStore) Provision(_ context.Context, key, tier string, limit int64, periodStart time.Time) (model.Account, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now().UTC()
	acct, ok := s.items[key]
	if !ok {
		acct = model.Account{Key: key, PeriodStart: periodStart}
	}
	acct.Tier = tier
	acct.RequestsLimit = limit
	acct.UpdatedAt = now
	s.items[key] = acct
	return acct, nil
}

func (s *memoryStore) Apply(_ context.Context, key string, d model.Delta) (model.Account, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	acct, ok := s.items[key]
	if !ok {
		return model.Account{}, ErrNotFound
	}
	acct.RequestsUsed += d.Requests
	acct.CharactersUsed += d.Characters
	acct.SynthesizedCharacters += d.SynthesizedCharacters
	acct.CacheHits += d.CacheHits
	acct.Failures += d.Failures
	acct.UpdatedAt = d.At
	s.items[key] = acct
	return acct, nil
}

func (s *memoryStore) Rollover(_ context.Context, key string, periodStart time.Time) (model.Account, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	acct, ok := s.items[key]
	if !ok {
		return model.Account{}, ErrNotFound
	}
	if acct.PeriodStart.Before(periodStart) {
		acct = resetCounters(acct, periodStart)
		s.items[key] = acct
	}
	return acct, nil
}

func (s *memoryStore) List(_ context.Context) ([]model.Account, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]model.Account, 0, len(s.items))
	for _, acct := range s.items {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return map[string]any{
		"type":  DriverMemory,
		"total": len(s.items),
	}, nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}

func resetCounters(acct model.Account, periodStart time.Time) model.Account {
	acct.RequestsUsed = 0
	acct.CharactersUsed = 0
	acct.SynthesizedCharacters = 0
	acct.CacheHits = 0
	acct.Failures = 0
	acct.PeriodStart = periodStart
	acct.UpdatedAt = time.Now().UTC()
	return acct
}
