package model

import "time"

// Account is the ledger row for one API key. Counters cover the current
// period only.
type Account struct {
	Key                   string    `json:"-"`
	Tier                  string    `json:"tier"`
	RequestsUsed          int64     `json:"requests_used"`
	RequestsLimit         int64     `json:"requests_limit"`
	CharactersUsed        int64     `json:"characters_used"`
	SynthesizedCharacters int64     `json:"synthesized_characters"`
	CacheHits             int64     `json:"cache_hits"`
	Failures              int64     `json:"failures"`
	PeriodStart           time.Time `json:"period_start"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Remaining is the number of requests left in the period, never negative.
func (a Account) Remaining() int64 {
	if a.RequestsUsed >= a.RequestsLimit {
		return 0
	}
	return a.RequestsLimit - a.RequestsUsed
}

// Delta is a set of counter increments applied atomically by a store.
type Delta struct {
	Requests              int64
	Characters            int64
	SynthesizedCharacters int64
	CacheHits             int64
	Failures              int64
	At                    time.Time
}
