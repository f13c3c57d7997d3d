package usage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"odiadev-tts-server-go/internal/platform/config"
)

// Period is the reset cadence of a tier's request limit.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

// Start returns the UTC start of the period that contains now.
func (p Period) Start(now time.Time) time.Time {
	now = now.UTC()
	switch p {
	case PeriodDaily:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case PeriodDaily:
		return PeriodDaily, nil
	case PeriodMonthly:
		return PeriodMonthly, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Plan is the static definition of a tier.
type Plan struct {
	Tier          string  `json:"tier"`
	RequestsLimit int64   `json:"requests_limit"`
	Period        Period  `json:"period"`
	MaxTextChars  int     `json:"max_text_chars"`
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`
}

// Rank orders tiers by request allowance; higher pays more.
func (p Plan) Rank() int64 {
	return p.RequestsLimit
}

// PlansFromConfig validates and converts the configured tiers.
func PlansFromConfig(tiers map[string]config.TierConfig) (map[string]Plan, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("no tiers configured")
	}
	plans := make(map[string]Plan, len(tiers))
	for name, t := range tiers {
		period, err := ParsePeriod(t.Period)
		if err != nil {
			return nil, fmt.Errorf("tier %s: %w", name, err)
		}
		if t.RequestsLimit <= 0 {
			return nil, fmt.Errorf("tier %s: requests_limit must be positive", name)
		}
		if t.MaxTextChars <= 0 {
			return nil, fmt.Errorf("tier %s: max_text_chars must be positive", name)
		}
		burst := t.Burst
		if burst <= 0 {
			burst = 1
		}
		plans[name] = Plan{
			Tier:          name,
			RequestsLimit: t.RequestsLimit,
			Period:        period,
			MaxTextChars:  t.MaxTextChars,
			RatePerSecond: t.RatePerSecond,
			Burst:         burst,
		}
	}
	return plans, nil
}

// SortedPlans returns plans from the smallest allowance to the largest.
func SortedPlans(plans map[string]Plan) []Plan {
	out := make([]Plan, 0, len(plans))
	for _, p := range plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestsLimit == out[j].RequestsLimit {
			return out[i].Tier < out[j].Tier
		}
		return out[i].RequestsLimit < out[j].RequestsLimit
	})
	return out
}
