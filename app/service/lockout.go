package service

import (
	"sort"
	"time"
)

// LockoutTier maps a cumulative failed-attempt threshold to the lock
// duration applied once that threshold is reached.
type LockoutTier struct {
	Attempts int
	Duration time.Duration
}

// LockoutPolicy is a pure lookup table; it never mutates anything. The
// caller increments the counter first and persists whatever lock results.
type LockoutPolicy struct {
	tiers []LockoutTier
}

func NewLockoutPolicy(tiers []LockoutTier) *LockoutPolicy {
	sorted := make([]LockoutTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Attempts > sorted[j].Attempts
	})
	return &LockoutPolicy{tiers: sorted}
}

func DefaultLockoutTiers() []LockoutTier {
	return []LockoutTier{
		{Attempts: 5, Duration: 15 * time.Minute},
		{Attempts: 10, Duration: 30 * time.Minute},
		{Attempts: 15, Duration: 60 * time.Minute},
	}
}

// Duration returns the lock duration for the highest threshold met by
// failedAttempts, or false when no tier is met.
func (p *LockoutPolicy) Duration(failedAttempts int) (time.Duration, bool) {
	for _, tier := range p.tiers {
		if failedAttempts >= tier.Attempts {
			return tier.Duration, true
		}
	}
	return 0, false
}
