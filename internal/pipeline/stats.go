package pipeline

import (
	"slices"
	"sync"
	"time"
)

type groupSample struct {
	at         time.Time
	durationMs int64
	pairs      int
}

// StatsSnapshot aggregates the document-pair groups finished within the
// stats window.
type StatsSnapshot struct {
	Groups      int     `json:"groups"`
	Pairs       int     `json:"pairs"`
	PairsPerSec float64 `json:"pairs_per_sec"`
	MinMs       int64   `json:"min_ms"`
	MaxMs       int64   `json:"max_ms"`
	AvgMs       float64 `json:"avg_ms"`
	P50Ms       float64 `json:"p50_ms"`
	P95Ms       float64 `json:"p95_ms"`
	P99Ms       float64 `json:"p99_ms"`
}

// PairStats keeps per-group processing times over a rolling window. It is
// shared by every job of the service.
type PairStats struct {
	mu      sync.Mutex
	samples []groupSample
	maxAge  time.Duration
}

func NewPairStats(maxAge time.Duration) *PairStats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &PairStats{
		samples: make([]groupSample, 0, 256),
		maxAge:  maxAge,
	}
}

// Record adds one finished group that took d and produced pairs records.
func (s *PairStats) Record(d time.Duration, pairs int) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.samples = append(s.samples, groupSample{at: now, durationMs: ms, pairs: pairs})
}

func (s *PairStats) Snapshot() StatsSnapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	if len(s.samples) == 0 {
		return StatsSnapshot{}
	}

	values := make([]int64, 0, len(s.samples))
	var sum int64
	pairs := 0
	for _, sm := range s.samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
		pairs += sm.pairs
	}
	slices.Sort(values)

	snap := StatsSnapshot{
		Groups: len(values),
		Pairs:  pairs,
		MinMs:  values[0],
		MaxMs:  values[len(values)-1],
		AvgMs:  float64(sum) / float64(len(values)),
		P50Ms:  percentile(values, 50),
		P95Ms:  percentile(values, 95),
		P99Ms:  percentile(values, 99),
	}
	if sum > 0 {
		snap.PairsPerSec = float64(pairs) * 1000 / float64(sum)
	}
	return snap
}

func (s *PairStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	kept := s.samples[:0]
	for _, sm := range s.samples {
		if !sm.at.Before(cutoff) {
			kept = append(kept, sm)
		}
	}
	s.samples = kept
}

// percentile interpolates linearly between the closest ranks.
func percentile(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}

	index := float64(len(sorted)-1) * pct / 100
	lower := int(index)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	weight := index - float64(lower)
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*weight
}
