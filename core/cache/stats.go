package cache

import (
	"sync/atomic"
	"time"
)

// Stats tracks tree cache activity. Builds counts node-list constructions,
// which is the observable hook for verifying that repeated kernel calls over
// the same inputs do not re-parse their trees.
type Stats struct {
	hits      atomic.Int64
	misses    atomic.Int64
	builds    atomic.Int64
	startTime time.Time
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{
		startTime: time.Now(),
	}
}

// RecordHit records a cache hit.
func (s *Stats) RecordHit() {
	s.hits.Add(1)
}

// RecordMiss records a cache miss.
func (s *Stats) RecordMiss() {
	s.misses.Add(1)
}

// RecordBuild records one node-list construction.
func (s *Stats) RecordBuild() {
	s.builds.Add(1)
}

// Hits returns the total number of cache hits.
func (s *Stats) Hits() int64 {
	return s.hits.Load()
}

// Misses returns the total number of cache misses.
func (s *Stats) Misses() int64 {
	return s.misses.Load()
}

// Builds returns the total number of node-list constructions.
func (s *Stats) Builds() int64 {
	return s.builds.Load()
}

// Total returns the total number of lookups (hits + misses).
func (s *Stats) Total() int64 {
	return s.Hits() + s.Misses()
}

// HitRate returns the cache hit rate as a value between 0 and 1.
func (s *Stats) HitRate() float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return float64(s.Hits()) / float64(total)
}

// Uptime returns the duration since the cache was created.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Snapshot returns a non-atomic copy of the current statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Hits:    s.Hits(),
		Misses:  s.Misses(),
		Builds:  s.Builds(),
		Total:   s.Total(),
		HitRate: s.HitRate(),
		Uptime:  s.Uptime(),
	}
}

// StatsSnapshot is a point-in-time view of cache statistics.
type StatsSnapshot struct {
	Hits    int64         `json:"hits"`
	Misses  int64         `json:"misses"`
	Builds  int64         `json:"builds"`
	Total   int64         `json:"total"`
	HitRate float64       `json:"hit_rate"`
	Uptime  time.Duration `json:"uptime"`
}
