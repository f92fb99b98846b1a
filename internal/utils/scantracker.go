package utils

import (
	"sort"
	"sync"
	"time"
)

type scanSample struct {
	elapsed time.Duration
	photons int
}

// ScanTracker keeps the most recent search samples, each a duration and
// the number of photons scanned, and derives latency percentiles and
// throughput from them.
type ScanTracker struct {
	mu      sync.RWMutex
	samples []scanSample
	next    int
	full    bool
}

// NewScanTracker creates a tracker storing up to maxSize samples.
func NewScanTracker(maxSize int) *ScanTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &ScanTracker{samples: make([]scanSample, maxSize)}
}

// Observe records one search. The oldest sample is overwritten once the
// tracker is full.
func (s *ScanTracker) Observe(elapsed time.Duration, photons int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples[s.next] = scanSample{elapsed: elapsed, photons: photons}
	s.next++
	if s.next == len(s.samples) {
		s.next = 0
		s.full = true
	}
}

// Count returns number of samples recorded.
func (s *ScanTracker) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count()
}

func (s *ScanTracker) count() int {
	if s.full {
		return len(s.samples)
	}
	return s.next
}

// Percentile returns the percentile (0-100) search duration. Returns zero
// if no samples.
func (s *ScanTracker) Percentile(p float64) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.count()
	if n == 0 {
		return 0
	}
	sorted := make([]time.Duration, n)
	for i := 0; i < n; i++ {
		sorted[i] = s.samples[i].elapsed
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}
	return sorted[int((p/100.0)*float64(n-1))]
}

// PhotonsPerSecond is the aggregate scan throughput over the stored samples.
func (s *ScanTracker) PhotonsPerSecond() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var elapsed time.Duration
	photons := 0
	for i := 0; i < s.count(); i++ {
		elapsed += s.samples[i].elapsed
		photons += s.samples[i].photons
	}
	if elapsed <= 0 {
		return 0
	}
	return float64(photons) / elapsed.Seconds()
}
