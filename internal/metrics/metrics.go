package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels searches that returned bursts.
	OutcomeSuccess = "success"
	// OutcomeError labels searches rejected or failed (bad input, cancellation).
	OutcomeError = "error"
	// OutcomeCached labels searches answered from the result cache.
	OutcomeCached = "cached"

	// StageSearch labels bursts produced by the sliding-window search.
	StageSearch = "search"
	// StageFused labels bursts left after fusion.
	StageFused = "fused"
)

var (
	searchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "burst_engine",
			Name:      "searches_total",
			Help:      "Total number of burst searches handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	searchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "burst_engine",
			Name:      "search_seconds",
			Help:      "Burst search latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	photonsScannedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "burst_engine",
			Name:      "photons_scanned_total",
			Help:      "Photons visited by the sliding-window scan.",
		},
	)

	burstsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "burst_engine",
			Name:      "bursts_total",
			Help:      "Bursts emitted, partitioned by processing stage.",
		},
		[]string{"stage"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "burst_engine",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups, partitioned by hit or miss.",
		},
		[]string{"result"},
	)
)

// Register attaches burst-engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		searchesTotal,
		searchDurationSeconds,
		photonsScannedTotal,
		burstsTotal,
		cacheLookupsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveSearch records a search duration and outcome label.
func ObserveSearch(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError && label != OutcomeCached {
		label = OutcomeSuccess
	}
	searchesTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	searchDurationSeconds.Observe(duration.Seconds())
}

// AddPhotonsScanned counts photons visited by one channel scan.
func AddPhotonsScanned(n int) {
	if n > 0 {
		photonsScannedTotal.Add(float64(n))
	}
}

// AddBursts counts bursts produced at a stage.
func AddBursts(stage string, n int) {
	if stage != StageFused {
		stage = StageSearch
	}
	burstsTotal.WithLabelValues(stage).Add(float64(n))
}

// ObserveCacheLookup records a result cache hit or miss.
func ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}
