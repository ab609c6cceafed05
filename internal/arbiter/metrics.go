package arbiter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var arbitrateCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nickguard_ai_arbitrations",
	Help: "AI arbitration calls, by outcome",
}, []string{"outcome"})

var arbitrateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "nickguard_ai_arbitration_duration_seconds",
	Help:    "Duration of AI provider calls",
	Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
})

var cacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "nickguard_ai_cache_hits",
	Help: "AI decisions served from cache",
})
