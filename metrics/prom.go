package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClipsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipstash_clips_created_total",
		Help: "no. of clips created",
	})
	ClipsRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipstash_clips_read_total",
		Help: "no. of successful content reads",
	})
	ClipsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipstash_clips_rejected_total",
			Help: "no. of reads answered with not found, by reason",
		},
		[]string{"reason"},
	)
	ClipsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipstash_clips_deleted_total",
			Help: "no. of clips deleted, by trigger",
		},
		[]string{"reason"},
	)
	FastTierHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipstash_fast_tier_hits_total",
		Help: "no. of lookups served by the fast tier",
	})
	FastTierMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipstash_fast_tier_misses_total",
		Help: "no. of lookups that missed the fast tier",
	})
	DurableRestores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipstash_durable_restores_total",
		Help: "no. of clips restored from the durable tier into the fast tier",
	})
	DurableErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipstash_durable_errors_total",
			Help: "no. of swallowed durable tier errors, by operation",
		},
		[]string{"op"},
	)
	DurableConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clipstash_durable_connected",
		Help: "1 when the durable tier is reachable",
	})
	SweepCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipstash_sweep_cycles_total",
		Help: "no. of expiry sweeper cycles",
	})
	ClipsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipstash_clips_swept_total",
		Help: "no. of expired clips removed by the sweeper",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipstash_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipstash_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"endpoint"},
	)
	LogEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipstash_log_events_total",
			Help: "no. of warn and error log lines",
		},
		[]string{"level"},
	)
)
