package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Service metrics, registered once with the default registry and exposed
// through the /metrics handler wired up in cmd/server.
var (
	fitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scatr_fits_total",
		Help: "Number of model fits attempted, by kernel and outcome.",
	}, []string{"kernel", "status"})

	evaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scatr_evaluations_total",
		Help: "Number of query points evaluated across all models.",
	})

	fitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scatr_fit_duration_seconds",
		Help:    "Wall-clock time spent fitting interpolation models.",
		Buckets: prometheus.DefBuckets,
	})
)
