package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apikey_verifications_total",
		Help: "Key verifications by outcome.",
	}, []string{"result", "reason"})

	verificationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "apikey_verification_duration_seconds",
		Help:    "Time spent in the verification pipeline.",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)
