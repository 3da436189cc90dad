package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oracle_verifier",
		Name:      "api_requests_total",
		Help:      "API requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	replayFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oracle_verifier",
		Name:      "replay_failures_total",
		Help:      "Replay verification failures by machine-readable code.",
	}, []string{"code"})

	promotionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oracle_verifier",
		Name:      "promotions_total",
		Help:      "Bundles promoted to the historical store.",
	})
)
