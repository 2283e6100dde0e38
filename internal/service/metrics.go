package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procura",
		Subsystem: "sessions",
		Name:      "operations_total",
		Help:      "Order list operations broken down by operation and result.",
	}, []string{"op", "result"})

	submitLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "procura",
		Subsystem: "sessions",
		Name:      "submit_latency_seconds",
		Help:      "Latency of persisting a procurement request to the document store.",
		Buckets: []float64{
			0.01, 0.02, 0.05,
			0.1, 0.2, 0.5,
			1, 2, 5, 10,
		},
	}, []string{"mode"})

	openSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "procura",
		Subsystem: "sessions",
		Name:      "open",
		Help:      "Editing sessions currently held in memory.",
	})
)

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	sessionOperations.WithLabelValues(op, result).Inc()
}
