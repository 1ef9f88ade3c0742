package qos

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	latencyMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qos_latency_ms",
		Help:    "Per-utterance end-to-end pipeline latency in milliseconds",
		Buckets: []float64{100, 250, 500, 800, 1200, 1800, 2400, 3600, 6000},
	})

	degradationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qos_degradation_total",
		Help: "Utterances classified at each degradation level",
	}, []string{"level"})

	fallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qos_fallback_total",
		Help: "Utterances that triggered a subtitle-only fallback",
	})
)

func record(m Metrics) {
	latencyMS.Observe(m.TotalLatencyMS)
	degradationTotal.WithLabelValues(string(m.DegradationLevel)).Inc()
	if m.ShouldFallbackToSubtitle {
		fallbackTotal.Inc()
	}
}
