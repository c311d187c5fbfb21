package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_prospects_total",
			Help: "Prospects processed by the dispatch worker, by outcome",
		},
		[]string{"outcome"},
	)

	dispatchTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_ticks_total",
			Help: "Dispatch ticks, by result",
		},
		[]string{"result"},
	)

	dispatchTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_tick_duration_seconds",
			Help:    "Duration of dispatch ticks in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 150, 300, 600},
		},
	)
)

func recordSummary(s TickSummary) {
	dispatchOutcomes.WithLabelValues("sent").Add(float64(s.Sent))
	dispatchOutcomes.WithLabelValues("retrying").Add(float64(s.Retrying))
	dispatchOutcomes.WithLabelValues("failed").Add(float64(s.Failed))
	dispatchOutcomes.WithLabelValues("skipped").Add(float64(s.Skipped))
}
