package match

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizarena",
		Subsystem: "match",
		Name:      "active_engines",
		Help:      "Number of match engines currently running.",
	})

	answersAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quizarena",
		Subsystem: "match",
		Name:      "answers_accepted_total",
		Help:      "Answers accepted and persisted across all matches.",
	})

	settlementRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quizarena",
		Subsystem: "match",
		Name:      "settlement_retries_total",
		Help:      "Settlement transaction retries across all matches.",
	})
)
