// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EnvelopesIngested counts accepted signal envelopes by detector kind.
	EnvelopesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "examwatch",
		Name:      "envelopes_ingested_total",
		Help:      "Signal envelopes accepted by the fusion engine.",
	}, []string{"detector_kind"})

	// InvalidSignals counts envelopes rejected by validation.
	InvalidSignals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "examwatch",
		Name:      "invalid_signals_total",
		Help:      "Malformed signal envelopes rejected before application.",
	})

	// AlertsEmitted counts alert events by new risk level.
	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "examwatch",
		Name:      "alerts_emitted_total",
		Help:      "Risk-level transition alerts emitted.",
	}, []string{"new_level"})

	// LiveSessions tracks the number of sessions in the live store.
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "examwatch",
		Name:      "live_sessions",
		Help:      "Sessions currently held in the live store.",
	})

	// SessionsEvicted counts idle-evicted sessions.
	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "examwatch",
		Name:      "sessions_evicted_total",
		Help:      "Sessions resolved and removed by the idle eviction scan.",
	})

	// FusedScores observes fused scores as they are recomputed.
	FusedScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "examwatch",
		Name:      "fused_score",
		Help:      "Distribution of fused risk scores after each apply.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})
)
