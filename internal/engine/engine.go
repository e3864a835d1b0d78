// Package engine fuses per-session detector signals into a single
// explainable risk score and drives alerting on level transitions.
package engine

import (
	"time"

	"examwatch/internal/alerts"
	"examwatch/internal/metrics"
	"examwatch/internal/store"
	"examwatch/pkg/models"
)

// Engine is the ingestion coordinator: the single entry point through which
// telemetry reaches the session store and the alert dispatcher.
type Engine struct {
	store      *store.Store
	dispatcher *alerts.Dispatcher
}

// New wires a coordinator over the given store and dispatcher.
func New(st *store.Store, dispatcher *alerts.Dispatcher) *Engine {
	return &Engine{store: st, dispatcher: dispatcher}
}

// Store exposes the live session store for read-side collaborators.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Ingest validates the envelope, applies it to its session, and evaluates the
// resulting level transition. Validation failure leaves all session state
// untouched. Safe for concurrent use; envelopes for the same session never
// interleave their effects, and an error on one session can never affect
// another.
func (e *Engine) Ingest(env *models.SignalEnvelope) (models.SessionSnapshot, *models.AlertEvent, error) {
	if err := env.Validate(); err != nil {
		metrics.InvalidSignals.Inc()
		return models.SessionSnapshot{}, nil, err
	}

	res := e.store.Apply(env)
	if res.Created {
		metrics.LiveSessions.Set(float64(e.store.Len()))
	}
	metrics.EnvelopesIngested.WithLabelValues(string(env.DetectorKind)).Inc()
	metrics.FusedScores.Observe(float64(res.Snapshot.FusedScore))

	event := e.dispatcher.Evaluate(res)
	if event != nil {
		metrics.AlertsEmitted.WithLabelValues(string(event.NewLevel)).Inc()
	}

	return res.Snapshot, event, nil
}

// EvictIdle delegates to the store and keeps the session gauge current.
func (e *Engine) EvictIdle(idleThreshold time.Duration) []models.SessionSnapshot {
	evicted := e.store.EvictIdle(idleThreshold)
	if len(evicted) > 0 {
		metrics.SessionsEvicted.Add(float64(len(evicted)))
		metrics.LiveSessions.Set(float64(e.store.Len()))
	}
	return evicted
}
