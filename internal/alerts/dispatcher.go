// Package alerts turns risk-level transitions into alert events.
package alerts

import (
	"time"

	"examwatch/internal/logger"
	"examwatch/internal/store"
	"examwatch/pkg/models"
)

// Sink receives alert events. The notification collaborator (dashboard push
// channel, log sink) sits behind this single method.
type Sink interface {
	Publish(event *models.AlertEvent) error
}

// Config controls dispatch policy.
type Config struct {
	// EmitInformational controls whether de-escalation transitions are
	// published at all. They are always tagged informational when emitted.
	EmitInformational bool
}

// Dispatcher emits exactly one alert per risk-level transition and none on a
// same-level re-application.
type Dispatcher struct {
	sink Sink
	cfg  Config
	now  func() time.Time
}

// NewDispatcher creates a dispatcher publishing to sink. A nil sink drops
// events after constructing them.
func NewDispatcher(sink Sink, cfg Config) *Dispatcher {
	return &Dispatcher{sink: sink, cfg: cfg, now: time.Now}
}

// SetClock overrides the dispatcher's clock. Intended for tests.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Evaluate inspects one apply result and publishes an alert if the risk level
// changed. It returns the emitted event, or nil when no transition occurred
// or the transition was suppressed by policy.
func (d *Dispatcher) Evaluate(res store.ApplyResult) *models.AlertEvent {
	snap := res.Snapshot
	if snap.RiskLevel == res.PreviousLevel {
		return nil
	}

	informational := res.PreviousLevel.Above(snap.RiskLevel)
	if informational && !d.cfg.EmitInformational {
		return nil
	}

	event := &models.AlertEvent{
		SessionID:      snap.SessionID,
		PreviousLevel:  res.PreviousLevel,
		NewLevel:       snap.RiskLevel,
		FusedScore:     snap.FusedScore,
		ActiveTriggers: snap.ActiveTriggers,
		Actions:        snap.Actions,
		Informational:  informational,
		At:             d.now(),
	}

	if d.sink != nil {
		if err := d.sink.Publish(event); err != nil {
			logger.Errorf("Failed to publish alert for session %s: %v", snap.SessionID, err)
		}
	}
	return event
}
