package engine

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"examwatch/internal/alerts"
	"examwatch/internal/store"
	"examwatch/pkg/models"
)

type recordingSink struct {
	events []*models.AlertEvent
}

func (r *recordingSink) Publish(event *models.AlertEvent) error {
	r.events = append(r.events, event)
	return nil
}

type testHarness struct {
	engine *Engine
	store  *store.Store
	sink   *recordingSink
	now    time.Time
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	scorer, err := NewWeightedScorer(ScorerConfig{})
	if err != nil {
		t.Fatalf("failed to build scorer: %v", err)
	}

	h := &testHarness{
		sink: &recordingSink{},
		now:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	h.store = store.New(scorer)
	h.store.SetClock(func() time.Time { return h.now })
	dispatcher := alerts.NewDispatcher(h.sink, alerts.Config{EmitInformational: true})
	dispatcher.SetClock(func() time.Time { return h.now })
	h.engine = New(h.store, dispatcher)
	return h
}

func (h *testHarness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func TestEndToEndEscalationScenario(t *testing.T) {
	h := newHarness(t)

	snap, alert, err := h.engine.Ingest(&models.SignalEnvelope{
		SessionID:    "S1",
		DetectorKind: models.KindVM,
		ObservedAt:   h.now,
		RawScore:     90,
		Detected:     true,
		Evidence:     []string{"VMware hypervisor signature"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.FusedScore != 23 {
		t.Fatalf("expected fused score 23 after VM signal, got %d", snap.FusedScore)
	}
	if snap.RiskLevel != models.LevelLow {
		t.Fatalf("expected LOW after VM signal, got %s", snap.RiskLevel)
	}
	if alert != nil {
		t.Fatalf("expected no alert while still LOW, got %+v", alert)
	}

	h.advance(1 * time.Second)
	snap, alert, err = h.engine.Ingest(&models.SignalEnvelope{
		SessionID:    "S1",
		DetectorKind: models.KindRemoteAccess,
		ObservedAt:   h.now,
		RawScore:     80,
		Detected:     true,
		Evidence:     []string{"AnyDesk process detected"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.FusedScore < 85 {
		t.Fatalf("expected escalation to force score >= 85, got %d", snap.FusedScore)
	}
	if snap.RiskLevel != models.LevelCritical {
		t.Fatalf("expected CRITICAL, got %s", snap.RiskLevel)
	}
	if alert == nil {
		t.Fatalf("expected a LOW -> CRITICAL alert")
	}
	if alert.PreviousLevel != models.LevelLow || alert.NewLevel != models.LevelCritical {
		t.Fatalf("unexpected transition: %s -> %s", alert.PreviousLevel, alert.NewLevel)
	}
	if len(h.sink.events) != 1 {
		t.Fatalf("expected exactly one published alert, got %d", len(h.sink.events))
	}
}

func TestDuplicateEnvelopeIsIdempotent(t *testing.T) {
	h := newHarness(t)

	env := &models.SignalEnvelope{
		SessionID:    "S1",
		DetectorKind: models.KindRemoteAccess,
		ObservedAt:   h.now,
		RawScore:     100,
		Detected:     true,
		Evidence:     []string{"TeamViewer service running"},
	}

	first, alert1, err := h.engine.Ingest(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert1 == nil {
		t.Fatalf("expected LOW -> MEDIUM alert on first apply")
	}

	second, alert2, err := h.engine.Ingest(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert2 != nil {
		t.Fatalf("duplicate delivery must not produce a second alert")
	}
	if first.FusedScore != second.FusedScore {
		t.Fatalf("duplicate delivery changed the score: %d vs %d", first.FusedScore, second.FusedScore)
	}
	if !reflect.DeepEqual(first.ActiveTriggers, second.ActiveTriggers) {
		t.Fatalf("duplicate delivery changed triggers: %v vs %v", first.ActiveTriggers, second.ActiveTriggers)
	}
}

func TestInvalidEnvelopesAreRejectedWithoutMutation(t *testing.T) {
	h := newHarness(t)

	cases := []*models.SignalEnvelope{
		{SessionID: "", DetectorKind: models.KindVM, ObservedAt: h.now, RawScore: 50},
		{SessionID: "S1", DetectorKind: "KEYLOGGER", ObservedAt: h.now, RawScore: 50},
		{SessionID: "S1", DetectorKind: models.KindVM, ObservedAt: h.now, RawScore: 101},
		{SessionID: "S1", DetectorKind: models.KindVM, ObservedAt: h.now, RawScore: -1},
	}

	for _, env := range cases {
		_, alert, err := h.engine.Ingest(env)
		var invalid *models.InvalidSignalError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidSignalError for %+v, got %v", env, err)
		}
		if alert != nil {
			t.Fatalf("rejected envelope must not alert")
		}
	}
	if h.store.Len() != 0 {
		t.Fatalf("rejected envelopes must not create sessions, store has %d", h.store.Len())
	}
}

func TestDecayDowngradeEmitsInformationalAlert(t *testing.T) {
	h := newHarness(t)

	h.engine.Ingest(&models.SignalEnvelope{
		SessionID:    "S1",
		DetectorKind: models.KindRemoteAccess,
		ObservedAt:   h.now,
		RawScore:     100,
		Detected:     true,
	})

	// One decay window later the remote-access slot contributes nothing; a
	// weak network signal re-triggers recomputation at the decayed state.
	h.advance(2 * time.Minute)
	_, alert, err := h.engine.Ingest(&models.SignalEnvelope{
		SessionID:    "S1",
		DetectorKind: models.KindNetwork,
		ObservedAt:   h.now,
		RawScore:     10,
		Detected:     false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert == nil {
		t.Fatalf("expected a de-escalation alert after decay")
	}
	if !alert.Informational {
		t.Fatalf("de-escalation alert must be informational")
	}
	if alert.NewLevel != models.LevelLow {
		t.Fatalf("expected downgrade to LOW, got %s", alert.NewLevel)
	}
}

func TestEvictionThenLateEnvelopeRecreates(t *testing.T) {
	h := newHarness(t)

	h.engine.Ingest(&models.SignalEnvelope{
		SessionID:    "S1",
		DetectorKind: models.KindVM,
		ObservedAt:   h.now,
		RawScore:     90,
		Detected:     true,
	})

	h.advance(10 * time.Minute)
	evicted := h.engine.EvictIdle(5 * time.Minute)
	if len(evicted) != 1 || evicted[0].SessionID != "S1" {
		t.Fatalf("expected S1 to be evicted, got %+v", evicted)
	}
	if evicted[0].Status != models.StatusResolved {
		t.Fatalf("expected evicted session to report RESOLVED, got %s", evicted[0].Status)
	}

	snap, _, err := h.engine.Ingest(&models.SignalEnvelope{
		SessionID:    "S1",
		DetectorKind: models.KindBehavior,
		ObservedAt:   h.now,
		RawScore:     20,
		Detected:     false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Status != models.StatusOpen {
		t.Fatalf("expected recreated session to be OPEN, got %s", snap.Status)
	}
	if snap.FusedScore != 3 {
		t.Fatalf("expected recreated session to score only the new envelope, got %d", snap.FusedScore)
	}
}
