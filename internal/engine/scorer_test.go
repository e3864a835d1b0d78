package engine

import (
	"testing"
	"time"

	"examwatch/pkg/models"
)

func newTestScorer(t *testing.T) *WeightedScorer {
	t.Helper()
	s, err := NewWeightedScorer(ScorerConfig{})
	if err != nil {
		t.Fatalf("failed to build scorer: %v", err)
	}
	return s
}

func slot(kind models.DetectorKind, raw float64, detected bool, observed time.Time, evidence ...string) *models.SignalEnvelope {
	return &models.SignalEnvelope{
		SessionID:    "s1",
		DetectorKind: kind,
		ObservedAt:   observed,
		RawScore:     raw,
		Detected:     detected,
		Evidence:     evidence,
	}
}

func TestWeightsMustSumToOne(t *testing.T) {
	bad := Weights{
		models.KindVM:           0.5,
		models.KindRemoteAccess: 0.5,
		models.KindScreenShare:  0.5,
		models.KindBehavior:     0.15,
		models.KindNetwork:      0.15,
	}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected validation error for weights summing to %v", 1.8)
	}

	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("default weights should validate, got %v", err)
	}
}

func TestWeightsMissingKindRejected(t *testing.T) {
	bad := DefaultWeights()
	delete(bad, models.KindNetwork)
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected validation error for missing kind")
	}
}

func TestThresholdsMustBeStrictlyDecreasing(t *testing.T) {
	cases := []Thresholds{
		{Critical: 50, High: 50, Medium: 25},
		{Critical: 75, High: 25, Medium: 50},
		{Critical: 75, High: 50, Medium: 0},
		{Critical: 101, High: 50, Medium: 25},
	}
	for _, c := range cases {
		if err := c.Validate(); err == nil {
			t.Fatalf("expected validation error for thresholds %+v", c)
		}
	}
}

func TestLevelBoundariesAreInclusiveLower(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		score int
		want  models.RiskLevel
	}{
		{0, models.LevelLow},
		{24, models.LevelLow},
		{25, models.LevelMedium},
		{49, models.LevelMedium},
		{50, models.LevelHigh},
		{74, models.LevelHigh},
		{75, models.LevelCritical},
		{100, models.LevelCritical},
	}
	for _, c := range cases {
		if got := th.Level(c.score); got != c.want {
			t.Fatalf("score %d: expected %s, got %s", c.score, c.want, got)
		}
	}
}

func TestSingleFreshSlotUsesKindWeight(t *testing.T) {
	s := newTestScorer(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	slots := map[models.DetectorKind]*models.SignalEnvelope{
		models.KindVM: slot(models.KindVM, 90, true, now),
	}
	score, level := s.Score(slots, now)
	if score != 23 {
		t.Fatalf("expected fused score 23 (0.25*90 rounded), got %d", score)
	}
	if level != models.LevelLow {
		t.Fatalf("expected LOW, got %s", level)
	}
}

func TestAbsentSlotsContributeNothing(t *testing.T) {
	s := newTestScorer(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	score, level := s.Score(map[models.DetectorKind]*models.SignalEnvelope{}, now)
	if score != 0 || level != models.LevelLow {
		t.Fatalf("expected empty slots to score 0/LOW, got %d/%s", score, level)
	}
}

func TestDecayIsMonotonicAndReachesZero(t *testing.T) {
	s := newTestScorer(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	fresh := slot(models.KindNetwork, 80, true, now)
	prev := s.effectiveScore(fresh, now)
	for _, age := range []time.Duration{10 * time.Second, 60 * time.Second, 119 * time.Second} {
		env := slot(models.KindNetwork, 80, true, now.Add(-age))
		eff := s.effectiveScore(env, now)
		if eff > prev {
			t.Fatalf("effective score rose with age %s: %v > %v", age, eff, prev)
		}
		prev = eff
	}

	expired := slot(models.KindNetwork, 80, true, now.Add(-120*time.Second))
	if eff := s.effectiveScore(expired, now); eff != 0 {
		t.Fatalf("expected zero contribution at decay window age, got %v", eff)
	}
	staler := slot(models.KindNetwork, 80, true, now.Add(-10*time.Minute))
	if eff := s.effectiveScore(staler, now); eff != 0 {
		t.Fatalf("expected zero contribution beyond decay window, got %v", eff)
	}
}

func TestFutureObservationDoesNotExceedRawScore(t *testing.T) {
	s := newTestScorer(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	env := slot(models.KindVM, 80, true, now.Add(2*time.Second))
	if eff := s.effectiveScore(env, now); eff != 80 {
		t.Fatalf("expected clock-skewed envelope to contribute its raw score, got %v", eff)
	}
}

func TestEscalationOverrideForcesFloor(t *testing.T) {
	s := newTestScorer(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	slots := map[models.DetectorKind]*models.SignalEnvelope{
		models.KindVM:           slot(models.KindVM, 70, true, now),
		models.KindRemoteAccess: slot(models.KindRemoteAccess, 65, true, now),
	}
	score, level := s.Score(slots, now)
	if score < 85 {
		t.Fatalf("expected escalation to force score >= 85, got %d", score)
	}
	if level != models.LevelCritical {
		t.Fatalf("expected CRITICAL, got %s", level)
	}
}

func TestNoEscalationWithSingleDetectedKind(t *testing.T) {
	s := newTestScorer(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	slots := map[models.DetectorKind]*models.SignalEnvelope{
		models.KindRemoteAccess: slot(models.KindRemoteAccess, 95, true, now),
	}
	score, _ := s.Score(slots, now)
	if score != 29 {
		t.Fatalf("expected plain weighted score 29, got %d", score)
	}
}

func TestNoEscalationWhenCorroborationIsStale(t *testing.T) {
	s := newTestScorer(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// VM signal has decayed past 80% of its original weight.
	slots := map[models.DetectorKind]*models.SignalEnvelope{
		models.KindVM:           slot(models.KindVM, 70, true, now.Add(-30*time.Second)),
		models.KindRemoteAccess: slot(models.KindRemoteAccess, 65, true, now),
	}
	score, _ := s.Score(slots, now)
	if score >= 85 {
		t.Fatalf("expected no escalation with stale corroboration, got %d", score)
	}
}

func TestNoEscalationBelowRawScoreBar(t *testing.T) {
	s := newTestScorer(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	slots := map[models.DetectorKind]*models.SignalEnvelope{
		models.KindVM:           slot(models.KindVM, 59, true, now),
		models.KindRemoteAccess: slot(models.KindRemoteAccess, 65, true, now),
	}
	score, _ := s.Score(slots, now)
	if score >= 85 {
		t.Fatalf("expected no escalation when one raw score is below 60, got %d", score)
	}
}

func TestScoreStaysWithinRange(t *testing.T) {
	s := newTestScorer(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	slots := make(map[models.DetectorKind]*models.SignalEnvelope)
	for _, kind := range models.Kinds {
		slots[kind] = slot(kind, 100, true, now)
	}
	score, level := s.Score(slots, now)
	if score < 0 || score > 100 {
		t.Fatalf("fused score out of range: %d", score)
	}
	if score != 100 {
		t.Fatalf("expected saturated slots to score 100, got %d", score)
	}
	if level != models.LevelCritical {
		t.Fatalf("expected CRITICAL, got %s", level)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	s := newTestScorer(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	slots := map[models.DetectorKind]*models.SignalEnvelope{
		models.KindVM:      slot(models.KindVM, 42, true, now.Add(-13*time.Second)),
		models.KindNetwork: slot(models.KindNetwork, 77, true, now.Add(-47*time.Second)),
	}
	s1, l1 := s.Score(slots, now)
	s2, l2 := s.Score(slots, now)
	if s1 != s2 || l1 != l2 {
		t.Fatalf("scorer is not deterministic: %d/%s vs %d/%s", s1, l1, s2, l2)
	}
}
