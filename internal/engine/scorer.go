package engine

import (
	"fmt"
	"math"
	"time"

	"examwatch/pkg/models"
)

// Escalation override parameters. Corroborating independent detections must
// not be diluted by weighted averaging.
const (
	escalationMinKinds  = 2
	escalationRawScore  = 60.0
	escalationFreshness = 0.8
	escalationFloor     = 85
)

// Weights maps each detector kind to its share of the fused score.
type Weights map[models.DetectorKind]float64

// DefaultWeights returns the base weight set. Remote-control tooling is the
// strongest direct-cheating signal and carries the highest weight.
func DefaultWeights() Weights {
	return Weights{
		models.KindVM:           0.25,
		models.KindRemoteAccess: 0.30,
		models.KindScreenShare:  0.15,
		models.KindBehavior:     0.15,
		models.KindNetwork:      0.15,
	}
}

// Validate checks that every kind has a weight in [0,1] and that the weights
// sum to 1.0.
func (w Weights) Validate() error {
	sum := 0.0
	for _, kind := range models.Kinds {
		v, ok := w[kind]
		if !ok {
			return fmt.Errorf("missing weight for detector kind %s", kind)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("weight for %s is %v, want [0,1]", kind, v)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("weights sum to %v, want 1.0", sum)
	}
	return nil
}

// Thresholds are the inclusive lower score bounds for each risk tier.
type Thresholds struct {
	Critical int
	High     int
	Medium   int
}

// DefaultThresholds returns the fixed tier boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Critical: 75, High: 50, Medium: 25}
}

// Validate checks that the boundaries are strictly decreasing and positive.
func (t Thresholds) Validate() error {
	if !(t.Critical > t.High && t.High > t.Medium && t.Medium > 0) {
		return fmt.Errorf("thresholds must satisfy critical > high > medium > 0, got %d/%d/%d",
			t.Critical, t.High, t.Medium)
	}
	if t.Critical > 100 {
		return fmt.Errorf("critical threshold %d exceeds maximum score 100", t.Critical)
	}
	return nil
}

// Level classifies a fused score.
func (t Thresholds) Level(score int) models.RiskLevel {
	switch {
	case score >= t.Critical:
		return models.LevelCritical
	case score >= t.High:
		return models.LevelHigh
	case score >= t.Medium:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

// Scorer derives a fused score, risk level, and active trigger list from a
// session's per-kind signal slots. Implementations must be deterministic and
// side-effect-free given the same slots and evaluation instant, so that a
// model-based scorer can substitute behind the same contract.
type Scorer interface {
	Score(slots map[models.DetectorKind]*models.SignalEnvelope, now time.Time) (int, models.RiskLevel)
	Triggers(slots map[models.DetectorKind]*models.SignalEnvelope, now time.Time) []string
}

// WeightedScorer fuses per-kind signals with fixed weights and linear time
// decay, plus a single non-linear escalation rule for corroborated evidence.
type WeightedScorer struct {
	weights     Weights
	decayWindow time.Duration
	thresholds  Thresholds
	maxTriggers int
}

// ScorerConfig configures the weighted scorer. Zero values fall back to the
// built-in defaults.
type ScorerConfig struct {
	Weights     Weights
	DecayWindow time.Duration
	Thresholds  Thresholds
	MaxTriggers int
}

// NewWeightedScorer builds a scorer, rejecting invalid weights or thresholds.
func NewWeightedScorer(cfg ScorerConfig) (*WeightedScorer, error) {
	if cfg.Weights == nil {
		cfg.Weights = DefaultWeights()
	}
	if cfg.DecayWindow <= 0 {
		cfg.DecayWindow = 120 * time.Second
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.MaxTriggers <= 0 {
		cfg.MaxTriggers = 10
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	return &WeightedScorer{
		weights:     cfg.Weights,
		decayWindow: cfg.DecayWindow,
		thresholds:  cfg.Thresholds,
		maxTriggers: cfg.MaxTriggers,
	}, nil
}

// decayFactor returns max(0, 1 - age/window). A signal two decay windows old
// contributes nothing, so a single early detection cannot pin the score.
func (s *WeightedScorer) decayFactor(observedAt, now time.Time) float64 {
	age := now.Sub(observedAt)
	if age <= 0 {
		return 1
	}
	f := 1 - float64(age)/float64(s.decayWindow)
	if f < 0 {
		return 0
	}
	return f
}

func (s *WeightedScorer) effectiveScore(env *models.SignalEnvelope, now time.Time) float64 {
	return env.RawScore * s.decayFactor(env.ObservedAt, now)
}

// Score computes the fused score and risk level for the given slots at the
// given instant.
func (s *WeightedScorer) Score(slots map[models.DetectorKind]*models.SignalEnvelope, now time.Time) (int, models.RiskLevel) {
	weighted := 0.0
	corroborating := 0
	for _, kind := range models.Kinds {
		env := slots[kind]
		if env == nil {
			continue
		}
		weighted += s.weights[kind] * s.effectiveScore(env, now)
		if env.Detected && env.RawScore >= escalationRawScore &&
			s.decayFactor(env.ObservedAt, now) >= escalationFreshness {
			corroborating++
		}
	}

	score := int(math.Round(weighted))
	if corroborating >= escalationMinKinds && score < escalationFloor {
		score = escalationFloor
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, s.thresholds.Level(score)
}
