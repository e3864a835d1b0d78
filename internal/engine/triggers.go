package engine

import (
	"sort"
	"time"

	"examwatch/pkg/models"
)

// Stale evidence whose decay factor has fallen below this is dropped from
// display even though its slot may still carry residual score weight.
const triggerDecayFloor = 0.2

type rankedTrigger struct {
	text     string
	score    float64
	kindRank int
}

// Triggers builds the human-facing trigger list: evidence from detected,
// still-relevant slots, deduplicated by exact string, ranked by effective
// score descending with ties broken by detector kind order, capped at the
// configured maximum.
func (s *WeightedScorer) Triggers(slots map[models.DetectorKind]*models.SignalEnvelope, now time.Time) []string {
	var ranked []rankedTrigger
	seen := make(map[string]struct{})

	for _, kind := range models.Kinds {
		env := slots[kind]
		if env == nil || !env.Detected {
			continue
		}
		if s.decayFactor(env.ObservedAt, now) < triggerDecayFloor {
			continue
		}
		eff := s.effectiveScore(env, now)
		for _, text := range env.Evidence {
			if text == "" {
				continue
			}
			if _, dup := seen[text]; dup {
				continue
			}
			seen[text] = struct{}{}
			ranked = append(ranked, rankedTrigger{text: text, score: eff, kindRank: kind.Rank()})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].kindRank < ranked[j].kindRank
	})

	if len(ranked) > s.maxTriggers {
		ranked = ranked[:s.maxTriggers]
	}

	out := make([]string, 0, len(ranked))
	for _, t := range ranked {
		out = append(out, t.text)
	}
	return out
}
