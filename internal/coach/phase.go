package coach

import "github.com/arsredo/brf-coach/internal/model"

// Phase boundaries, in distinct documents processed. The count comes from
// the store at coaching entry; the phase itself is always derived, never
// stored.
const (
	explorationMaxDocs  = 50
	optimizationMaxDocs = 150
	convergenceMaxDocs  = 200
)

// goldenConfidenceFloor is the minimum decision confidence required to act
// at all during the golden phase.
const goldenConfidenceFloor = 0.9

// DetectPhase maps the distinct-document count to a learning phase.
func DetectPhase(docCount int) model.Phase {
	switch {
	case docCount <= explorationMaxDocs:
		return model.PhaseExploration
	case docCount <= optimizationMaxDocs:
		return model.PhaseOptimization
	case docCount <= convergenceMaxDocs:
		return model.PhaseConvergence
	default:
		return model.PhaseGolden
	}
}

// RoundLimit returns the coaching round budget for a phase given an
// agent's base budget. Later phases tighten the budget; the golden phase
// allows no routine coaching.
func RoundLimit(phase model.Phase, baseMaxRounds int) int {
	switch phase {
	case model.PhaseOptimization:
		return min(baseMaxRounds, 3)
	case model.PhaseConvergence:
		return min(baseMaxRounds, 2)
	case model.PhaseGolden:
		return 0
	default:
		return baseMaxRounds
	}
}

// ApplyPhaseConstraints clamps a decision to what the phase allows: in the
// golden phase any decision below the confidence floor is downgraded to
// maintain. Pure and idempotent; safe to call before and after
// persistence writes.
func ApplyPhaseConstraints(d model.Decision, phase model.Phase) model.Decision {
	if phase == model.PhaseGolden && d.Confidence < goldenConfidenceFloor {
		d.Strategy = model.StrategyMaintain
		d.TargetRound = 0
		d.NewPrompt = ""
		d.Reasoning = "golden phase: confidence below floor, holding prompt"
	}
	return d
}
