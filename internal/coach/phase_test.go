package coach

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arsredo/brf-coach/internal/model"
)

func TestDetectPhase_Boundaries(t *testing.T) {
	cases := []struct {
		docs int
		want model.Phase
	}{
		{0, model.PhaseExploration},
		{1, model.PhaseExploration},
		{50, model.PhaseExploration},
		{51, model.PhaseOptimization},
		{150, model.PhaseOptimization},
		{151, model.PhaseConvergence},
		{200, model.PhaseConvergence},
		{201, model.PhaseGolden},
		{10000, model.PhaseGolden},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectPhase(tc.docs), "docs=%d", tc.docs)
	}
}

func TestRoundLimit(t *testing.T) {
	cases := []struct {
		phase model.Phase
		base  int
		want  int
	}{
		{model.PhaseExploration, 5, 5},
		{model.PhaseOptimization, 5, 3},
		{model.PhaseOptimization, 2, 2},
		{model.PhaseConvergence, 5, 2},
		{model.PhaseConvergence, 1, 1},
		{model.PhaseGolden, 5, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RoundLimit(tc.phase, tc.base), "%s base=%d", tc.phase, tc.base)
	}
}

func TestApplyPhaseConstraints_GoldenLowConfidence(t *testing.T) {
	d := model.Decision{
		Strategy:    model.StrategyExplore,
		TargetRound: 2,
		NewPrompt:   "try harder",
		Confidence:  0.6,
	}

	got := ApplyPhaseConstraints(d, model.PhaseGolden)

	assert.Equal(t, model.StrategyMaintain, got.Strategy)
	assert.Zero(t, got.TargetRound)
	assert.Empty(t, got.NewPrompt)
	assert.Equal(t, 0.6, got.Confidence, "confidence preserved for audit")
}

func TestApplyPhaseConstraints_GoldenHighConfidencePasses(t *testing.T) {
	d := model.Decision{Strategy: model.StrategyRefine, Confidence: 0.95, NewPrompt: "p"}

	got := ApplyPhaseConstraints(d, model.PhaseGolden)

	assert.Equal(t, d, got)
}

func TestApplyPhaseConstraints_OtherPhasesUnchanged(t *testing.T) {
	d := model.Decision{Strategy: model.StrategyExplore, Confidence: 0.1}
	for _, phase := range []model.Phase{model.PhaseExploration, model.PhaseOptimization, model.PhaseConvergence} {
		assert.Equal(t, d, ApplyPhaseConstraints(d, phase), "%s", phase)
	}
}

func TestApplyPhaseConstraints_Idempotent(t *testing.T) {
	d := model.Decision{Strategy: model.StrategyRevert, TargetRound: 3, Confidence: 0.4}

	once := ApplyPhaseConstraints(d, model.PhaseGolden)
	twice := ApplyPhaseConstraints(once, model.PhaseGolden)

	assert.Equal(t, once, twice)
}
