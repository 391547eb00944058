package model

import "github.com/rotisserie/eris"

// Strategy is the closed set of coaching actions. Advisory output is
// validated into this enum at the parse boundary; anything else is
// rejected there and collapses to the fallback decision.
type Strategy string

const (
	// StrategyMaintain keeps the current prompt unchanged.
	StrategyMaintain Strategy = "maintain"
	// StrategyRefine rewrites the prompt with a targeted improvement.
	StrategyRefine Strategy = "refine"
	// StrategyExplore tries a substantially different prompt approach.
	StrategyExplore Strategy = "explore"
	// StrategyRevert restores the extraction from an earlier round.
	StrategyRevert Strategy = "revert"
)

// ParseStrategy validates a raw strategy tag from advisory output.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyMaintain, StrategyRefine, StrategyExplore, StrategyRevert:
		return Strategy(s), nil
	}
	return "", eris.Errorf("model: unknown strategy %q", s)
}

// Decision is the outcome of one coaching decision cycle.
type Decision struct {
	Strategy Strategy `json:"strategy"`

	// TargetRound is meaningful only when Strategy is revert: which prior
	// round's stored extraction to restore. Zero means unset.
	TargetRound int `json:"target_round,omitempty"`

	// NewPrompt is meaningful only when Strategy is refine.
	NewPrompt string `json:"new_prompt,omitempty"`

	// ExamplesToAdd are appended to the agent's golden-example pool.
	ExamplesToAdd []Extraction `json:"examples_to_add,omitempty"`

	// Reasoning is a free-text justification for audit, never parsed.
	Reasoning string `json:"reasoning,omitempty"`

	Confidence float64 `json:"confidence"`
}
