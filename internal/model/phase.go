package model

// Phase is the coarse learning regime gating how much prompt revision the
// coach allows. It is derived from the distinct-document count, never
// stored as independent state.
type Phase int

const (
	PhaseExploration Phase = iota + 1
	PhaseOptimization
	PhaseConvergence
	PhaseGolden
)

func (p Phase) String() string {
	switch p {
	case PhaseExploration:
		return "exploration"
	case PhaseOptimization:
		return "optimization"
	case PhaseConvergence:
		return "convergence"
	case PhaseGolden:
		return "golden"
	}
	return "unknown"
}

// Goal returns the phase objective text included in advisory prompts.
func (p Phase) Goal() string {
	switch p {
	case PhaseExploration:
		return "Try diverse approaches, maximize learning"
	case PhaseOptimization:
		return "Refine what works, prune what doesn't"
	case PhaseConvergence:
		return "Lock in best practices, minimize changes"
	case PhaseGolden:
		return "Maintain excellence, avoid regression"
	}
	return ""
}
