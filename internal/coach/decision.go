package coach

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/arsredo/brf-coach/internal/model"
	"github.com/arsredo/brf-coach/internal/resilience"
	"github.com/arsredo/brf-coach/pkg/advisor"
)

// Accuracy thresholds shared by the golden short-circuit and the
// deterministic fallback rule.
const (
	maintainThreshold = 0.95
	exploreThreshold  = 0.60
)

// fallbackConfidence is the fixed confidence of rule-based decisions.
const fallbackConfidence = 0.5

// Engine turns a performance reading plus historical context into a
// coaching decision. The advisory model proposes; the phase policy
// disposes. Stateless with respect to domain entities.
type Engine struct {
	advisor advisor.Client
	retry   resilience.RetryConfig
}

// NewEngine creates a decision engine. A nil advisory client is a
// configuration error: the coach must not silently run degraded.
func NewEngine(client advisor.Client, retry resilience.RetryConfig) (*Engine, error) {
	if client == nil {
		return nil, eris.New("coach: advisory client required")
	}
	if retry.MaxAttempts <= 0 {
		retry = resilience.DefaultRetryConfig()
	}
	return &Engine{advisor: client, retry: retry}, nil
}

// Decide produces the coaching decision for one cycle. Advisory failures
// never escape: after the bounded retries the deterministic fallback rule
// applies. Phase constraints clamp whatever decision wins.
func (e *Engine) Decide(ctx context.Context, agentID string, perf model.Performance, hist model.HistoricalContext) model.Decision {
	if hist.Phase == model.PhaseGolden && perf.Accuracy >= maintainThreshold {
		return model.Decision{
			Strategy:   model.StrategyMaintain,
			Reasoning:  "golden state achieved with high accuracy",
			Confidence: 1.0,
		}
	}

	prompt := buildAdvisoryPrompt(agentID, perf, hist)

	rec, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*advisor.Recommendation, error) {
		return e.advisor.Recommend(ctx, prompt)
	})

	var decision model.Decision
	switch {
	case err != nil:
		zap.L().Warn("coach: advisory call failed, using fallback",
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
		decision = Fallback(perf)
	default:
		decision, err = decisionFromRecommendation(rec)
		if err != nil {
			zap.L().Warn("coach: invalid advisory recommendation, using fallback",
				zap.String("agent_id", agentID),
				zap.Error(err),
			)
			decision = Fallback(perf)
		}
	}

	return ApplyPhaseConstraints(decision, hist.Phase)
}

// Fallback is the deterministic rule used when the advisory model is
// unavailable, and the reference behavior the engine is tested against.
func Fallback(perf model.Performance) model.Decision {
	var strategy model.Strategy
	switch {
	case perf.Accuracy >= maintainThreshold:
		strategy = model.StrategyMaintain
	case perf.Accuracy < exploreThreshold:
		strategy = model.StrategyExplore
	default:
		strategy = model.StrategyRefine
	}
	return model.Decision{
		Strategy:   strategy,
		Reasoning:  "fallback decision based on accuracy threshold",
		Confidence: fallbackConfidence,
	}
}

// decisionFromRecommendation validates raw advisory output into the
// closed Decision type. Unknown strategy tags are rejected here so they
// collapse to the fallback rather than propagating.
func decisionFromRecommendation(rec *advisor.Recommendation) (model.Decision, error) {
	strategy, err := model.ParseStrategy(rec.Strategy)
	if err != nil {
		return model.Decision{}, err
	}
	if strategy == model.StrategyRevert && rec.TargetRound <= 0 {
		return model.Decision{}, eris.New("coach: revert recommendation missing target round")
	}

	confidence := rec.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	examples := make([]model.Extraction, 0, len(rec.Examples))
	for _, ex := range rec.Examples {
		examples = append(examples, model.Extraction(ex))
	}

	return model.Decision{
		Strategy:      strategy,
		TargetRound:   rec.TargetRound,
		NewPrompt:     rec.NewPrompt,
		ExamplesToAdd: examples,
		Reasoning:     rec.Reasoning,
		Confidence:    confidence,
	}, nil
}

// buildAdvisoryPrompt assembles the context the advisory model sees:
// current metrics, historical performance, phase goals, and the decision
// heuristics it is expected to honor.
func buildAdvisoryPrompt(agentID string, perf model.Performance, hist model.HistoricalContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are coaching a Swedish BRF annual-report extraction agent: %s\n", agentID)
	fmt.Fprintf(&b, "Learning phase: %s\n\n", hist.Phase)

	b.WriteString("CURRENT PERFORMANCE:\n")
	fmt.Fprintf(&b, "- Accuracy: %.1f%%\n", perf.Accuracy*100)
	fmt.Fprintf(&b, "- Coverage: %.1f%%\n", perf.Coverage*100)
	fmt.Fprintf(&b, "- F1 score: %.1f%%\n", perf.F1Score*100)
	if len(perf.Errors) > 0 {
		fmt.Fprintf(&b, "- Errors: %s\n", strings.Join(head(perf.Errors, 5), "; "))
	}
	if len(perf.MissingFields) > 0 {
		fmt.Fprintf(&b, "- Missing fields: %s\n", strings.Join(head(perf.MissingFields, 5), ", "))
	}

	b.WriteString("\nHISTORICAL CONTEXT:\n")
	if hist.BestEver != nil {
		fmt.Fprintf(&b, "- Best ever accuracy: %.1f%%\n", hist.BestEver.Accuracy*100)
	} else {
		b.WriteString("- Best ever accuracy: no history\n")
	}
	if len(hist.RecentRuns) > 0 {
		fmt.Fprintf(&b, "- Recent average (last %d runs): %.1f%%\n", len(hist.RecentRuns), hist.RecentAverage()*100)
	} else {
		b.WriteString("- Recent average: no history\n")
	}
	fmt.Fprintf(&b, "- 7-day trend: mean %.1f%%, stddev %.3f over %d runs\n",
		hist.Trend.MeanAccuracy*100, hist.Trend.StddevAccuracy, hist.Trend.RunCount)
	fmt.Fprintf(&b, "- Golden examples available: %d\n", len(hist.GoldenExamples))

	b.WriteString("\nPHASE GOALS:\n")
	for _, p := range []model.Phase{model.PhaseExploration, model.PhaseOptimization, model.PhaseConvergence, model.PhaseGolden} {
		fmt.Fprintf(&b, "- %s: %s\n", p, p.Goal())
	}

	b.WriteString(`
Recommend a coaching strategy. Return JSON with:
{
  "strategy": "revert|refine|explore|maintain",
  "target_round": 0 or the previous round to revert to,
  "new_prompt": "" or the refined prompt,
  "examples": [] or example extractions to add,
  "reasoning": "explanation of your decision",
  "confidence": 0.0-1.0
}

IMPORTANT:
- If current accuracy is more than 10 points below best ever, consider "revert".
- If stuck at a local maximum (no improvement in 5 runs), consider "explore".
- If accuracy exceeds 95%, use "maintain".
- In convergence and golden phases, prefer "maintain" unless improvement would be substantial.
`)

	return b.String()
}

func head(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
