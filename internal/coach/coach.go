package coach

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/arsredo/brf-coach/internal/config"
	"github.com/arsredo/brf-coach/internal/model"
	"github.com/arsredo/brf-coach/internal/store"
)

// trendWindow is the rolling window for the performance trend query.
const trendWindow = 7 * 24 * time.Hour

// Query limits for historical context assembly.
const (
	recentRunsLimit     = 5
	goldenExamplesLimit = 3
)

// Reinvoker re-runs an extraction agent with coaching adjustments. The
// coach owns the decision of WHEN to re-run; the reinvoker owns HOW.
// Implementations must honor ctx cancellation.
type Reinvoker interface {
	Reinvoke(ctx context.Context, docID, agentID, newPrompt string, examples []model.Extraction) (model.Extraction, error)
}

// ReinvokerFunc adapts a function to the Reinvoker interface.
type ReinvokerFunc func(ctx context.Context, docID, agentID, newPrompt string, examples []model.Extraction) (model.Extraction, error)

func (f ReinvokerFunc) Reinvoke(ctx context.Context, docID, agentID, newPrompt string, examples []model.Extraction) (model.Extraction, error) {
	return f(ctx, docID, agentID, newPrompt, examples)
}

// Result reports one completed coaching run.
type Result struct {
	SessionID       string            `json:"session_id"`
	DocID           string            `json:"doc_id"`
	AgentID         string            `json:"agent_id"`
	Phase           model.Phase       `json:"phase"`
	RoundsUsed      int               `json:"rounds_used"`
	Strategies      []model.Strategy  `json:"strategies,omitempty"`
	InitialAccuracy float64           `json:"initial_accuracy"`
	FinalAccuracy   float64           `json:"final_accuracy"`
	Improvement     float64           `json:"improvement"`
	GoldenPromoted  bool              `json:"golden_promoted"`
	Extraction      model.Extraction  `json:"extraction"`
	Performance     model.Performance `json:"performance"`
}

// Coach drives the coaching cycle for one (document, agent) pair at a
// time: analyze, decide, apply, re-analyze, persist. Safe for concurrent
// Run calls on distinct pairs.
type Coach struct {
	store     store.Store
	engine    *Engine
	analyzer  *Analyzer
	cfg       config.CoachConfig
	reinvoker Reinvoker
}

// New creates a Coach. The reinvoker may be nil, in which case refine and
// explore decisions keep the current extraction (record-only mode).
func New(st store.Store, engine *Engine, analyzer *Analyzer, cfg config.CoachConfig, reinvoker Reinvoker) (*Coach, error) {
	if st == nil {
		return nil, eris.New("coach: store required")
	}
	if engine == nil {
		return nil, eris.New("coach: decision engine required")
	}
	if analyzer == nil {
		analyzer = NewAnalyzer(cfg.SelfEvalDiscount)
	}
	return &Coach{
		store:     st,
		engine:    engine,
		analyzer:  analyzer,
		cfg:       cfg,
		reinvoker: reinvoker,
	}, nil
}

// Run executes one coaching session. The session row transitions from
// started to exactly one of completed or failed; on failure the original
// error is returned after the best-effort status write.
func (c *Coach) Run(ctx context.Context, docID, agentID string, extraction, groundTruth model.Extraction) (*Result, error) {
	perf := c.analyzer.Analyze(extraction, groundTruth)

	docCount, err := c.store.DistinctDocumentCount(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "coach: count documents")
	}
	phase := DetectPhase(docCount)
	maxRounds := RoundLimit(phase, c.cfg.RoundsFor(agentID))
	if phase == model.PhaseGolden {
		// No routine budget in the golden phase, but the decision is still
		// made once per session: a single action is allowed when confidence
		// clears the floor, everything below it is clamped to maintain.
		maxRounds = 1
	}

	session := model.Session{
		ID:              fmt.Sprintf("%s_%s_%d", agentID, docID, time.Now().UnixNano()),
		DocID:           docID,
		AgentID:         agentID,
		Status:          model.SessionStarted,
		MaxRounds:       maxRounds,
		InitialAccuracy: perf.Accuracy,
		StartedAt:       time.Now().UTC(),
	}
	if err := c.store.StartSession(ctx, session); err != nil {
		return nil, eris.Wrap(err, "coach: start session")
	}

	zap.L().Info("coach: session started",
		zap.String("session_id", session.ID),
		zap.String("agent_id", agentID),
		zap.String("doc_id", docID),
		zap.String("phase", phase.String()),
		zap.Int("max_rounds", maxRounds),
		zap.Float64("initial_accuracy", perf.Accuracy),
	)

	result, err := c.runRounds(ctx, session, phase, maxRounds, extraction, groundTruth, perf)
	if err != nil {
		c.failSession(ctx, session.ID, err)
		return nil, err
	}

	if err := c.store.CompleteSession(ctx, session.ID, result.InitialAccuracy, result.FinalAccuracy); err != nil {
		wrapped := eris.Wrap(err, "coach: complete session")
		c.failSession(ctx, session.ID, wrapped)
		return nil, wrapped
	}

	zap.L().Info("coach: session completed",
		zap.String("session_id", session.ID),
		zap.Int("rounds_used", result.RoundsUsed),
		zap.Float64("final_accuracy", result.FinalAccuracy),
		zap.Float64("improvement", result.Improvement),
		zap.Bool("golden_promoted", result.GoldenPromoted),
	)
	return result, nil
}

// runRounds is the coaching loop proper. Any returned error fails the
// session; the caller handles the status transition.
func (c *Coach) runRounds(ctx context.Context, session model.Session, phase model.Phase, maxRounds int, extraction, groundTruth model.Extraction, perf model.Performance) (*Result, error) {
	result := &Result{
		SessionID:       session.ID,
		DocID:           session.DocID,
		AgentID:         session.AgentID,
		Phase:           phase,
		InitialAccuracy: perf.Accuracy,
		FinalAccuracy:   perf.Accuracy,
		Extraction:      extraction,
		Performance:     perf,
	}

	// Round 1 is the pre-coaching extraction, stored as a revert target
	// before any strategy applies.
	if err := c.store.SaveRoundExtraction(ctx, session.DocID, session.AgentID, 1, extraction); err != nil {
		return nil, eris.Wrap(err, "coach: save initial extraction")
	}

	hist, err := c.historicalContext(ctx, session.AgentID, phase)
	if err != nil {
		return nil, err
	}

	current := extraction
	currentPerf := perf
	for round := 1; round <= maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "coach: context canceled")
		}

		decision := c.engine.Decide(ctx, session.AgentID, currentPerf, hist)
		zap.L().Debug("coach: decision",
			zap.String("session_id", session.ID),
			zap.Int("round", round),
			zap.String("strategy", string(decision.Strategy)),
			zap.Float64("confidence", decision.Confidence),
		)

		if decision.Strategy == model.StrategyMaintain {
			break
		}
		result.Strategies = append(result.Strategies, decision.Strategy)

		next, err := c.applyStrategy(ctx, session.DocID, session.AgentID, decision, current)
		if err != nil {
			return nil, err
		}

		nextPerf := c.analyzer.Analyze(next, groundTruth)

		if err := c.store.SaveRoundExtraction(ctx, session.DocID, session.AgentID, round+1, next); err != nil {
			return nil, eris.Wrap(err, "coach: save round extraction")
		}
		rec := model.PerformanceRecord{
			ID:          uuid.NewString(),
			DocID:       session.DocID,
			AgentID:     session.AgentID,
			Round:       round,
			Accuracy:    nextPerf.Accuracy,
			Coverage:    nextPerf.Coverage,
			Strategy:    decision.Strategy,
			Improvement: nextPerf.Accuracy - currentPerf.Accuracy,
			Phase:       phase,
			CreatedAt:   time.Now().UTC(),
		}
		if err := c.store.AppendPerformance(ctx, rec); err != nil {
			return nil, eris.Wrap(err, "coach: append performance")
		}

		current = next
		currentPerf = nextPerf
		result.RoundsUsed = round

		if currentPerf.Accuracy >= c.goldenThreshold() {
			break
		}
	}

	result.Extraction = current
	result.Performance = currentPerf
	result.FinalAccuracy = currentPerf.Accuracy
	result.Improvement = result.FinalAccuracy - result.InitialAccuracy

	if result.FinalAccuracy >= c.goldenThreshold() {
		promoted, err := c.promoteGolden(ctx, session.DocID, session.AgentID, current, currentPerf)
		if err != nil {
			return nil, err
		}
		result.GoldenPromoted = promoted
	}

	return result, nil
}

// applyStrategy produces the next extraction candidate for a decision.
func (c *Coach) applyStrategy(ctx context.Context, docID, agentID string, decision model.Decision, current model.Extraction) (model.Extraction, error) {
	switch decision.Strategy {
	case model.StrategyRevert:
		prev, err := c.store.GetRoundExtraction(ctx, docID, agentID, decision.TargetRound)
		if err != nil {
			return nil, eris.Wrapf(err, "coach: revert to round %d", decision.TargetRound)
		}
		return prev, nil

	case model.StrategyRefine, model.StrategyExplore:
		if c.reinvoker == nil {
			zap.L().Warn("coach: no reinvoker configured, keeping current extraction",
				zap.String("agent_id", agentID),
				zap.String("strategy", string(decision.Strategy)),
			)
			return current, nil
		}
		next, err := c.reinvoker.Reinvoke(ctx, docID, agentID, decision.NewPrompt, decision.ExamplesToAdd)
		if err != nil {
			return nil, eris.Wrap(err, "coach: reinvoke agent")
		}
		return next, nil

	default:
		return current, nil
	}
}

// promoteGolden stores a near-perfect extraction as a golden example.
// Empty extractions are never promoted regardless of score.
func (c *Coach) promoteGolden(ctx context.Context, docID, agentID string, extraction model.Extraction, perf model.Performance) (bool, error) {
	if extraction.IsEmpty() {
		return false, nil
	}
	ex := model.GoldenExample{
		ID:         uuid.NewString(),
		DocID:      docID,
		AgentID:    agentID,
		Extraction: extraction.Clone(),
		Accuracy:   perf.Accuracy,
		Coverage:   perf.Coverage,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := c.store.AddGoldenExample(ctx, ex); err != nil {
		return false, eris.Wrap(err, "coach: add golden example")
	}
	zap.L().Info("coach: golden example promoted",
		zap.String("agent_id", agentID),
		zap.String("doc_id", docID),
		zap.Float64("accuracy", perf.Accuracy),
	)
	return true, nil
}

// historicalContext assembles the decision engine's view of the agent's
// past: best-ever run, recent runs, rolling trend, and golden examples.
func (c *Coach) historicalContext(ctx context.Context, agentID string, phase model.Phase) (model.HistoricalContext, error) {
	best, err := c.store.BestPerformance(ctx, agentID)
	if err != nil {
		return model.HistoricalContext{}, eris.Wrap(err, "coach: best performance")
	}
	recent, err := c.store.RecentPerformance(ctx, agentID, recentRunsLimit)
	if err != nil {
		return model.HistoricalContext{}, eris.Wrap(err, "coach: recent performance")
	}
	trend, err := c.store.PerformanceTrend(ctx, agentID, trendWindow)
	if err != nil {
		return model.HistoricalContext{}, eris.Wrap(err, "coach: performance trend")
	}
	golden, err := c.store.TopGoldenExamples(ctx, agentID, goldenExamplesLimit)
	if err != nil {
		return model.HistoricalContext{}, eris.Wrap(err, "coach: golden examples")
	}
	return model.HistoricalContext{
		BestEver:       best,
		RecentRuns:     recent,
		Trend:          trend,
		GoldenExamples: golden,
		Phase:          phase,
	}, nil
}

func (c *Coach) goldenThreshold() float64 {
	if c.cfg.GoldenThreshold > 0 {
		return c.cfg.GoldenThreshold
	}
	return 0.95
}

// failSession records the failure reason; the write is best-effort since
// the original error must propagate regardless.
func (c *Coach) failSession(ctx context.Context, sessionID string, cause error) {
	if err := c.store.FailSession(ctx, sessionID, cause.Error()); err != nil {
		zap.L().Error("coach: failed to mark session failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}
