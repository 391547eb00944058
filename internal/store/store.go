// Package store persists coaching history: sessions, performance rows,
// round extractions, golden examples, and learning hints. History is
// append-only from the coach's perspective.
package store

import (
	"context"
	"time"

	"github.com/arsredo/brf-coach/internal/model"
)

// SessionFilter specifies criteria for listing coaching sessions.
type SessionFilter struct {
	AgentID string              `json:"agent_id,omitempty"`
	DocID   string              `json:"doc_id,omitempty"`
	Status  model.SessionStatus `json:"status,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
}

// Store defines the persistence interface for the coaching loop.
type Store interface {
	// Sessions
	StartSession(ctx context.Context, s model.Session) error
	CompleteSession(ctx context.Context, sessionID string, initialAccuracy, finalAccuracy float64) error
	FailSession(ctx context.Context, sessionID, reason string) error
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)

	// Performance history (append-only)
	AppendPerformance(ctx context.Context, rec model.PerformanceRecord) error
	BestPerformance(ctx context.Context, agentID string) (*model.PerformanceRecord, error)
	RecentPerformance(ctx context.Context, agentID string, limit int) ([]model.PerformanceRecord, error)
	PerformanceTrend(ctx context.Context, agentID string, window time.Duration) (model.Trend, error)
	DistinctDocumentCount(ctx context.Context) (int, error)

	// Round extractions (revert targets)
	SaveRoundExtraction(ctx context.Context, docID, agentID string, round int, extraction model.Extraction) error
	GetRoundExtraction(ctx context.Context, docID, agentID string, round int) (model.Extraction, error)

	// Golden examples
	AddGoldenExample(ctx context.Context, ex model.GoldenExample) error
	TopGoldenExamples(ctx context.Context, agentID string, limit int) ([]model.GoldenExample, error)

	// Learning hints
	AddLearningHint(ctx context.Context, hint model.LearningHint) error
	HintsForAgent(ctx context.Context, agentID string, limit int) ([]string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
