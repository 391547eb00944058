package model

import "time"

// SessionStatus is the lifecycle state of a coaching session.
type SessionStatus string

const (
	SessionStarted   SessionStatus = "started"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Session identifies one coaching attempt for a (document, agent) pair.
// A session is created at coaching entry and closed exactly once, as
// either completed or failed.
type Session struct {
	ID              string        `json:"id"`
	DocID           string        `json:"doc_id"`
	AgentID         string        `json:"agent_id"`
	Status          SessionStatus `json:"status"`
	MaxRounds       int           `json:"max_rounds"`
	InitialAccuracy float64       `json:"initial_accuracy"`
	FinalAccuracy   float64       `json:"final_accuracy"`
	Improvement     float64       `json:"improvement"`
	FailureReason   string        `json:"failure_reason,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
}
