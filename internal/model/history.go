package model

import "time"

// PerformanceRecord is one appended coaching-performance row. The history
// is append-only: the coach adds records, never mutates or deletes them.
type PerformanceRecord struct {
	ID          string    `json:"id"`
	DocID       string    `json:"doc_id"`
	AgentID     string    `json:"agent_id"`
	Round       int       `json:"round"`
	Accuracy    float64   `json:"accuracy"`
	Coverage    float64   `json:"coverage"`
	Strategy    Strategy  `json:"strategy"`
	Improvement float64   `json:"improvement"`
	Phase       Phase     `json:"phase"`
	CreatedAt   time.Time `json:"created_at"`
}

// Trend summarizes an agent's accuracy over a rolling window.
type Trend struct {
	MeanAccuracy   float64 `json:"mean_accuracy"`
	StddevAccuracy float64 `json:"stddev_accuracy"`
	RunCount       int     `json:"run_count"`
}

// GoldenExample is a stored near-perfect extraction retained as few-shot
// context for future decisions on the same agent. Promotion is
// append-only; near-duplicates are acceptable.
type GoldenExample struct {
	ID         string     `json:"id"`
	DocID      string     `json:"doc_id"`
	AgentID    string     `json:"agent_id"`
	Extraction Extraction `json:"extraction"`
	Accuracy   float64    `json:"accuracy"`
	Coverage   float64    `json:"coverage"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
}

// HistoricalContext bundles everything the decision engine needs to know
// about an agent's past performance.
type HistoricalContext struct {
	BestEver       *PerformanceRecord  `json:"best_ever,omitempty"`
	RecentRuns     []PerformanceRecord `json:"recent_runs,omitempty"`
	Trend          Trend               `json:"trend"`
	GoldenExamples []GoldenExample     `json:"golden_examples,omitempty"`
	Phase          Phase               `json:"phase"`
}

// RecentAverage returns the mean accuracy of the recent runs, 0 if none.
func (h HistoricalContext) RecentAverage() float64 {
	if len(h.RecentRuns) == 0 {
		return 0
	}
	var sum float64
	for _, r := range h.RecentRuns {
		sum += r.Accuracy
	}
	return sum / float64(len(h.RecentRuns))
}

// BestAccuracy returns the best-ever accuracy, 0 if no history exists.
func (h HistoricalContext) BestAccuracy() float64 {
	if h.BestEver == nil {
		return 0
	}
	return h.BestEver.Accuracy
}
