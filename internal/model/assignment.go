package model

import "time"

// Section is one sectionizer output entry: a named region of the report.
// Single-page sections set Page; ranges set StartPage/EndPage.
type Section struct {
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	Page      int    `json:"page,omitempty"`
	StartPage int    `json:"start_page,omitempty"`
	EndPage   int    `json:"end_page,omitempty"`
}

// PageRange is the inclusive page span an agent should read.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Assignment maps one agent to its sections, pages, and expectations.
type Assignment struct {
	Agent          string    `json:"agent"`
	Sections       []Section `json:"sections"`
	Pages          []int     `json:"pages"`
	Zone           PageRange `json:"extraction_zone"`
	Priority       int       `json:"priority"`
	ExpectedFields []string  `json:"expected_fields,omitempty"`
	LearningHints  []string  `json:"learning_hints,omitempty"`
}

// LearningHint is a persisted improvement hint for an agent, generated
// from a prior validation failure and attached to future assignments.
type LearningHint struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Category  string    `json:"category"`
	Hint      string    `json:"hint"`
	CreatedAt time.Time `json:"created_at"`
}

// Mismatch records a disagreement between two agents on a shared field.
type Mismatch struct {
	Agents     [2]string `json:"agents"`
	Field      string    `json:"field"`
	Values     [2]any    `json:"values"`
	Severity   string    `json:"severity"`
	Difference float64   `json:"difference,omitempty"`
}
