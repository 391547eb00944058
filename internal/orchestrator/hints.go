package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/arsredo/brf-coach/internal/model"
	"github.com/arsredo/brf-coach/internal/store"
)

// Improvement is one suggested fix derived from a validation failure.
type Improvement struct {
	Type       string `json:"type"`
	Suggestion string `json:"suggestion"`
	Hint       string `json:"hint"`
}

// LearningEntry records what was learned from one failed extraction.
type LearningEntry struct {
	AgentID      string        `json:"agent_id"`
	Issues       []string      `json:"issues"`
	Improvements []Improvement `json:"improvements"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Learner converts validation failures into stored hints that future
// assignments pick up.
type Learner struct {
	store store.Store
}

// NewLearner creates a learner persisting hints through the store.
func NewLearner(st store.Store) *Learner {
	return &Learner{store: st}
}

// LearnFromFailure classifies the issues from a failed extraction,
// derives improvements, and persists the first one as a hint for the
// agent's next run. sectionContent, when available, refines the
// classification.
func (l *Learner) LearnFromFailure(ctx context.Context, agentID string, issues []string, sectionContent string) (*LearningEntry, error) {
	entry := &LearningEntry{
		AgentID:   agentID,
		Issues:    issues,
		Timestamp: time.Now().UTC(),
	}

	joined := strings.Join(issues, "; ")

	if strings.Contains(joined, "Empty output") {
		entry.Improvements = append(entry.Improvements, Improvement{
			Type:       "prompt_enhancement",
			Suggestion: "Add more specific Swedish terms to search for",
			Hint:       "Check if section contains tables that need special handling",
		})
		if strings.Contains(strings.ToLower(sectionContent), "tabell") {
			entry.Improvements = append(entry.Improvements, Improvement{
				Type:       "table_detection",
				Suggestion: "Section contains table - use table extractor",
				Hint:       "Tables need specialized extraction logic",
			})
		}
	}

	if strings.Contains(joined, "Missing fields") {
		entry.Improvements = append(entry.Improvements, Improvement{
			Type:       "field_mapping",
			Suggestion: "Update field mappings for Swedish variations",
			Hint:       "Common variations: årsstämma/stämma, ordförande/ordf",
		})
	}

	if strings.Contains(joined, "Failed validation") {
		entry.Improvements = append(entry.Improvements, Improvement{
			Type:       "calculation_check",
			Suggestion: "Check for rounding or thousands separator issues",
			Hint:       "Swedish uses space as thousands separator",
		})
	}

	if len(entry.Improvements) > 0 && l.store != nil {
		first := entry.Improvements[0]
		hint := model.LearningHint{
			ID:        uuid.NewString(),
			AgentID:   agentID,
			Category:  first.Type,
			Hint:      first.Type + ": " + first.Hint,
			CreatedAt: entry.Timestamp,
		}
		if err := l.store.AddLearningHint(ctx, hint); err != nil {
			return nil, eris.Wrap(err, "orchestrator: store learning hint")
		}
		zap.L().Info("orchestrator: learned from failure",
			zap.String("agent_id", agentID),
			zap.String("category", first.Type),
		)
	}

	return entry, nil
}

// GenerateCoachingFeedback renders the issues of a failed extraction as
// prompt guidance for the agent's next attempt.
func GenerateCoachingFeedback(agentID string, issues []string) string {
	var b strings.Builder
	b.WriteString("Coaching for " + agentID + ":\n")

	joined := strings.Join(issues, "; ")

	if strings.Contains(joined, "Empty output") {
		b.WriteString(`
- Add fallback search terms in Swedish and English
- Look for tables and lists, not just text
- Check multiple pages if section spans pages
- Try OCR-friendly extraction for scanned documents
`)
	}

	if strings.Contains(joined, "Missing fields") {
		b.WriteString(`
- Search for field variations:
  * ordförande/styrelseordförande/chairman
  * årsstämma/bolagsstämma/stämma
  * revisor/auktoriserad revisor/godkänd revisor
- Check if data is in a table format
- Look in both current and previous year columns
`)
	}

	if strings.Contains(joined, "Too many empty") {
		b.WriteString(`
- Section might be incorrectly identified
- Data might be on adjacent pages
- Consider that some documents use different terminology
- Check if this is a summary vs detailed section
`)
	}

	return b.String()
}
