package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsredo/brf-coach/internal/model"
	"github.com/arsredo/brf-coach/internal/store"
)

// hintStore records stored hints; every other store method is unused by
// the learner.
type hintStore struct {
	store.Store
	hints []model.LearningHint
}

func (h *hintStore) AddLearningHint(_ context.Context, hint model.LearningHint) error {
	h.hints = append(h.hints, hint)
	return nil
}

func TestLearnFromFailure_EmptyOutput(t *testing.T) {
	st := &hintStore{}
	l := NewLearner(st)

	entry, err := l.LearnFromFailure(context.Background(), "suppliers_vendors_agent",
		[]string{"Empty output from suppliers_vendors_agent"}, "")
	require.NoError(t, err)

	require.NotEmpty(t, entry.Improvements)
	assert.Equal(t, "prompt_enhancement", entry.Improvements[0].Type)

	require.Len(t, st.hints, 1)
	assert.Equal(t, "suppliers_vendors_agent", st.hints[0].AgentID)
	assert.Equal(t, "prompt_enhancement", st.hints[0].Category)
	assert.Contains(t, st.hints[0].Hint, "prompt_enhancement:")
}

func TestLearnFromFailure_TableContentAddsImprovement(t *testing.T) {
	l := NewLearner(nil)

	entry, err := l.LearnFromFailure(context.Background(), "note_costs_agent",
		[]string{"Empty output from note_costs_agent"},
		"Se Tabell 4 för driftskostnader")
	require.NoError(t, err)

	require.Len(t, entry.Improvements, 2)
	assert.Equal(t, "table_detection", entry.Improvements[1].Type)
}

func TestLearnFromFailure_MissingFieldsAndValidation(t *testing.T) {
	l := NewLearner(nil)

	entry, err := l.LearnFromFailure(context.Background(), "balance_sheet_agent",
		[]string{"Missing fields: cash_and_bank", "Failed validation: balance_check"}, "")
	require.NoError(t, err)

	require.Len(t, entry.Improvements, 2)
	assert.Equal(t, "field_mapping", entry.Improvements[0].Type)
	assert.Equal(t, "calculation_check", entry.Improvements[1].Type)
}

func TestLearnFromFailure_UnclassifiedIssuesStoreNothing(t *testing.T) {
	st := &hintStore{}
	l := NewLearner(st)

	entry, err := l.LearnFromFailure(context.Background(), "governance_agent",
		[]string{"something unexpected"}, "")
	require.NoError(t, err)

	assert.Empty(t, entry.Improvements)
	assert.Empty(t, st.hints)
}

func TestGenerateCoachingFeedback(t *testing.T) {
	feedback := GenerateCoachingFeedback("governance_agent", []string{
		"Missing fields: chairman",
		"Too many empty fields: auditor_name, org_number",
	})

	assert.Contains(t, feedback, "Coaching for governance_agent:")
	assert.Contains(t, feedback, "ordförande")
	assert.Contains(t, feedback, "incorrectly identified")
	assert.NotContains(t, feedback, "OCR", "empty-output guidance not triggered")
}
