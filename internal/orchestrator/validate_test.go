package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsredo/brf-coach/internal/model"
)

func balanceSheetOutput() model.Extraction {
	// Real figures from a Stockholm BRF annual report: the identity
	// holds exactly.
	return model.Extraction{
		"total_assets":      301339818.0,
		"total_equity":      201801694.0,
		"total_liabilities": 99538124.0,
		"cash_and_bank":     3210000.0,
	}
}

func TestValidate_BalanceSheetValid(t *testing.T) {
	v := NewValidator()

	ok, issues := v.Validate("balance_sheet_agent", balanceSheetOutput(), ExpectedFields("balance_sheet_agent"))

	assert.True(t, ok)
	assert.Empty(t, issues)
}

func TestValidate_BalanceCheckFailsOutsideTolerance(t *testing.T) {
	out := balanceSheetOutput()
	out["total_assets"] = out["total_assets"].(float64) + 50000

	ok, issues := NewValidator().Validate("balance_sheet_agent", out, ExpectedFields("balance_sheet_agent"))

	assert.False(t, ok)
	assert.Contains(t, issues, "Failed validation: balance_check")
}

func TestValidate_BalanceCheckToleratesRounding(t *testing.T) {
	out := balanceSheetOutput()
	out["total_assets"] = out["total_assets"].(float64) + 999

	ok, issues := NewValidator().Validate("balance_sheet_agent", out, ExpectedFields("balance_sheet_agent"))

	assert.True(t, ok, "within SEK 1000 tolerance: %v", issues)
}

func TestValidate_EmptyOutputShortCircuits(t *testing.T) {
	ok, issues := NewValidator().Validate("governance_agent", nil, ExpectedFields("governance_agent"))

	assert.False(t, ok)
	require.Len(t, issues, 1)
	assert.Equal(t, "Empty output from governance_agent", issues[0])
}

func TestValidate_MissingFieldsReported(t *testing.T) {
	out := model.Extraction{
		"chairman":      "Anna Lindqvist",
		"board_members": []any{"A", "B", "C"},
	}

	ok, issues := NewValidator().Validate("governance_agent", out, ExpectedFields("governance_agent"))

	assert.False(t, ok)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "Missing fields:")
	assert.Contains(t, issues[0], "auditor_name")
	assert.Contains(t, issues[0], "org_number")
}

func TestValidate_TooManyEmptyFields(t *testing.T) {
	out := model.Extraction{
		"chairman":      "Anna Lindqvist",
		"board_members": []any{"A", "B", "C"},
		"auditor_name":  "",
		"org_number":    nil,
	}

	ok, issues := NewValidator().Validate("governance_agent", out, []string{"chairman", "auditor_name", "org_number"})

	assert.False(t, ok)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "Too many empty fields:")
}

func TestValidate_HalfEmptyIsAcceptable(t *testing.T) {
	out := model.Extraction{
		"chairman":     "Anna Lindqvist",
		"auditor_name": "",
	}

	// Exactly 50% empty does not exceed the cutoff.
	ok, issues := NewValidator().Validate("some_agent", out, []string{"chairman", "auditor_name"})

	assert.True(t, ok, "issues: %v", issues)
}

func TestValidate_BoardMembersMinimum(t *testing.T) {
	base := model.Extraction{
		"chairman":     "Anna Lindqvist",
		"auditor_name": "KPMG AB",
		"org_number":   "769600-1234",
	}

	tooFew := base.Clone()
	tooFew["board_members"] = []any{"A", "B"}
	ok, issues := NewValidator().Validate("governance_agent", tooFew, ExpectedFields("governance_agent"))
	assert.False(t, ok)
	assert.Contains(t, issues, "Failed validation: board_members_check")

	enough := base.Clone()
	enough["board_members"] = []any{"A", "B", "C"}
	ok, issues = NewValidator().Validate("governance_agent", enough, ExpectedFields("governance_agent"))
	assert.True(t, ok, "issues: %v", issues)
}

func TestValidate_LoanSumReconciliation(t *testing.T) {
	out := model.Extraction{
		"loans": []any{
			map[string]any{"lender": "SEB", "amount": 20000000.0},
			map[string]any{"lender": "Swedbank", "amount": 25000000.0},
		},
		"total_loans":       45000000.0,
		"weighted_avg_rate": 2.3,
	}

	ok, issues := NewValidator().Validate("note_loans_agent", out, ExpectedFields("note_loans_agent"))
	assert.True(t, ok, "issues: %v", issues)

	out["total_loans"] = 46000000.0 // off by 1M
	ok, issues = NewValidator().Validate("note_loans_agent", out, ExpectedFields("note_loans_agent"))
	assert.False(t, ok)
	assert.Contains(t, issues, "Failed validation: loan_total_check")
}

func TestCrossValidate_ToleranceMismatch(t *testing.T) {
	results := map[string]model.Extraction{
		"balance_sheet_agent": {"long_term_debt": 45000000.0},
		"note_loans_agent":    {"long_term_debt": 45500000.0},
	}

	mismatches := NewValidator().CrossValidate(results)

	require.Len(t, mismatches, 1)
	m := mismatches[0]
	assert.Equal(t, "long_term_debt", m.Field)
	assert.Equal(t, [2]string{"balance_sheet_agent", "note_loans_agent"}, m.Agents)
	assert.Equal(t, "warning", m.Severity)
	assert.InDelta(t, 500000.0, m.Difference, 1e-9)
}

func TestCrossValidate_WithinToleranceIsClean(t *testing.T) {
	results := map[string]model.Extraction{
		"balance_sheet_agent": {"long_term_debt": 45000000.0},
		"note_loans_agent":    {"long_term_debt": 45000900.0},
	}

	assert.Empty(t, NewValidator().CrossValidate(results))
}

func TestCrossValidate_ExactMatchField(t *testing.T) {
	results := map[string]model.Extraction{
		"property_agent":   {"property_designation": "Södermalm 1:12"},
		"governance_agent": {"property_designation": "Södermalm 1:13"},
	}

	mismatches := NewValidator().CrossValidate(results)

	require.Len(t, mismatches, 1)
	assert.Equal(t, "property_designation", mismatches[0].Field)
	assert.Zero(t, mismatches[0].Difference)
}

func TestCrossValidate_AbsentAgentsSkipped(t *testing.T) {
	results := map[string]model.Extraction{
		"balance_sheet_agent": {"long_term_debt": 45000000.0},
		// note_loans_agent absent
	}

	assert.Empty(t, NewValidator().CrossValidate(results))
}

func TestCrossValidate_NonNumericValuesSkipped(t *testing.T) {
	results := map[string]model.Extraction{
		"balance_sheet_agent": {"long_term_debt": "45 000 000"},
		"note_loans_agent":    {"long_term_debt": 99.0},
	}

	assert.Empty(t, NewValidator().CrossValidate(results))
}
