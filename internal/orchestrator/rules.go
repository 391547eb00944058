// Package orchestrator maps report sections to extraction agents, plans
// execution batches, validates agent outputs structurally, cross-checks
// shared fields between agents, and learns hints from failures.
package orchestrator

import (
	"encoding/json"

	"github.com/arsredo/brf-coach/internal/model"
)

// SEK tolerances for accounting identities. Swedish reports round to
// whole kronor and sometimes to thousands, so exact sums rarely hold.
const (
	balanceTolerance  = 1000
	cashFlowTolerance = 100
	incomeTolerance   = 1000
	loanSumTolerance  = 1000
)

// minBoardMembers is the Swedish statutory minimum for a BRF board.
const minBoardMembers = 3

// Rule is a structural validation on a single agent's output. Check
// returns true when the output satisfies the rule; absent fields count
// as zero, matching how the reports themselves omit empty lines.
type Rule struct {
	Name  string
	Check func(output model.Extraction) bool
}

// ruleRegistry maps agent IDs to the rules that apply to their output.
// Built once; read-only afterwards.
func ruleRegistry() map[string][]Rule {
	return map[string][]Rule{
		"balance_sheet_agent": {{
			Name: "balance_check",
			Check: func(out model.Extraction) bool {
				assets := numeric(out["total_assets"])
				equity := numeric(out["total_equity"])
				liabilities := numeric(out["total_liabilities"])
				return abs(assets-(equity+liabilities)) <= balanceTolerance
			},
		}},
		"cash_flow_agent": {{
			Name: "cash_flow_check",
			Check: func(out model.Extraction) bool {
				opening := numeric(out["opening_cash"])
				flow := numeric(out["total_cash_flow"])
				closing := numeric(out["closing_cash"])
				return abs(opening+flow-closing) <= cashFlowTolerance
			},
		}},
		"income_statement_agent": {{
			Name: "income_check",
			Check: func(out model.Extraction) bool {
				revenues := numeric(out["total_revenues"])
				costs := numeric(out["total_costs"])
				net := numeric(out["net_income"])
				return abs(revenues-costs-net) <= incomeTolerance
			},
		}},
		"governance_agent": {{
			Name: "board_members_check",
			Check: func(out model.Extraction) bool {
				return listLen(out["board_members"]) >= minBoardMembers
			},
		}},
		"note_loans_agent": {{
			Name: "loan_total_check",
			Check: func(out model.Extraction) bool {
				loans, ok := out["loans"].([]any)
				if !ok {
					// No loan list extracted: nothing to reconcile.
					return true
				}
				var sum float64
				for _, loan := range loans {
					switch v := loan.(type) {
					case map[string]any:
						sum += numeric(v["amount"])
					default:
						sum += numeric(v)
					}
				}
				return abs(sum-numeric(out["total_loans"])) <= loanSumTolerance
			},
		}},
	}
}

// crossCheck describes one shared-field agreement check between two
// agents. ExactMatch compares structurally; otherwise numeric within
// Tolerance.
type crossCheck struct {
	Agents     [2]string
	Field      string
	Tolerance  float64
	ExactMatch bool
}

func crossChecks() []crossCheck {
	return []crossCheck{
		{Agents: [2]string{"balance_sheet_agent", "note_loans_agent"}, Field: "long_term_debt", Tolerance: 1000},
		{Agents: [2]string{"income_statement_agent", "note_revenue_agent"}, Field: "total_revenues", Tolerance: 1000},
		{Agents: [2]string{"property_agent", "governance_agent"}, Field: "property_designation", ExactMatch: true},
	}
}

// numeric coerces extracted values to float64, treating anything
// non-numeric (including nil and absent fields) as zero.
func numeric(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// isNumeric reports whether a value carries a usable number. Cross-field
// tolerance checks skip silently when either side is non-numeric.
func isNumeric(v any) bool {
	switch n := v.(type) {
	case float64, float32, int, int64:
		return true
	case json.Number:
		_, err := n.Float64()
		return err == nil
	default:
		return false
	}
}

func listLen(v any) int {
	switch l := v.(type) {
	case []any:
		return len(l)
	case []string:
		return len(l)
	case []map[string]any:
		return len(l)
	default:
		return 0
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
