package orchestrator

import (
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/arsredo/brf-coach/internal/model"
)

// emptyFieldCutoff fails validation when more than this fraction of the
// expected fields came back empty.
const emptyFieldCutoff = 0.5

// Validator checks agent outputs against expected fields and the
// structural rule registry, and cross-checks shared fields between
// agents. Stateless after construction.
type Validator struct {
	rules  map[string][]Rule
	checks []crossCheck
}

// NewValidator builds a validator with the standard BRF rule set.
func NewValidator() *Validator {
	return &Validator{
		rules:  ruleRegistry(),
		checks: crossChecks(),
	}
}

// Validate checks one agent's output. It returns whether the output is
// acceptable plus the full list of issues found; an empty output
// short-circuits since nothing else is checkable.
func (v *Validator) Validate(agentID string, output model.Extraction, expectedFields []string) (bool, []string) {
	var issues []string

	if output.IsEmpty() {
		issues = append(issues, fmt.Sprintf("Empty output from %s", agentID))
		return false, issues
	}

	var missing []string
	var empty []string
	for _, field := range expectedFields {
		val, ok := output[field]
		switch {
		case !ok:
			missing = append(missing, field)
		case !model.NonEmpty(val) || numeric(val) == 0 && isNumeric(val):
			empty = append(empty, field)
		}
	}

	if len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("Missing fields: %s", strings.Join(missing, ", ")))
	}
	if len(expectedFields) > 0 && float64(len(empty)) > float64(len(expectedFields))*emptyFieldCutoff {
		issues = append(issues, fmt.Sprintf("Too many empty fields: %s", strings.Join(empty, ", ")))
	}

	for _, rule := range v.rules[agentID] {
		if !rule.Check(output) {
			issues = append(issues, fmt.Sprintf("Failed validation: %s", rule.Name))
		}
	}

	if len(issues) > 0 {
		zap.L().Debug("orchestrator: validation issues",
			zap.String("agent_id", agentID),
			zap.Strings("issues", issues),
		)
	}
	return len(issues) == 0, issues
}

// CrossValidate compares shared fields across agents and reports every
// disagreement. Checks whose agents are absent from the result set are
// skipped silently; partial runs are normal.
func (v *Validator) CrossValidate(results map[string]model.Extraction) []model.Mismatch {
	var mismatches []model.Mismatch

	for _, check := range v.checks {
		a, okA := results[check.Agents[0]]
		b, okB := results[check.Agents[1]]
		if !okA || !okB {
			continue
		}
		valA := a[check.Field]
		valB := b[check.Field]

		if check.ExactMatch {
			if !reflect.DeepEqual(valA, valB) {
				mismatches = append(mismatches, model.Mismatch{
					Agents:   check.Agents,
					Field:    check.Field,
					Values:   [2]any{valA, valB},
					Severity: "warning",
				})
			}
			continue
		}

		if !isNumeric(valA) || !isNumeric(valB) {
			continue
		}
		diff := abs(numeric(valA) - numeric(valB))
		if diff > check.Tolerance {
			mismatches = append(mismatches, model.Mismatch{
				Agents:     check.Agents,
				Field:      check.Field,
				Values:     [2]any{valA, valB},
				Severity:   "warning",
				Difference: diff,
			})
		}
	}

	if len(mismatches) > 0 {
		zap.L().Info("orchestrator: cross-validation mismatches",
			zap.Int("count", len(mismatches)),
		)
	}
	return mismatches
}
