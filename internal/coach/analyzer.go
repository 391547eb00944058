// Package coach implements the reinforced coaching loop: performance
// analysis, phase-gated decision-making, and the session state machine.
package coach

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/arsredo/brf-coach/internal/model"
)

// maxErrorEntries caps the error list on a performance result.
const maxErrorEntries = 10

// lowCoverageFloor marks self-evaluated extractions as suspect below it.
const lowCoverageFloor = 0.5

// defaultSelfEvalDiscount scales coverage into estimated accuracy when no
// ground truth exists. A heuristic carried from the original scoring
// model, not a derived constant; override via CoachConfig.
const defaultSelfEvalDiscount = 0.8

// Analyzer scores an extraction against ground truth, or self-evaluates
// on completeness alone when none is available. Stateless; one instance
// can serve concurrent sessions.
type Analyzer struct {
	selfEvalDiscount float64
}

// NewAnalyzer creates an Analyzer. discount <= 0 selects the default.
func NewAnalyzer(discount float64) *Analyzer {
	if discount <= 0 {
		discount = defaultSelfEvalDiscount
	}
	return &Analyzer{selfEvalDiscount: discount}
}

// Analyze computes performance metrics for one extraction. Both arguments
// may be nil or empty; the result degrades to zeros with an explanatory
// error string, never a panic.
func (a *Analyzer) Analyze(extraction, groundTruth model.Extraction) model.Performance {
	if groundTruth.IsEmpty() {
		return a.selfEvaluate(extraction)
	}

	truthKeys := sortedKeys(groundTruth)

	correct := 0
	matched := 0
	var errs []string
	var missing []string
	for _, key := range truthKeys {
		v, ok := extraction[key]
		if !ok {
			missing = append(missing, key)
			errs = append(errs, "Missing field: "+key)
			continue
		}
		matched++
		if valuesEqual(v, groundTruth[key]) {
			correct++
		} else {
			errs = append(errs, "Incorrect value for "+key)
		}
	}

	if extraction.IsEmpty() {
		errs = append([]string{"Empty extraction"}, errs...)
	}
	if len(errs) > maxErrorEntries {
		errs = errs[:maxErrorEntries]
	}

	accuracy := ratio(correct, len(truthKeys))
	precision := ratio(correct, len(extraction))
	recall := ratio(correct, len(truthKeys))

	return model.Performance{
		Accuracy:      accuracy,
		Coverage:      ratio(matched, len(truthKeys)),
		Precision:     precision,
		Recall:        recall,
		F1Score:       f1(precision, recall),
		Errors:        errs,
		MissingFields: missing,
	}
}

// selfEvaluate estimates quality from completeness alone. Accuracy is
// coverage discounted by selfEvalDiscount since no correctness signal
// exists.
func (a *Analyzer) selfEvaluate(extraction model.Extraction) model.Performance {
	nonEmpty := 0
	for _, v := range extraction {
		if model.NonEmpty(v) {
			nonEmpty++
		}
	}
	coverage := ratio(nonEmpty, len(extraction))
	accuracy := coverage * a.selfEvalDiscount

	var errs []string
	if extraction.IsEmpty() {
		errs = append(errs, "Empty extraction")
	} else if coverage < lowCoverageFloor {
		errs = append(errs, fmt.Sprintf("Low coverage: %.1f%%", coverage*100))
	}

	return model.Performance{
		Accuracy:  accuracy,
		Coverage:  coverage,
		Precision: accuracy,
		Recall:    coverage,
		F1Score:   accuracy,
		Errors:    errs,
	}
}

// ratio returns num/den, or 0 when the denominator is 0. Never NaN.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// f1 is the harmonic mean of precision and recall, 0 when both are 0.
func f1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// valuesEqual is strict structural equality. Numeric near-misses count as
// failures here; tolerance-based comparison belongs to the orchestrator's
// structural rules, not the scoring layer.
func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func sortedKeys(m model.Extraction) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
