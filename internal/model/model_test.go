package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	for _, valid := range []string{"maintain", "refine", "explore", "revert"} {
		s, err := ParseStrategy(valid)
		require.NoError(t, err, valid)
		assert.Equal(t, Strategy(valid), s)
	}

	for _, invalid := range []string{"", "Maintain", "retry", "REVERT", "panic"} {
		_, err := ParseStrategy(invalid)
		assert.Error(t, err, "%q must be rejected", invalid)
	}
}

func TestExtractionIsEmpty(t *testing.T) {
	assert.True(t, Extraction(nil).IsEmpty())
	assert.True(t, Extraction{}.IsEmpty())
	assert.False(t, Extraction{"k": nil}.IsEmpty(), "a present key counts even with a nil value")
}

func TestExtractionClone(t *testing.T) {
	orig := Extraction{"chairman": "Anna"}
	clone := orig.Clone()
	clone["chairman"] = "Björn"

	assert.Equal(t, "Anna", orig["chairman"])
	assert.Nil(t, Extraction(nil).Clone())
}

func TestNonEmpty(t *testing.T) {
	empty := []any{nil, "", 0, int64(0), 0.0, float32(0), false, []any{}, []string{}, map[string]any{}}
	for _, v := range empty {
		assert.False(t, NonEmpty(v), "%#v", v)
	}

	nonEmpty := []any{"x", 1, int64(-2), 0.5, true, []any{1}, []string{"a"}, map[string]any{"k": 1}}
	for _, v := range nonEmpty {
		assert.True(t, NonEmpty(v), "%#v", v)
	}
}

func TestHistoricalContextAverages(t *testing.T) {
	var empty HistoricalContext
	assert.Zero(t, empty.RecentAverage())
	assert.Zero(t, empty.BestAccuracy())

	h := HistoricalContext{
		BestEver:   &PerformanceRecord{Accuracy: 0.95},
		RecentRuns: []PerformanceRecord{{Accuracy: 0.8}, {Accuracy: 0.9}},
	}
	assert.InDelta(t, 0.85, h.RecentAverage(), 1e-9)
	assert.Equal(t, 0.95, h.BestAccuracy())
}

func TestPhaseStrings(t *testing.T) {
	assert.Equal(t, "exploration", PhaseExploration.String())
	assert.Equal(t, "golden", PhaseGolden.String())
	assert.Equal(t, "unknown", Phase(99).String())
	assert.NotEmpty(t, PhaseConvergence.Goal())
}
