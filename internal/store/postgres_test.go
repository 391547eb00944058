package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsredo/brf-coach/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStartSession(t *testing.T) {
	st, mock := newMockStore(t)

	started := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO coaching_sessions`)).
		WithArgs("sess-1", "doc-1", "governance_agent", "started", 5, started).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.StartSession(context.Background(), model.Session{
		ID:        "sess-1",
		DocID:     "doc-1",
		AgentID:   "governance_agent",
		Status:    model.SessionStarted,
		MaxRounds: 5,
		StartedAt: started,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteSession(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE coaching_sessions`)).
		WithArgs("completed", 0.6, 0.9, pgxmock.AnyArg(), pgxmock.AnyArg(), "sess-1", "started").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.CompleteSession(context.Background(), "sess-1", 0.6, 0.9)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteSession_AlreadyClosed(t *testing.T) {
	st, mock := newMockStore(t)

	// The status guard means a closed session updates zero rows.
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE coaching_sessions`)).
		WithArgs("completed", 0.6, 0.9, pgxmock.AnyArg(), pgxmock.AnyArg(), "sess-1", "started").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.CompleteSession(context.Background(), "sess-1", 0.6, 0.9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not open")
}

func TestPostgresFailSession_AlreadyClosed(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE coaching_sessions`)).
		WithArgs("failed", "advisory timeout", pgxmock.AnyArg(), "sess-1", "started").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.FailSession(context.Background(), "sess-1", "advisory timeout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not open")
}

func TestPostgresBestPerformance_NoHistory(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, doc_id, agent_id, coaching_round`)).
		WithArgs("governance_agent").
		WillReturnError(pgx.ErrNoRows)

	rec, err := st.BestPerformance(context.Background(), "governance_agent")
	require.NoError(t, err, "no history is not an error")
	assert.Nil(t, rec)
}

func TestPostgresBestPerformance(t *testing.T) {
	st, mock := newMockStore(t)

	created := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "doc_id", "agent_id", "coaching_round", "accuracy", "coverage",
		"strategy_used", "improvement_delta", "learning_phase", "created_at",
	}).AddRow("rec-1", "doc-1", "governance_agent", 2, 0.92, 0.95, "refine", 0.05, 2, created)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, doc_id, agent_id, coaching_round`)).
		WithArgs("governance_agent").
		WillReturnRows(rows)

	rec, err := st.BestPerformance(context.Background(), "governance_agent")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 0.92, rec.Accuracy)
	assert.Equal(t, model.StrategyRefine, rec.Strategy)
	assert.Equal(t, model.PhaseOptimization, rec.Phase)
}

func TestPostgresDistinctDocumentCount(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(DISTINCT doc_id) FROM coaching_performance`)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(151))

	count, err := st.DistinctDocumentCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 151, count)
}

func TestPostgresRoundExtractionRoundtrip(t *testing.T) {
	st, mock := newMockStore(t)

	extraction := model.Extraction{"chairman": "Anna Lindqvist", "apartments_count": 42.0}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO coaching_rounds`)).
		WithArgs(pgxmock.AnyArg(), "doc-1", "governance_agent", 1, []byte(`{"apartments_count":42,"chairman":"Anna Lindqvist"}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.SaveRoundExtraction(context.Background(), "doc-1", "governance_agent", 1, extraction))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT extraction FROM coaching_rounds`)).
		WithArgs("doc-1", "governance_agent", 1).
		WillReturnRows(pgxmock.NewRows([]string{"extraction"}).
			AddRow([]byte(`{"apartments_count":42,"chairman":"Anna Lindqvist"}`)))

	got, err := st.GetRoundExtraction(context.Background(), "doc-1", "governance_agent", 1)
	require.NoError(t, err)
	assert.Equal(t, extraction, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetRoundExtraction_Missing(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT extraction FROM coaching_rounds`)).
		WithArgs("doc-1", "governance_agent", 3).
		WillReturnError(pgx.ErrNoRows)

	_, err := st.GetRoundExtraction(context.Background(), "doc-1", "governance_agent", 3)
	require.Error(t, err, "a missing revert target is an error, unlike missing history")
}

func TestPostgresListSessions_FilterBuilding(t *testing.T) {
	st, mock := newMockStore(t)

	started := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "doc_id", "agent_id", "status", "max_rounds",
		"initial_accuracy", "final_accuracy", "improvement", "failure_reason",
		"started_at", "ended_at",
	}).AddRow("sess-1", "doc-1", "governance_agent", "completed", 5, 0.6, 0.9, 0.3, "", started, (*time.Time)(nil))

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE agent_id = $1 AND status = $2 ORDER BY started_at DESC LIMIT $3`)).
		WithArgs("governance_agent", "completed", 10).
		WillReturnRows(rows)

	sessions, err := st.ListSessions(context.Background(), SessionFilter{
		AgentID: "governance_agent",
		Status:  model.SessionCompleted,
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, model.SessionCompleted, sessions[0].Status)
	assert.Equal(t, 0.3, sessions[0].Improvement)
}

func TestPostgresTopGoldenExamples(t *testing.T) {
	st, mock := newMockStore(t)

	created := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "doc_id", "agent_id", "extraction", "accuracy_score", "coverage_score", "is_active", "created_at",
	}).
		AddRow("g-1", "doc-1", "governance_agent", []byte(`{"chairman":"Anna"}`), 0.98, 1.0, true, created).
		AddRow("g-2", "doc-2", "governance_agent", []byte(`{"chairman":"Björn"}`), 0.96, 0.9, true, created)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM golden_examples`)).
		WithArgs("governance_agent", 3).
		WillReturnRows(rows)

	examples, err := st.TopGoldenExamples(context.Background(), "governance_agent", 3)
	require.NoError(t, err)
	require.Len(t, examples, 2)
	assert.Equal(t, model.Extraction{"chairman": "Anna"}, examples[0].Extraction)
	assert.True(t, examples[0].Active)
}

func TestPostgresAppendPerformance_GeneratesID(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO coaching_performance`)).
		WithArgs(pgxmock.AnyArg(), "doc-1", "governance_agent", 1, 0.85, 0.9, "refine", 0.1, 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.AppendPerformance(context.Background(), model.PerformanceRecord{
		DocID:       "doc-1",
		AgentID:     "governance_agent",
		Round:       1,
		Accuracy:    0.85,
		Coverage:    0.9,
		Strategy:    model.StrategyRefine,
		Improvement: 0.1,
		Phase:       model.PhaseExploration,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
