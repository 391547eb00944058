package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/arsredo/brf-coach/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Suitable for
// single-machine runs and local development; Postgres is the default.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS coaching_sessions (
	id               TEXT PRIMARY KEY,
	doc_id           TEXT NOT NULL,
	agent_id         TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'started',
	max_rounds       INTEGER NOT NULL DEFAULT 5,
	initial_accuracy REAL,
	final_accuracy   REAL,
	improvement      REAL,
	failure_reason   TEXT,
	started_at       DATETIME NOT NULL,
	ended_at         DATETIME
);

CREATE TABLE IF NOT EXISTS coaching_performance (
	id                TEXT PRIMARY KEY,
	doc_id            TEXT NOT NULL,
	agent_id          TEXT NOT NULL,
	coaching_round    INTEGER NOT NULL DEFAULT 1,
	accuracy          REAL NOT NULL,
	coverage          REAL NOT NULL,
	strategy_used     TEXT NOT NULL,
	improvement_delta REAL NOT NULL DEFAULT 0,
	learning_phase    INTEGER NOT NULL,
	created_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS coaching_rounds (
	id         TEXT PRIMARY KEY,
	doc_id     TEXT NOT NULL,
	agent_id   TEXT NOT NULL,
	round      INTEGER NOT NULL,
	extraction TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (doc_id, agent_id, round)
);

CREATE TABLE IF NOT EXISTS golden_examples (
	id             TEXT PRIMARY KEY,
	doc_id         TEXT NOT NULL,
	agent_id       TEXT NOT NULL,
	extraction     TEXT NOT NULL,
	accuracy_score REAL NOT NULL,
	coverage_score REAL NOT NULL DEFAULT 0,
	is_active      INTEGER NOT NULL DEFAULT 1,
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS learning_hints (
	id         TEXT PRIMARY KEY,
	agent_id   TEXT NOT NULL,
	category   TEXT NOT NULL,
	hint       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_agent ON coaching_sessions(agent_id);
CREATE INDEX IF NOT EXISTS idx_perf_agent_accuracy ON coaching_performance(agent_id, accuracy DESC);
CREATE INDEX IF NOT EXISTS idx_perf_agent_created ON coaching_performance(agent_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_golden_agent_score ON golden_examples(agent_id, accuracy_score DESC);
CREATE INDEX IF NOT EXISTS idx_hints_agent ON learning_hints(agent_id, created_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) StartSession(ctx context.Context, sess model.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO coaching_sessions (id, doc_id, agent_id, status, max_rounds, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.DocID, sess.AgentID, string(model.SessionStarted), sess.MaxRounds, sess.StartedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: start session %s", sess.ID)
	}
	return nil
}

func (s *SQLiteStore) CompleteSession(ctx context.Context, sessionID string, initialAccuracy, finalAccuracy float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE coaching_sessions SET status = ?, initial_accuracy = ?, final_accuracy = ?, improvement = ?, ended_at = ? WHERE id = ? AND status = ?`,
		string(model.SessionCompleted), initialAccuracy, finalAccuracy, finalAccuracy-initialAccuracy,
		time.Now().UTC(), sessionID, string(model.SessionStarted),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete session %s", sessionID)
	}
	return checkOpenSession(res, sessionID)
}

func (s *SQLiteStore) FailSession(ctx context.Context, sessionID, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE coaching_sessions SET status = ?, failure_reason = ?, ended_at = ? WHERE id = ? AND status = ?`,
		string(model.SessionFailed), reason, time.Now().UTC(), sessionID, string(model.SessionStarted),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail session %s", sessionID)
	}
	return checkOpenSession(res, sessionID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, doc_id, agent_id, status, max_rounds, COALESCE(initial_accuracy, 0), COALESCE(final_accuracy, 0), COALESCE(improvement, 0), COALESCE(failure_reason, ''), started_at, ended_at FROM coaching_sessions WHERE id = ?`,
		sessionID,
	)
	var sess model.Session
	var status string
	err := row.Scan(&sess.ID, &sess.DocID, &sess.AgentID, &status, &sess.MaxRounds,
		&sess.InitialAccuracy, &sess.FinalAccuracy, &sess.Improvement,
		&sess.FailureReason, &sess.StartedAt, &sess.EndedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", sessionID)
	}
	sess.Status = model.SessionStatus(status)
	return &sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT id, doc_id, agent_id, status, max_rounds, COALESCE(initial_accuracy, 0), COALESCE(final_accuracy, 0), COALESCE(improvement, 0), COALESCE(failure_reason, ''), started_at, ended_at FROM coaching_sessions WHERE 1=1`
	var args []any
	if filter.AgentID != "" {
		query += " AND agent_id = ?"
		args = append(args, filter.AgentID)
	}
	if filter.DocID != "" {
		query += " AND doc_id = ?"
		args = append(args, filter.DocID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var sess model.Session
		var status string
		if err := rows.Scan(&sess.ID, &sess.DocID, &sess.AgentID, &status, &sess.MaxRounds,
			&sess.InitialAccuracy, &sess.FinalAccuracy, &sess.Improvement,
			&sess.FailureReason, &sess.StartedAt, &sess.EndedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sess.Status = model.SessionStatus(status)
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendPerformance(ctx context.Context, rec model.PerformanceRecord) error {
	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO coaching_performance (id, doc_id, agent_id, coaching_round, accuracy, coverage, strategy_used, improvement_delta, learning_phase, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.DocID, rec.AgentID, rec.Round, rec.Accuracy, rec.Coverage,
		string(rec.Strategy), rec.Improvement, int(rec.Phase), createdAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: append performance")
	}
	return nil
}

func (s *SQLiteStore) BestPerformance(ctx context.Context, agentID string) (*model.PerformanceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, doc_id, agent_id, coaching_round, accuracy, coverage, strategy_used, improvement_delta, learning_phase, created_at FROM coaching_performance WHERE agent_id = ? ORDER BY accuracy DESC LIMIT 1`,
		agentID,
	)
	rec, err := scanSQLitePerformance(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: best performance %s", agentID)
	}
	return rec, nil
}

func (s *SQLiteStore) RecentPerformance(ctx context.Context, agentID string, limit int) ([]model.PerformanceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc_id, agent_id, coaching_round, accuracy, coverage, strategy_used, improvement_delta, learning_phase, created_at FROM coaching_performance WHERE agent_id = ? ORDER BY created_at DESC LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: recent performance %s", agentID)
	}
	defer rows.Close()

	var out []model.PerformanceRecord
	for rows.Next() {
		rec, err := scanSQLitePerformance(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan performance")
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// PerformanceTrend computes mean and sample stddev in Go; SQLite has no
// built-in STDDEV.
func (s *SQLiteStore) PerformanceTrend(ctx context.Context, agentID string, window time.Duration) (model.Trend, error) {
	cutoff := time.Now().UTC().Add(-window)
	rows, err := s.db.QueryContext(ctx,
		`SELECT accuracy FROM coaching_performance WHERE agent_id = ? AND created_at > ?`,
		agentID, cutoff,
	)
	if err != nil {
		return model.Trend{}, eris.Wrapf(err, "sqlite: performance trend %s", agentID)
	}
	defer rows.Close()

	var accuracies []float64
	for rows.Next() {
		var a float64
		if err := rows.Scan(&a); err != nil {
			return model.Trend{}, eris.Wrap(err, "sqlite: scan accuracy")
		}
		accuracies = append(accuracies, a)
	}
	if err := rows.Err(); err != nil {
		return model.Trend{}, eris.Wrap(err, "sqlite: trend rows")
	}

	trend := model.Trend{RunCount: len(accuracies)}
	if len(accuracies) == 0 {
		return trend, nil
	}
	var sum float64
	for _, a := range accuracies {
		sum += a
	}
	trend.MeanAccuracy = sum / float64(len(accuracies))
	if len(accuracies) > 1 {
		var sq float64
		for _, a := range accuracies {
			d := a - trend.MeanAccuracy
			sq += d * d
		}
		trend.StddevAccuracy = math.Sqrt(sq / float64(len(accuracies)-1))
	}
	return trend, nil
}

func (s *SQLiteStore) DistinctDocumentCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT doc_id) FROM coaching_performance`).Scan(&count)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: distinct document count")
	}
	return count, nil
}

func (s *SQLiteStore) SaveRoundExtraction(ctx context.Context, docID, agentID string, round int, extraction model.Extraction) error {
	blob, err := json.Marshal(extraction)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal extraction")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO coaching_rounds (id, doc_id, agent_id, round, extraction, created_at) VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (doc_id, agent_id, round) DO UPDATE SET extraction = excluded.extraction`,
		uuid.New().String(), docID, agentID, round, string(blob), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save round %d extraction", round)
	}
	return nil
}

func (s *SQLiteStore) GetRoundExtraction(ctx context.Context, docID, agentID string, round int) (model.Extraction, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT extraction FROM coaching_rounds WHERE doc_id = ? AND agent_id = ? AND round = ?`,
		docID, agentID, round,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("sqlite: no stored extraction for round %d", round)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get round %d extraction", round)
	}

	var ex model.Extraction
	if err := json.Unmarshal([]byte(blob), &ex); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal extraction")
	}
	return ex, nil
}

func (s *SQLiteStore) AddGoldenExample(ctx context.Context, ex model.GoldenExample) error {
	id := ex.ID
	if id == "" {
		id = uuid.New().String()
	}
	blob, err := json.Marshal(ex.Extraction)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal golden extraction")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO golden_examples (id, doc_id, agent_id, extraction, accuracy_score, coverage_score, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		id, ex.DocID, ex.AgentID, string(blob), ex.Accuracy, ex.Coverage, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: add golden example")
	}
	return nil
}

func (s *SQLiteStore) TopGoldenExamples(ctx context.Context, agentID string, limit int) ([]model.GoldenExample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc_id, agent_id, extraction, accuracy_score, coverage_score, is_active, created_at FROM golden_examples WHERE agent_id = ? AND is_active = 1 ORDER BY accuracy_score DESC LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: top golden examples %s", agentID)
	}
	defer rows.Close()

	var out []model.GoldenExample
	for rows.Next() {
		var ex model.GoldenExample
		var blob string
		if err := rows.Scan(&ex.ID, &ex.DocID, &ex.AgentID, &blob, &ex.Accuracy, &ex.Coverage, &ex.Active, &ex.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan golden example")
		}
		if err := json.Unmarshal([]byte(blob), &ex.Extraction); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal golden extraction")
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddLearningHint(ctx context.Context, hint model.LearningHint) error {
	id := hint.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learning_hints (id, agent_id, category, hint, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, hint.AgentID, hint.Category, hint.Hint, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: add learning hint")
	}
	return nil
}

func (s *SQLiteStore) HintsForAgent(ctx context.Context, agentID string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hint FROM learning_hints WHERE agent_id = ? ORDER BY created_at DESC LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: hints for %s", agentID)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan hint")
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func checkOpenSession(res sql.Result, sessionID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: session %s not open", sessionID)
	}
	return nil
}

func scanSQLitePerformance(scan func(dest ...any) error) (*model.PerformanceRecord, error) {
	var rec model.PerformanceRecord
	var strategy string
	var phase int
	if err := scan(&rec.ID, &rec.DocID, &rec.AgentID, &rec.Round, &rec.Accuracy,
		&rec.Coverage, &strategy, &rec.Improvement, &phase, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Strategy = model.Strategy(strategy)
	rec.Phase = model.Phase(phase)
	return &rec, nil
}
