package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/arsredo/brf-coach/internal/config"
	"github.com/arsredo/brf-coach/internal/db"
	"github.com/arsredo/brf-coach/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot coaching-loop operations.
var preparedStatements = map[string]string{
	"start_session":      `INSERT INTO coaching_sessions (id, doc_id, agent_id, status, max_rounds, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"append_performance": `INSERT INTO coaching_performance (id, doc_id, agent_id, coaching_round, accuracy, coverage, strategy_used, improvement_delta, learning_phase, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"best_performance":   `SELECT id, doc_id, agent_id, coaching_round, accuracy, coverage, strategy_used, improvement_delta, learning_phase, created_at FROM coaching_performance WHERE agent_id = $1 ORDER BY accuracy DESC LIMIT 1`,
	"recent_performance": `SELECT id, doc_id, agent_id, coaching_round, accuracy, coverage, strategy_used, improvement_delta, learning_phase, created_at FROM coaching_performance WHERE agent_id = $1 ORDER BY created_at DESC LIMIT $2`,
	"distinct_docs":      `SELECT COUNT(DISTINCT doc_id) FROM coaching_performance`,
	"top_golden":         `SELECT id, doc_id, agent_id, extraction, accuracy_score, coverage_score, is_active, created_at FROM golden_examples WHERE agent_id = $1 AND is_active ORDER BY accuracy_score DESC LIMIT $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg config.PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg.MaxConns > 0 {
		maxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		minConns = poolCfg.MinConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS coaching_sessions (
	id               TEXT PRIMARY KEY,
	doc_id           TEXT NOT NULL,
	agent_id         TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'started',
	max_rounds       INT NOT NULL DEFAULT 5,
	initial_accuracy DOUBLE PRECISION,
	final_accuracy   DOUBLE PRECISION,
	improvement      DOUBLE PRECISION,
	failure_reason   TEXT,
	started_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	ended_at         TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS coaching_performance (
	id                TEXT PRIMARY KEY,
	doc_id            TEXT NOT NULL,
	agent_id          TEXT NOT NULL,
	coaching_round    INT NOT NULL DEFAULT 1,
	accuracy          DOUBLE PRECISION NOT NULL,
	coverage          DOUBLE PRECISION NOT NULL,
	strategy_used     TEXT NOT NULL,
	improvement_delta DOUBLE PRECISION NOT NULL DEFAULT 0,
	learning_phase    INT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS coaching_rounds (
	id         TEXT PRIMARY KEY,
	doc_id     TEXT NOT NULL,
	agent_id   TEXT NOT NULL,
	round      INT NOT NULL,
	extraction JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (doc_id, agent_id, round)
);

CREATE TABLE IF NOT EXISTS golden_examples (
	id             TEXT PRIMARY KEY,
	doc_id         TEXT NOT NULL,
	agent_id       TEXT NOT NULL,
	extraction     JSONB NOT NULL,
	accuracy_score DOUBLE PRECISION NOT NULL,
	coverage_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS learning_hints (
	id         TEXT PRIMARY KEY,
	agent_id   TEXT NOT NULL,
	category   TEXT NOT NULL,
	hint       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_agent ON coaching_sessions(agent_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON coaching_sessions(status);
CREATE INDEX IF NOT EXISTS idx_perf_agent_accuracy ON coaching_performance(agent_id, accuracy DESC);
CREATE INDEX IF NOT EXISTS idx_perf_agent_created ON coaching_performance(agent_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_perf_doc ON coaching_performance(doc_id);
CREATE INDEX IF NOT EXISTS idx_golden_agent_score ON golden_examples(agent_id, accuracy_score DESC);
CREATE INDEX IF NOT EXISTS idx_hints_agent ON learning_hints(agent_id, created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) StartSession(ctx context.Context, sess model.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO coaching_sessions (id, doc_id, agent_id, status, max_rounds, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.DocID, sess.AgentID, string(model.SessionStarted), sess.MaxRounds, sess.StartedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: start session %s", sess.ID)
	}
	return nil
}

func (s *PostgresStore) CompleteSession(ctx context.Context, sessionID string, initialAccuracy, finalAccuracy float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE coaching_sessions SET status = $1, initial_accuracy = $2, final_accuracy = $3, improvement = $4, ended_at = $5 WHERE id = $6 AND status = $7`,
		string(model.SessionCompleted), initialAccuracy, finalAccuracy, finalAccuracy-initialAccuracy,
		time.Now().UTC(), sessionID, string(model.SessionStarted),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete session %s", sessionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: session %s not open", sessionID)
	}
	return nil
}

func (s *PostgresStore) FailSession(ctx context.Context, sessionID, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE coaching_sessions SET status = $1, failure_reason = $2, ended_at = $3 WHERE id = $4 AND status = $5`,
		string(model.SessionFailed), reason, time.Now().UTC(), sessionID, string(model.SessionStarted),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail session %s", sessionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: session %s not open", sessionID)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, doc_id, agent_id, status, max_rounds, COALESCE(initial_accuracy, 0), COALESCE(final_accuracy, 0), COALESCE(improvement, 0), COALESCE(failure_reason, ''), started_at, ended_at FROM coaching_sessions WHERE id = $1`,
		sessionID,
	)
	sess, err := scanSession(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", sessionID)
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT id, doc_id, agent_id, status, max_rounds, COALESCE(initial_accuracy, 0), COALESCE(final_accuracy, 0), COALESCE(improvement, 0), COALESCE(failure_reason, ''), started_at, ended_at FROM coaching_sessions`
	var args []any
	var where []string

	if filter.AgentID != "" {
		args = append(args, filter.AgentID)
		where = append(where, fmt.Sprintf("agent_id = $%d", len(args)))
	}
	if filter.DocID != "" {
		args = append(args, filter.DocID)
		where = append(where, fmt.Sprintf("doc_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendPerformance(ctx context.Context, rec model.PerformanceRecord) error {
	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO coaching_performance (id, doc_id, agent_id, coaching_round, accuracy, coverage, strategy_used, improvement_delta, learning_phase, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, rec.DocID, rec.AgentID, rec.Round, rec.Accuracy, rec.Coverage,
		string(rec.Strategy), rec.Improvement, int(rec.Phase), createdAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: append performance")
	}
	return nil
}

func (s *PostgresStore) BestPerformance(ctx context.Context, agentID string) (*model.PerformanceRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, doc_id, agent_id, coaching_round, accuracy, coverage, strategy_used, improvement_delta, learning_phase, created_at FROM coaching_performance WHERE agent_id = $1 ORDER BY accuracy DESC LIMIT 1`,
		agentID,
	)
	rec, err := scanPerformance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: best performance %s", agentID)
	}
	return rec, nil
}

func (s *PostgresStore) RecentPerformance(ctx context.Context, agentID string, limit int) ([]model.PerformanceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, doc_id, agent_id, coaching_round, accuracy, coverage, strategy_used, improvement_delta, learning_phase, created_at FROM coaching_performance WHERE agent_id = $1 ORDER BY created_at DESC LIMIT $2`,
		agentID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: recent performance %s", agentID)
	}
	defer rows.Close()

	var out []model.PerformanceRecord
	for rows.Next() {
		rec, err := scanPerformance(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan performance")
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PerformanceTrend(ctx context.Context, agentID string, window time.Duration) (model.Trend, error) {
	cutoff := time.Now().UTC().Add(-window)
	var trend model.Trend
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(AVG(accuracy), 0), COALESCE(STDDEV_SAMP(accuracy), 0), COUNT(*) FROM coaching_performance WHERE agent_id = $1 AND created_at > $2`,
		agentID, cutoff,
	).Scan(&trend.MeanAccuracy, &trend.StddevAccuracy, &trend.RunCount)
	if err != nil {
		return model.Trend{}, eris.Wrapf(err, "postgres: performance trend %s", agentID)
	}
	return trend, nil
}

func (s *PostgresStore) DistinctDocumentCount(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT doc_id) FROM coaching_performance`).Scan(&count)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: distinct document count")
	}
	return count, nil
}

func (s *PostgresStore) SaveRoundExtraction(ctx context.Context, docID, agentID string, round int, extraction model.Extraction) error {
	blob, err := json.Marshal(extraction)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal extraction")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO coaching_rounds (id, doc_id, agent_id, round, extraction, created_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (doc_id, agent_id, round) DO UPDATE SET extraction = EXCLUDED.extraction`,
		uuid.New().String(), docID, agentID, round, blob, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save round %d extraction", round)
	}
	return nil
}

func (s *PostgresStore) GetRoundExtraction(ctx context.Context, docID, agentID string, round int) (model.Extraction, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx,
		`SELECT extraction FROM coaching_rounds WHERE doc_id = $1 AND agent_id = $2 AND round = $3`,
		docID, agentID, round,
	).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: no stored extraction for round %d", round)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get round %d extraction", round)
	}

	var ex model.Extraction
	if err := json.Unmarshal(blob, &ex); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal extraction")
	}
	return ex, nil
}

func (s *PostgresStore) AddGoldenExample(ctx context.Context, ex model.GoldenExample) error {
	id := ex.ID
	if id == "" {
		id = uuid.New().String()
	}
	blob, err := json.Marshal(ex.Extraction)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal golden extraction")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO golden_examples (id, doc_id, agent_id, extraction, accuracy_score, coverage_score, is_active, created_at) VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)`,
		id, ex.DocID, ex.AgentID, blob, ex.Accuracy, ex.Coverage, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: add golden example")
	}
	return nil
}

func (s *PostgresStore) TopGoldenExamples(ctx context.Context, agentID string, limit int) ([]model.GoldenExample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, doc_id, agent_id, extraction, accuracy_score, coverage_score, is_active, created_at FROM golden_examples WHERE agent_id = $1 AND is_active ORDER BY accuracy_score DESC LIMIT $2`,
		agentID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: top golden examples %s", agentID)
	}
	defer rows.Close()

	var out []model.GoldenExample
	for rows.Next() {
		var ex model.GoldenExample
		var blob []byte
		if err := rows.Scan(&ex.ID, &ex.DocID, &ex.AgentID, &blob, &ex.Accuracy, &ex.Coverage, &ex.Active, &ex.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan golden example")
		}
		if err := json.Unmarshal(blob, &ex.Extraction); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal golden extraction")
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddLearningHint(ctx context.Context, hint model.LearningHint) error {
	id := hint.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO learning_hints (id, agent_id, category, hint, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, hint.AgentID, hint.Category, hint.Hint, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: add learning hint")
	}
	return nil
}

func (s *PostgresStore) HintsForAgent(ctx context.Context, agentID string, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT hint FROM learning_hints WHERE agent_id = $1 ORDER BY created_at DESC LIMIT $2`,
		agentID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: hints for %s", agentID)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, eris.Wrap(err, "postgres: scan hint")
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// scanSession reads one session row from either QueryRow or Query.
func scanSession(row pgx.Row) (*model.Session, error) {
	var sess model.Session
	var status string
	if err := row.Scan(&sess.ID, &sess.DocID, &sess.AgentID, &status, &sess.MaxRounds,
		&sess.InitialAccuracy, &sess.FinalAccuracy, &sess.Improvement,
		&sess.FailureReason, &sess.StartedAt, &sess.EndedAt); err != nil {
		return nil, err
	}
	sess.Status = model.SessionStatus(status)
	return &sess, nil
}

func scanPerformance(row pgx.Row) (*model.PerformanceRecord, error) {
	var rec model.PerformanceRecord
	var strategy string
	var phase int
	if err := row.Scan(&rec.ID, &rec.DocID, &rec.AgentID, &rec.Round, &rec.Accuracy,
		&rec.Coverage, &strategy, &rec.Improvement, &phase, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Strategy = model.Strategy(strategy)
	rec.Phase = model.Phase(phase)
	return &rec, nil
}
