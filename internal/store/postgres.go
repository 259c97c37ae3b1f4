package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sdi-cli/internal/db"
	"github.com/sells-group/sdi-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const pgRunColumns = `id, survey, params, status, summary, error, created_at, updated_at`

// preparedStatements lists queries prepared on each new connection.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, survey, params, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"get_run":           `SELECT ` + pgRunColumns + ` FROM runs WHERE id = $1`,
	"list_segments":     `SELECT ` + strings.Join(segmentColumns[1:], ", ") + ` FROM segment_metrics WHERE run_id = $1 ORDER BY segment`,
	"list_phases":       `SELECT name, duration_ms, detail FROM run_phases WHERE run_id = $1 ORDER BY seq`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
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
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	survey     JSONB NOT NULL,
	params     JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	summary    JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS segment_metrics (
	run_id                TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	segment               INTEGER NOT NULL,
	sta                   TEXT NOT NULL,
	start_m               DOUBLE PRECISION NOT NULL,
	end_m                 DOUBLE PRECISION NOT NULL,
	area_m2               DOUBLE PRECISION NOT NULL,
	percent_cracked_area  DOUBLE PRECISION NOT NULL,
	mean_crack_width_mm   DOUBLE PRECISION NOT NULL,
	pothole_count         INTEGER NOT NULL,
	mean_rutting_depth_cm DOUBLE PRECISION NOT NULL,
	sdi1                  DOUBLE PRECISION NOT NULL,
	sdi2                  DOUBLE PRECISION NOT NULL,
	sdi3                  DOUBLE PRECISION NOT NULL,
	sdi4                  DOUBLE PRECISION NOT NULL,
	condition             TEXT NOT NULL,
	fallbacks             TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, segment)
);

CREATE TABLE IF NOT EXISTS run_phases (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	name        TEXT NOT NULL,
	duration_ms BIGINT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_location ON runs((survey->>'location'));
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, survey model.Survey, params model.RunParams) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	surveyJSON, err := json.Marshal(survey)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal survey")
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal params")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, survey, params, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, surveyJSON, paramsJSON, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Survey:    survey,
		Params:    params,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("run", runID)
	}
	return nil
}

// CompleteRun marks the run complete, replaces its segment rows (upserted
// keyed by (run_id, segment)) and rewrites its phases through COPY, all in
// one transaction.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, c Completion) error {
	summaryJSON, err := json.Marshal(c.Summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	rows := make([][]any, len(c.Metrics))
	for i, m := range c.Metrics {
		rows[i] = segmentRow(runID, m)
	}
	phases := make([][]any, len(c.Phases))
	for i, p := range c.Phases {
		phases[i] = []any{runID, i, p.Name, p.Duration, p.Detail}
	}

	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE runs SET summary = $1, status = $2, error = '', updated_at = $3 WHERE id = $4`,
			summaryJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: complete run %s", runID)
		}
		if tag.RowsAffected() == 0 {
			return notFound("run", runID)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM segment_metrics WHERE run_id = $1`, runID); err != nil {
			return eris.Wrapf(err, "postgres: clear segments for run %s", runID)
		}
		if _, err := db.BulkUpsert(ctx, tx, db.UpsertConfig{
			Table:        "segment_metrics",
			Columns:      segmentColumns,
			ConflictKeys: []string{"run_id", "segment"},
		}, rows); err != nil {
			return eris.Wrapf(err, "postgres: upsert segments for run %s", runID)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM run_phases WHERE run_id = $1`, runID); err != nil {
			return eris.Wrapf(err, "postgres: clear phases for run %s", runID)
		}
		if _, err := db.CopyFrom(ctx, tx, "run_phases", phaseColumns, phases); err != nil {
			return eris.Wrapf(err, "postgres: copy phases for run %s", runID)
		}
		return nil
	})
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("run", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx,
		`SELECT `+pgRunColumns+` FROM runs WHERE id = $1`,
		runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("run", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + pgRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Location != "" {
		query += fmt.Sprintf(` AND survey->>'location' = $%d`, argIdx)
		args = append(args, filter.Location)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) ListSegments(ctx context.Context, runID string) ([]model.SegmentMetrics, error) {
	if err := s.runExists(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(segmentColumns[1:], ", ")+` FROM segment_metrics WHERE run_id = $1 ORDER BY segment`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list segments for run %s", runID)
	}
	defer rows.Close()

	var out []model.SegmentMetrics
	for rows.Next() {
		var m model.SegmentMetrics
		var condition, fallbacks string
		if err := rows.Scan(&m.Index, &m.STA, &m.StartM, &m.EndM, &m.AreaM2,
			&m.PercentCrackedArea, &m.MeanCrackWidthMM, &m.PotholeCount, &m.MeanRuttingDepthCM,
			&m.SDI1, &m.SDI2, &m.SDI3, &m.SDI4, &condition, &fallbacks,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan segment")
		}
		m.Condition = model.Condition(condition)
		m.Fallbacks = splitFallbacks(fallbacks)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list segments iterate")
}

func (s *PostgresStore) ListPhases(ctx context.Context, runID string) ([]model.PhaseResult, error) {
	if err := s.runExists(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT name, duration_ms, detail FROM run_phases WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list phases for run %s", runID)
	}
	defer rows.Close()

	var out []model.PhaseResult
	for rows.Next() {
		var p model.PhaseResult
		if err := rows.Scan(&p.Name, &p.Duration, &p.Detail); err != nil {
			return nil, eris.Wrap(err, "postgres: scan phase")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list phases iterate")
}

func (s *PostgresStore) runExists(ctx context.Context, runID string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM runs WHERE id = $1)`, runID).Scan(&exists); err != nil {
		return eris.Wrapf(err, "postgres: lookup run %s", runID)
	}
	if !exists {
		return notFound("run", runID)
	}
	return nil
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var surveyJSON, paramsJSON, summaryJSON []byte

	if err := row.Scan(&r.ID, &surveyJSON, &paramsJSON, &status, &summaryJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if err := decodeRun(&r, surveyJSON, paramsJSON, summaryJSON); err != nil {
		return nil, err
	}
	return &r, nil
}
