package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/sdi-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	survey     TEXT NOT NULL,
	params     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	summary    TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS segment_metrics (
	run_id                TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	segment               INTEGER NOT NULL,
	sta                   TEXT NOT NULL,
	start_m               REAL NOT NULL,
	end_m                 REAL NOT NULL,
	area_m2               REAL NOT NULL,
	percent_cracked_area  REAL NOT NULL,
	mean_crack_width_mm   REAL NOT NULL,
	pothole_count         INTEGER NOT NULL,
	mean_rutting_depth_cm REAL NOT NULL,
	sdi1                  REAL NOT NULL,
	sdi2                  REAL NOT NULL,
	sdi3                  REAL NOT NULL,
	sdi4                  REAL NOT NULL,
	condition             TEXT NOT NULL,
	fallbacks             TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, segment)
);

CREATE TABLE IF NOT EXISTS run_phases (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	name        TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, survey model.Survey, params model.RunParams) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	surveyJSON, err := json.Marshal(survey)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal survey")
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal params")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, survey, params, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(surveyJSON), string(paramsJSON), string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// CompleteRun replaces the run's segment rows and phases and marks it
// complete in a single transaction.
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, c Completion) error {
	summaryJSON, err := json.Marshal(c.Summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET summary = ?, status = ?, error = '', updated_at = ? WHERE id = ?`,
		string(summaryJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	if err := checkRowsAffected(res, "run", runID); err != nil {
		return err
	}

	for _, table := range []string{"segment_metrics", "run_phases"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
			return eris.Wrapf(err, "sqlite: clear %s for run %s", table, runID)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO segment_metrics (`+strings.Join(segmentColumns, ", ")+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare segment insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, m := range c.Metrics {
		if _, err := stmt.ExecContext(ctx, segmentRow(runID, m)...); err != nil {
			return eris.Wrapf(err, "sqlite: insert segment %d", m.Index)
		}
	}

	for i, p := range c.Phases {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_phases (run_id, seq, name, duration_ms, detail) VALUES (?, ?, ?, ?, ?)`,
			runID, i, p.Name, p.Duration, p.Detail,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert phase %s", p.Name)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit run completion")
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

const sqliteRunColumns = `id, survey, params, status, summary, error, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, notFound("run", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Location != "" {
		query += ` AND json_extract(survey, '$.location') = ?`
		args = append(args, filter.Location)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) ListSegments(ctx context.Context, runID string) ([]model.SegmentMetrics, error) {
	if err := s.runExists(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(segmentColumns[1:], ", ")+` FROM segment_metrics WHERE run_id = ? ORDER BY segment`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list segments for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SegmentMetrics
	for rows.Next() {
		var m model.SegmentMetrics
		var fallbacks string
		if err := rows.Scan(&m.Index, &m.STA, &m.StartM, &m.EndM, &m.AreaM2,
			&m.PercentCrackedArea, &m.MeanCrackWidthMM, &m.PotholeCount, &m.MeanRuttingDepthCM,
			&m.SDI1, &m.SDI2, &m.SDI3, &m.SDI4, &m.Condition, &fallbacks,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan segment")
		}
		m.Fallbacks = splitFallbacks(fallbacks)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list segments iterate")
}

func (s *SQLiteStore) ListPhases(ctx context.Context, runID string) ([]model.PhaseResult, error) {
	if err := s.runExists(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, duration_ms, detail FROM run_phases WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list phases for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PhaseResult
	for rows.Next() {
		var p model.PhaseResult
		if err := rows.Scan(&p.Name, &p.Duration, &p.Detail); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan phase")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list phases iterate")
}

func (s *SQLiteStore) runExists(ctx context.Context, runID string) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&n); err != nil {
		return eris.Wrapf(err, "sqlite: lookup run %s", runID)
	}
	if n == 0 {
		return notFound("run", runID)
	}
	return nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

// segmentRow orders m's fields as segmentColumns.
func segmentRow(runID string, m model.SegmentMetrics) []any {
	return []any{
		runID, m.Index, m.STA, m.StartM, m.EndM, m.AreaM2,
		m.PercentCrackedArea, m.MeanCrackWidthMM, m.PotholeCount, m.MeanRuttingDepthCM,
		m.SDI1, m.SDI2, m.SDI3, m.SDI4, string(m.Condition), joinFallbacks(m.Fallbacks),
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var surveyJSON, paramsJSON string
	var summaryJSON sql.NullString

	err := row.Scan(&r.ID, &surveyJSON, &paramsJSON, &r.Status, &summaryJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := decodeRun(&r, []byte(surveyJSON), []byte(paramsJSON), nullBytes(summaryJSON)); err != nil {
		return nil, eris.Wrap(err, "sqlite: decode run")
	}
	return &r, nil
}

func nullBytes(s sql.NullString) []byte {
	if !s.Valid {
		return nil
	}
	return []byte(s.String)
}

// decodeRun fills the JSON-encoded columns of r. A nil summary leaves
// r.Summary unset.
func decodeRun(r *model.Run, survey, params, summary []byte) error {
	if err := json.Unmarshal(survey, &r.Survey); err != nil {
		return eris.Wrap(err, "unmarshal survey")
	}
	if err := json.Unmarshal(params, &r.Params); err != nil {
		return eris.Wrap(err, "unmarshal params")
	}
	if summary != nil {
		r.Summary = &model.Summary{}
		if err := json.Unmarshal(summary, r.Summary); err != nil {
			return eris.Wrap(err, "unmarshal summary")
		}
	}
	return nil
}
