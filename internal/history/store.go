// Package history persists pipeline runs and their stage results.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"startup-positioning-map/db"
	"startup-positioning-map/internal/bootstrap"
	"startup-positioning-map/internal/pipeline"
	"startup-positioning-map/internal/stage"
)

var ErrRunNotFound = errors.New("run not found")

type runRow struct {
	ID           string         `db:"id"`
	Mode         string         `db:"mode"`
	Stages       string         `db:"stages"`
	Status       string         `db:"status"`
	Bootstrap    string         `db:"bootstrap"`
	Error        sql.NullString `db:"error"`
	StartedAtMs  int64          `db:"started_at_ms"`
	FinishedAtMs sql.NullInt64  `db:"finished_at_ms"`
}

type resultRow struct {
	RunID       string         `db:"run_id"`
	Seq         int            `db:"seq"`
	Stage       string         `db:"stage"`
	Status      string         `db:"status"`
	StartedAtMs sql.NullInt64  `db:"started_at_ms"`
	DurationMs  int64          `db:"duration_ms"`
	Error       sql.NullString `db:"error"`
}

// Store records runs as a pipeline.Observer and serves them back for the
// history command and the HTTP API. A nil database disables it.
type Store struct {
	db     *sqlx.DB
	logger *zap.SugaredLogger
}

func NewStore(h *db.HistoryDB, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Store{logger: logger}
	if h != nil {
		s.db = h.DB
	}
	return s
}

func (s *Store) Enabled() bool { return s.db != nil }

func (s *Store) RunStarted(ctx context.Context, run pipeline.Run) error {
	if s.db == nil {
		return nil
	}
	row := toRunRow(run)
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
INSERT INTO pipeline_runs (id, mode, stages, status, bootstrap, error, started_at_ms, finished_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`),
		row.ID, row.Mode, row.Stages, row.Status, row.Bootstrap, row.Error, row.StartedAtMs, row.FinishedAtMs,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Store) StageFinished(ctx context.Context, run pipeline.Run, res pipeline.StageResult) error {
	if s.db == nil {
		return nil
	}
	_, err := db.Tx[struct{}](ctx, s.db, func(tx *sqlx.Tx) (struct{}, error) {
		// The run row may be missing when its start was never recorded.
		if err := s.ensureRun(ctx, tx, run, res); err != nil {
			return struct{}{}, err
		}
		_, err := s.upsertResult(ctx, tx, run.ID, res)
		return struct{}{}, err
	})
	if err != nil {
		return fmt.Errorf("record stage %s of run %s: %w", res.Stage, run.ID, err)
	}
	return nil
}

func (s *Store) ensureRun(ctx context.Context, ex sqlx.ExtContext, run pipeline.Run, res pipeline.StageResult) error {
	row := toRunRow(run)
	if row.Status == "" {
		row.Status = string(pipeline.RunRunning)
	}
	if run.StartedAt.IsZero() {
		row.StartedAtMs = unixMs(res.StartedAt)
	}
	_, err := ex.ExecContext(ctx, ex.Rebind(`
INSERT INTO pipeline_runs (id, mode, stages, status, bootstrap, error, started_at_ms, finished_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`),
		row.ID, row.Mode, row.Stages, row.Status, row.Bootstrap, row.Error, row.StartedAtMs, row.FinishedAtMs,
	)
	return err
}

func (s *Store) RunFinished(ctx context.Context, run pipeline.Run) error {
	if s.db == nil {
		return nil
	}
	_, err := db.Tx[struct{}](ctx, s.db, func(tx *sqlx.Tx) (struct{}, error) {
		row := toRunRow(run)
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
INSERT INTO pipeline_runs (id, mode, stages, status, bootstrap, error, started_at_ms, finished_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
  mode = CASE WHEN excluded.mode <> '' THEN excluded.mode ELSE pipeline_runs.mode END,
  stages = CASE WHEN excluded.stages <> '' THEN excluded.stages ELSE pipeline_runs.stages END,
  status = excluded.status,
  bootstrap = excluded.bootstrap,
  error = excluded.error,
  started_at_ms = CASE WHEN excluded.started_at_ms > 0 THEN excluded.started_at_ms ELSE pipeline_runs.started_at_ms END,
  finished_at_ms = excluded.finished_at_ms`),
			row.ID, row.Mode, row.Stages, row.Status, row.Bootstrap, row.Error, row.StartedAtMs, row.FinishedAtMs,
		); err != nil {
			return struct{}{}, err
		}
		for _, res := range run.Results {
			if _, err := s.upsertResult(ctx, tx, run.ID, res); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	s.logger.Debugw("history_run_recorded", "run_id", run.ID, "status", run.Status)
	return nil
}

func (s *Store) upsertResult(ctx context.Context, ex sqlx.ExtContext, runID string, res pipeline.StageResult) (sql.Result, error) {
	row := toResultRow(runID, res)
	return ex.ExecContext(ctx, ex.Rebind(`
INSERT INTO stage_results (run_id, seq, stage, status, started_at_ms, duration_ms, error)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, seq) DO UPDATE SET
  status = excluded.status,
  started_at_ms = excluded.started_at_ms,
  duration_ms = excluded.duration_ms,
  error = excluded.error`),
		row.RunID, row.Seq, row.Stage, row.Status, row.StartedAtMs, row.DurationMs, row.Error,
	)
}

// ListRuns returns the most recent runs first, without stage results.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]pipeline.Run, error) {
	if s.db == nil {
		return nil, db.ErrHistoryDisabled
	}
	if limit <= 0 {
		limit = 20
	}

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
SELECT id, mode, stages, status, bootstrap, error, started_at_ms, finished_at_ms
FROM pipeline_runs
ORDER BY started_at_ms DESC, id DESC
LIMIT ?`), limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	out := make([]pipeline.Run, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRun())
	}
	return out, nil
}

// GetRun returns one run with its stage results in execution order.
func (s *Store) GetRun(ctx context.Context, id string) (pipeline.Run, error) {
	if s.db == nil {
		return pipeline.Run{}, db.ErrHistoryDisabled
	}

	return db.Tx[pipeline.Run](ctx, s.db, func(tx *sqlx.Tx) (pipeline.Run, error) {
		var r runRow
		err := tx.GetContext(ctx, &r, tx.Rebind(`
SELECT id, mode, stages, status, bootstrap, error, started_at_ms, finished_at_ms
FROM pipeline_runs
WHERE id = ?`), id)
		if errors.Is(err, sql.ErrNoRows) {
			return pipeline.Run{}, ErrRunNotFound
		}
		if err != nil {
			return pipeline.Run{}, fmt.Errorf("get run %s: %w", id, err)
		}

		var results []resultRow
		if err := tx.SelectContext(ctx, &results, tx.Rebind(`
SELECT run_id, seq, stage, status, started_at_ms, duration_ms, error
FROM stage_results
WHERE run_id = ?
ORDER BY seq`), id); err != nil {
			return pipeline.Run{}, fmt.Errorf("get stage results of %s: %w", id, err)
		}

		run := r.toRun()
		run.Results = make([]pipeline.StageResult, 0, len(results))
		for _, res := range results {
			run.Results = append(run.Results, res.toResult())
		}
		return run, nil
	})
}

func toRunRow(run pipeline.Run) runRow {
	names := make([]string, 0, len(run.Stages))
	for _, n := range run.Stages {
		names = append(names, string(n))
	}
	row := runRow{
		ID:          run.ID,
		Mode:        string(run.Mode),
		Stages:      strings.Join(names, ","),
		Status:      string(run.Status),
		Bootstrap:   string(run.Bootstrap),
		StartedAtMs: unixMs(run.StartedAt),
	}
	if run.Error != "" {
		row.Error = sql.NullString{String: run.Error, Valid: true}
	}
	if run.FinishedAt != nil {
		row.FinishedAtMs = sql.NullInt64{Int64: run.FinishedAt.UnixMilli(), Valid: true}
	}
	return row
}

func unixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func (r runRow) toRun() pipeline.Run {
	run := pipeline.Run{
		ID:        r.ID,
		Mode:      pipeline.Mode(r.Mode),
		Status:    pipeline.RunStatus(r.Status),
		Bootstrap: bootstrap.Outcome(r.Bootstrap),
		Error:     r.Error.String,
		StartedAt: time.UnixMilli(r.StartedAtMs).UTC(),
	}
	for _, n := range strings.Split(r.Stages, ",") {
		if n != "" {
			run.Stages = append(run.Stages, stage.Name(n))
		}
	}
	if r.FinishedAtMs.Valid {
		t := time.UnixMilli(r.FinishedAtMs.Int64).UTC()
		run.FinishedAt = &t
	}
	return run
}

func toResultRow(runID string, res pipeline.StageResult) resultRow {
	row := resultRow{
		RunID:      runID,
		Seq:        res.Position,
		Stage:      string(res.Stage),
		Status:     string(res.Status),
		DurationMs: res.Duration.Milliseconds(),
	}
	if !res.StartedAt.IsZero() {
		row.StartedAtMs = sql.NullInt64{Int64: res.StartedAt.UnixMilli(), Valid: true}
	}
	if res.Error != "" {
		row.Error = sql.NullString{String: res.Error, Valid: true}
	}
	return row
}

func (r resultRow) toResult() pipeline.StageResult {
	res := pipeline.StageResult{
		Stage:    stage.Name(r.Stage),
		Position: r.Seq,
		Status:   pipeline.StageStatus(r.Status),
		Duration: time.Duration(r.DurationMs) * time.Millisecond,
		Error:    r.Error.String,
	}
	if r.StartedAtMs.Valid {
		res.StartedAt = time.UnixMilli(r.StartedAtMs.Int64).UTC()
	}
	return res
}

var _ pipeline.Observer = (*Store)(nil)
