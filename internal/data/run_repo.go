package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/audiencelab/scrapewatch/internal/data/pgxutil"
	"github.com/audiencelab/scrapewatch/internal/domain/model"
	apperrors "github.com/audiencelab/scrapewatch/internal/errors"
)

var (
	// ErrRunNotFound is returned when a run is not found.
	ErrRunNotFound = errors.New("run not found")
)

// RunRepoConfig holds configuration options for the run repository.
type RunRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// RunRepo provides database operations for persisted scrape runs.
// Runs are created elsewhere when a job launches; this repo only reads
// and mutates them on behalf of the monitor.
type RunRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewRunRepo creates a new RunRepo instance with the given database connection and configuration.
func NewRunRepo(db *sql.DB, cfg RunRepoConfig) *RunRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &RunRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const runColumns = `
  id,
  external_job_id,
  producer_kind,
  status,
  items_count,
  duration_ms,
  dataset_ref,
  input_config,
  error_message,
  resurrect_count,
  started_at,
  finished_at,
  created_at,
  updated_at
`

type runRowScanner interface {
	Scan(dest ...any) error
}

type runRowData struct {
	inputConfig              []byte
	datasetRef, errorMessage sql.NullString
	startedAt, finishedAt    sql.NullTime
}

func (d *runRowData) scanInto(scanner runRowScanner, r *model.Run) error {
	return scanner.Scan(
		&r.ID,
		&r.ExternalJobID,
		&r.ProducerKind,
		&r.Status,
		&r.ItemsCount,
		&r.DurationMs,
		&d.datasetRef,
		&d.inputConfig,
		&d.errorMessage,
		&r.ResurrectCount,
		&d.startedAt,
		&d.finishedAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
}

func (d *runRowData) apply(r *model.Run) {
	r.InputConfig = cloneJSON(d.inputConfig)
	r.DatasetRef = cloneNullableString(d.datasetRef)
	r.ErrorMessage = cloneNullableString(d.errorMessage)
	r.StartedAt = cloneNullableTime(d.startedAt)
	r.FinishedAt = cloneNullableTime(d.finishedAt)
}

func scanRunFromRow(scanner runRowScanner) (*model.Run, error) {
	run := &model.Run{}
	var data runRowData
	if err := data.scanInto(scanner, run); err != nil {
		return nil, err
	}
	data.apply(run)
	return run, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// GetByID retrieves a run by its ID.
func (r *RunRepo) GetByID(ctx context.Context, id string) (*model.Run, error) {
	var run *model.Run
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT `+runColumns+`
			FROM scrape_runs
			WHERE id = $1
		`, id)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		var cerr error
		run, cerr = collectRunFromRows(rows)
		return cerr
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", apperrors.MapDBError(err))
	}
	return run, nil
}

func collectRunFromRows(rows pgx.Rows) (*model.Run, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	run, err := scanRunFromRow(rows)
	if err != nil {
		return nil, err
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return run, nil
}

// ListNeedingAttention returns runs the monitor must look at this tick:
// every non-terminal run, plus terminal succeeded runs whose items count
// is still zero (finished but never reconciled).
func (r *RunRepo) ListNeedingAttention(ctx context.Context, limit int) ([]*model.Run, error) {
	if limit <= 0 {
		limit = 500
	}

	query := `
		SELECT ` + runColumns + `
		FROM scrape_runs
		WHERE status IN ('pending', 'running')
		   OR (status = 'succeeded' AND items_count = 0)
		ORDER BY updated_at ASC
		LIMIT $1
	`

	var runs []*model.Run
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, limit)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		for rows.Next() {
			run, serr := scanRunFromRow(rows)
			if serr != nil {
				return serr
			}
			runs = append(runs, run)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list runs needing attention: %w", apperrors.MapDBError(err))
	}
	return runs, nil
}

// UpdateStatus persists the status delta observed from the platform.
// It returns false when nothing actually changed, so the monitor's
// "updated" counter only reflects real transitions.
func (r *RunRepo) UpdateStatus(ctx context.Context, id string, update model.RunStatusUpdate) (bool, error) {
	if !update.Status.Valid() {
		return false, fmt.Errorf("invalid run status: %s", update.Status)
	}

	currentTime := r.timeProvider.Now().UTC()
	query := `
		UPDATE scrape_runs
		SET status = $2,
		    items_count = $3,
		    duration_ms = $4,
		    dataset_ref = COALESCE($5, dataset_ref),
		    error_message = $6,
		    finished_at = $7,
		    updated_at = $8
		WHERE id = $1
		  AND (status IS DISTINCT FROM $2
		       OR items_count IS DISTINCT FROM $3
		       OR finished_at IS DISTINCT FROM $7)
	`

	res, err := r.DB.ExecContext(ctx, query,
		id,
		update.Status,
		update.ItemsCount,
		update.DurationMs,
		nullableString(update.DatasetRef),
		nullableString(update.ErrorMessage),
		nullableTime(update.FinishedAt),
		currentTime,
	)
	if err != nil {
		return false, fmt.Errorf("update run status: %w", apperrors.MapDBError(err))
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update run status rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// MarkResurrected flips a recoverable terminal run back to running and
// consumes one resurrect attempt. The status and budget guards live in the
// UPDATE itself so the read-check-increment cannot interleave with a
// concurrent tick; callers get false when the guard rejected the row.
func (r *RunRepo) MarkResurrected(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()
	query := `
		UPDATE scrape_runs
		SET status = 'running',
		    error_message = NULL,
		    finished_at = NULL,
		    resurrect_count = resurrect_count + 1,
		    updated_at = $3
		WHERE id = $1
		  AND status IN ('failed', 'timed_out')
		  AND resurrect_count < $2
	`

	res, err := r.DB.ExecContext(ctx, query, id, model.MaxResurrectAttempts, currentTime)
	if err != nil {
		return false, fmt.Errorf("mark run resurrected: %w", apperrors.MapDBError(err))
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark run resurrected rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ResetResurrectCount zeroes a run's resurrect budget. Operator-only
// escape hatch for runs that exhausted recovery during a platform incident.
func (r *RunRepo) ResetResurrectCount(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE scrape_runs
		SET resurrect_count = 0,
		    updated_at = $2
		WHERE id = $1
	`, id, currentTime)
	if err != nil {
		return false, fmt.Errorf("reset resurrect count: %w", apperrors.MapDBError(err))
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset resurrect count rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// UpdateItemsCount records the final saved total after reconciliation.
func (r *RunRepo) UpdateItemsCount(ctx context.Context, id string, itemsCount int) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE scrape_runs
		SET items_count = $2,
		    updated_at = $3
		WHERE id = $1
	`, id, itemsCount, currentTime)
	if err != nil {
		return false, fmt.Errorf("update run items count: %w", apperrors.MapDBError(err))
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update run items count rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Summary returns run counts per internal status.
func (r *RunRepo) Summary(ctx context.Context) (*model.RunSummary, error) {
	var s model.RunSummary
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')   AS pending,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'succeeded') AS succeeded,
    count(*) FILTER (WHERE status = 'failed')    AS failed,
    count(*) FILTER (WHERE status = 'timed_out') AS timed_out,
    count(*) FILTER (WHERE status = 'aborted')   AS aborted
  FROM scrape_runs
  `).Scan(
		&s.Pending,
		&s.Running,
		&s.Succeeded,
		&s.Failed,
		&s.TimedOut,
		&s.Aborted,
	)
	if err != nil {
		return nil, fmt.Errorf("get run summary: %w", apperrors.MapDBError(err))
	}
	return &s, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
