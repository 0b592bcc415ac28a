package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"marketing_sync/internal/domain"
)

type Repo struct{ db *sql.DB }

var _ domain.RunRepository = (*Repo)(nil)

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

/********** write paths **********/

func (r *Repo) StartRun(ctx context.Context, run domain.Run) error {
	_, err := r.db.ExecContext(ctx, insertRunSQL, run.ID, run.Pipeline, string(run.Status), run.StartedAt.UTC())
	return err
}

func (r *Repo) FinishRun(ctx context.Context, id string, status domain.RunStatus, rows int64, errText string) error {
	res, err := r.db.ExecContext(ctx, finishRunSQL, string(status), rows, errText, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repo) LogMiss(ctx context.Context, m domain.Miss) error {
	_, err := r.db.ExecContext(ctx, insertMissSQL, m.RunID, m.EntityID, m.Stage, m.Reason)
	return err
}

func (r *Repo) SaveSummary(ctx context.Context, runID string, s domain.ReviewSummary) error {
	c := s.RatingCounts
	_, err := r.db.ExecContext(ctx, insertSummarySQL,
		runID, s.TotalReviews, s.AverageRating,
		c[0], c[1], c[2], c[3], c[4], c[5],
		s.BatchTimestamp.UTC(),
	)
	return err
}

/********** read paths **********/

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (domain.Run, error) {
	var run domain.Run
	var status string
	var errText sql.NullString
	var finished sql.NullTime
	if err := s.Scan(&run.ID, &run.Pipeline, &status, &run.RowsLoaded, &errText, &run.StartedAt, &finished); err != nil {
		return domain.Run{}, err
	}
	run.Status = domain.RunStatus(status)
	run.Error = errText.String
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}

func (r *Repo) GetRun(ctx context.Context, id string) (domain.Run, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, getRunSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, domain.ErrNotFound
	}
	return run, err
}

// ListRuns returns the newest runs first, optionally filtered.
func (r *Repo) ListRuns(ctx context.Context, q domain.RunsQuery) ([]domain.Run, error) {
	query, args, err := listRunsQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func listRunsQuery(q domain.RunsQuery) (string, []any, error) {
	b := sq.Select(runColumns...).From("ingest_runs").OrderBy("started_at DESC", "id DESC")
	if q.Pipeline != nil {
		b = b.Where(sq.Eq{"pipeline": *q.Pipeline})
	}
	if q.Status != nil {
		b = b.Where(sq.Eq{"status": string(*q.Status)})
	}
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	return b.ToSql()
}

func (r *Repo) ListMisses(ctx context.Context, runID string) ([]domain.Miss, error) {
	rows, err := r.db.QueryContext(ctx, listMissesSQL, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Miss{}
	for rows.Next() {
		var m domain.Miss
		if err := rows.Scan(&m.RunID, &m.EntityID, &m.Stage, &m.Reason); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repo) LatestSummary(ctx context.Context) (domain.StoredSummary, error) {
	var s domain.StoredSummary
	c := &s.RatingCounts
	err := r.db.QueryRowContext(ctx, latestSummarySQL).Scan(
		&s.RunID, &s.TotalReviews, &s.AverageRating,
		&c[0], &c[1], &c[2], &c[3], &c[4], &c[5],
		&s.BatchTimestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StoredSummary{}, domain.ErrNotFound
	}
	return s, err
}
