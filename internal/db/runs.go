package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"block-occupancy/internal/blocks"
	"block-occupancy/internal/conflict"
	"block-occupancy/internal/occupancy"
)

// ErrNoRuns is returned when no finished run has been stored yet.
var ErrNoRuns = errors.New("no finished analysis run")

// LatestRun returns the most recently finished analysis run.
func LatestRun(ctx context.Context, db *sql.DB) (Run, error) {
	q := `
SELECT run_id, started_at, finished_at, journeys, conflicts
FROM analysis_runs
WHERE finished_at IS NOT NULL
ORDER BY finished_at DESC
LIMIT 1`
	var (
		r        Run
		finished sql.NullTime
	)
	if err := db.QueryRowContext(ctx, q).Scan(&r.ID, &r.StartedAt, &finished, &r.Journeys, &r.Conflicts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNoRuns
		}
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	r.FinishedAt = finished.Time
	return r, nil
}

// Store binds the result queries to one connection pool.
type Store struct {
	DB *sql.DB
}

func (s Store) SaveRun(ctx context.Context, r Run) error {
	return SaveRun(ctx, s.DB, r)
}

func (s Store) SaveIntervals(ctx context.Context, runID, journeyID string, leg int, bs []blocks.Block, intervals []occupancy.Interval) error {
	return SaveIntervals(ctx, s.DB, runID, journeyID, leg, bs, intervals)
}

func (s Store) SaveConflicts(ctx context.Context, runID string, recs []conflict.Record) error {
	return SaveConflicts(ctx, s.DB, runID, recs)
}
