package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"block-occupancy/internal/blocks"
	"block-occupancy/internal/conflict"
	"block-occupancy/internal/occupancy"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	run_id      TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	journeys    INTEGER NOT NULL DEFAULT 0,
	conflicts   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS block_intervals (
	run_id             TEXT NOT NULL REFERENCES analysis_runs(run_id) ON DELETE CASCADE,
	journey_id         TEXT NOT NULL,
	leg                INTEGER NOT NULL,
	seq                INTEGER NOT NULL,
	block_id           TEXT NOT NULL,
	approach_formation DOUBLE PRECISION NOT NULL,
	running            DOUBLE PRECISION NOT NULL,
	clearance          DOUBLE PRECISION NOT NULL,
	total              DOUBLE PRECISION NOT NULL,
	clearance_source   TEXT NOT NULL,
	block              JSONB NOT NULL,
	detail             JSONB NOT NULL,
	PRIMARY KEY (run_id, journey_id, leg, seq)
);

CREATE TABLE IF NOT EXISTS block_conflicts (
	run_id        TEXT NOT NULL REFERENCES analysis_runs(run_id) ON DELETE CASCADE,
	section_id    TEXT NOT NULL,
	block_id      TEXT NOT NULL,
	earlier       TEXT NOT NULL,
	later         TEXT NOT NULL,
	earlier_start TIMESTAMPTZ NOT NULL,
	later_start   TIMESTAMPTZ NOT NULL,
	delta_seconds DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS block_conflicts_run_idx ON block_conflicts (run_id, earlier_start);
`

// EnsureSchema creates the result tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Run is one analysis over a set of journeys.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Journeys   int
	Conflicts  int
}

// SaveRun inserts or updates the run row.
func SaveRun(ctx context.Context, db *sql.DB, r Run) error {
	q := `
INSERT INTO analysis_runs (run_id, started_at, finished_at, journeys, conflicts)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (run_id) DO UPDATE
SET finished_at = EXCLUDED.finished_at, journeys = EXCLUDED.journeys, conflicts = EXCLUDED.conflicts`
	var finished sql.NullTime
	if !r.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: r.FinishedAt, Valid: true}
	}
	if _, err := db.ExecContext(ctx, q, r.ID, r.StartedAt, finished, r.Journeys, r.Conflicts); err != nil {
		return fmt.Errorf("save run %s: %w", r.ID, err)
	}
	return nil
}

// SaveIntervals replaces the stored intervals of one leg of a journey.
// intervals[i] belongs to bs[i].
func SaveIntervals(ctx context.Context, db *sql.DB, runID, journeyID string, leg int, bs []blocks.Block, intervals []occupancy.Interval) error {
	if len(bs) != len(intervals) {
		return fmt.Errorf("save intervals: %d blocks but %d intervals", len(bs), len(intervals))
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM block_intervals WHERE run_id = $1 AND journey_id = $2 AND leg = $3`,
		runID, journeyID, leg); err != nil {
		return fmt.Errorf("clear intervals: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO block_intervals
	(run_id, journey_id, leg, seq, block_id, approach_formation, running, clearance, total, clearance_source, block, detail)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
	if err != nil {
		return fmt.Errorf("prepare intervals: %w", err)
	}
	defer stmt.Close()

	for i, iv := range intervals {
		block, err := json.Marshal(bs[i])
		if err != nil {
			return err
		}
		detail, err := json.Marshal(iv)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, runID, journeyID, leg, i, iv.BlockID,
			iv.ApproachFormation, iv.Running, iv.Clearance, iv.Total, iv.Source.String(),
			string(block), string(detail)); err != nil {
			return fmt.Errorf("insert interval %s: %w", iv.BlockID, err)
		}
	}
	return tx.Commit()
}

// SaveConflicts appends the run's conflict records.
func SaveConflicts(ctx context.Context, db *sql.DB, runID string, recs []conflict.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO block_conflicts (run_id, section_id, block_id, earlier, later, earlier_start, later_start, delta_seconds)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return fmt.Errorf("prepare conflicts: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, runID, r.SectionID, r.BlockID, r.Earlier, r.Later,
			r.EarlierStart, r.LaterStart, r.Delta.Seconds()); err != nil {
			return fmt.Errorf("insert conflict on %s: %w", r.SectionID, err)
		}
	}
	return tx.Commit()
}

// StoredInterval is one persisted block occupation.
type StoredInterval struct {
	Leg      int
	Block    blocks.Block
	Interval occupancy.Interval
}

// LoadIntervals returns the intervals of a journey stored under runID in leg
// and block order.
func LoadIntervals(ctx context.Context, db *sql.DB, runID, journeyID string) ([]StoredInterval, error) {
	q := `
SELECT leg, block, detail
FROM block_intervals
WHERE run_id = $1 AND journey_id = $2
ORDER BY leg, seq`
	rows, err := db.QueryContext(ctx, q, runID, journeyID)
	if err != nil {
		return nil, fmt.Errorf("query intervals: %w", err)
	}
	defer rows.Close()

	var out []StoredInterval
	for rows.Next() {
		var (
			s             StoredInterval
			block, detail []byte
		)
		if err := rows.Scan(&s.Leg, &block, &detail); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(block, &s.Block); err != nil {
			return nil, fmt.Errorf("decode block: %w", err)
		}
		if err := json.Unmarshal(detail, &s.Interval); err != nil {
			return nil, fmt.Errorf("decode interval: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
