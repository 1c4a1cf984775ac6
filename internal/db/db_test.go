package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"block-occupancy/internal/blocks"
	"block-occupancy/internal/conflict"
	"block-occupancy/internal/occupancy"
)

// openTestDB connects to BLOCKOCC_TEST_DATABASE_URL or skips the test.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("BLOCKOCC_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("BLOCKOCC_TEST_DATABASE_URL not set")
	}
	conn, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, Ping(context.Background(), conn))
	require.NoError(t, EnsureSchema(context.Background(), conn))
	return conn
}

func TestSaveAndLoadIntervals(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	run := Run{ID: uuid.NewString(), StartedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, SaveRun(ctx, conn, run))

	b := blocks.Block{
		ID:       "1-2",
		Start:    blocks.Point{ID: 1, Position: 10},
		End:      blocks.Point{ID: 2, Position: 11.5},
		Sections: []blocks.RouteSection{{Start: blocks.Point{ID: 1, Position: 10}, End: blocks.Point{ID: 2, Position: 11.5}}},
		Length:   1.5,
	}
	iv := occupancy.Interval{
		BlockID: "1-2", ApproachFormation: 0.5, Running: 1.2, RunningSections: []float64{1.2},
		Clearance: 0.3, ClearanceSections: []float64{0.3}, Total: 2, Source: occupancy.FromOverrunTable, Overrun: 100,
	}
	require.NoError(t, SaveIntervals(ctx, conn, run.ID, "S1 1111", 0, []blocks.Block{b}, []occupancy.Interval{iv}))
	// saving again replaces the leg
	require.NoError(t, SaveIntervals(ctx, conn, run.ID, "S1 1111", 0, []blocks.Block{b}, []occupancy.Interval{iv}))

	stored, err := LoadIntervals(ctx, conn, run.ID, "S1 1111")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, b, stored[0].Block)
	assert.Equal(t, iv, stored[0].Interval)

	rec := conflict.Record{
		SectionID: "1-2", BlockID: "1-2", Earlier: "S1 1111", Later: "S1 1112",
		EarlierStart: run.StartedAt, LaterStart: run.StartedAt.Add(time.Minute), Delta: time.Minute,
	}
	require.NoError(t, SaveConflicts(ctx, conn, run.ID, []conflict.Record{rec}))

	run.FinishedAt = run.StartedAt.Add(time.Hour)
	run.Journeys, run.Conflicts = 2, 1
	require.NoError(t, SaveRun(ctx, conn, run))

	latest, err := LatestRun(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, 1, latest.Conflicts)
}

func TestSaveIntervalsMismatch(t *testing.T) {
	err := SaveIntervals(context.Background(), nil, "run", "S1 1", 0, []blocks.Block{{}}, nil)
	assert.Error(t, err)
}
