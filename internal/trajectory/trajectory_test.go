package trajectory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"block-occupancy/internal/track"
)

// constant speed samples every 100 m over dist metres
func constantSpeed(kmh, dist float64) []Sample {
	base := time.Date(2020, 7, 22, 8, 0, 0, 0, time.UTC)
	mps := kmh / 3.6
	var out []Sample
	for x := 0.0; x <= dist; x += 100 {
		sec := x / mps
		out = append(out, Sample{
			Velocity: kmh,
			Elapsed:  sec,
			Offset:   x,
			Time:     base.Add(time.Duration(sec * float64(time.Second))),
		})
	}
	return out
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, track.Ascending, 0)
	assert.ErrorIs(t, err, ErrEmptyTrajectory)

	_, err = New(constantSpeed(50, 200), 0, 0)
	assert.ErrorIs(t, err, ErrNoDirection)
}

func TestPositionsFollowDirection(t *testing.T) {
	asc, err := New(constantSpeed(36, 300), track.Ascending, 10)
	require.NoError(t, err)
	desc, err := New(constantSpeed(36, 300), track.Descending, 10)
	require.NoError(t, err)

	assert.InDelta(t, 10.3, asc.Waypoints()[3].Position, 1e-9)
	assert.InDelta(t, 9.7, desc.Waypoints()[3].Position, 1e-9)
	// 36 km/h = 10 m/s, 100 m in 10 s
	assert.InDelta(t, 10.0/60, asc.Waypoints()[1].Elapsed, 1e-9)
}

func TestAt(t *testing.T) {
	traj, err := New(constantSpeed(36, 1000), track.Ascending, 5)
	require.NoError(t, err)

	tests := []struct {
		name     string
		target   float64
		position float64
		res      Resolution
	}{
		{"just past a sample", 5.3000001, 5.3, Resolved},
		{"between samples is floor", 5.35, 5.3, Resolved},
		{"origin", 5.0, 5.0, Resolved},
		{"before start", 4.9, 5.0, BeforeStart},
		{"last sample", 6.0, 6.0, Resolved},
		{"past end", 6.5, 6.0, PastEnd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wp, res := traj.At(tt.target)
			assert.Equal(t, tt.res, res)
			assert.InDelta(t, tt.position, wp.Position, 1e-9)
		})
	}
}

func TestAtDescending(t *testing.T) {
	traj, err := New(constantSpeed(36, 500), track.Descending, 5)
	require.NoError(t, err)

	wp, res := traj.At(4.75)
	assert.Equal(t, Resolved, res)
	assert.InDelta(t, 4.8, wp.Position, 1e-9)

	_, res = traj.At(5.1)
	assert.Equal(t, BeforeStart, res)

	_, res = traj.At(4.0)
	assert.Equal(t, PastEnd, res)
}

func TestTravelTimeFallbacks(t *testing.T) {
	traj, err := New(constantSpeed(36, 1000), track.Ascending, 5)
	require.NoError(t, err)

	tests := []struct {
		name     string
		from, to float64
		minutes  float64
		expected Fallbacks
	}{
		// 600 m at 10 m/s
		{"inside recording", 5.25, 5.85, 1.0, Fallbacks{}},
		{"before recording", 4.0, 5.55, 50.0 / 60, Fallbacks{Origin: true}},
		// stops at the last sample at 6.0
		{"past recording", 5.5, 6.5, 50.0 / 60, Fallbacks{Truncated: true}},
		{"both ends", 4.0, 6.5, 100.0 / 60, Fallbacks{Origin: true, Truncated: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			minutes, fb := traj.TravelTime(tt.from, tt.to)
			assert.InDelta(t, tt.minutes, minutes, 1e-9)
			assert.Equal(t, tt.expected, fb)
		})
	}
}

func TestElapsedAt(t *testing.T) {
	traj, err := New(constantSpeed(36, 1000), track.Ascending, 5)
	require.NoError(t, err)

	e, res := traj.ElapsedAt(4.0)
	assert.Equal(t, BeforeStart, res)
	assert.Zero(t, e)

	e, res = traj.ElapsedAt(7.0)
	assert.Equal(t, PastEnd, res)
	assert.InDelta(t, 100.0/60, e, 1e-9)
}

func TestVelocityAt(t *testing.T) {
	traj, err := New(constantSpeed(50, 1000), track.Ascending, 0)
	require.NoError(t, err)

	v, res := traj.VelocityAt(0.5)
	assert.Equal(t, Resolved, res)
	assert.Equal(t, 50.0, v)
}

func TestRange(t *testing.T) {
	traj, err := New(constantSpeed(36, 1000), track.Ascending, 0)
	require.NoError(t, err)

	assert.Len(t, traj.Range(nil), 11)

	sub := traj.Range(&Bounds{From: 0.45, To: 0.2})
	assert.Len(t, sub, 3)
	for pos := range sub {
		assert.True(t, pos >= 0.2 && pos <= 0.45)
	}
}
