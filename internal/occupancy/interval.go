package occupancy

import (
	"fmt"
	"log/slog"
	"math"

	"block-occupancy/internal/blocks"
	"block-occupancy/internal/trajectory"
)

// ClearanceSource tells where the block-level clearance position came from.
type ClearanceSource int8

const (
	FromClearancePoint ClearanceSource = iota
	FromOverrunTable
	// FallbackNoTrajectory: the block entry lies before the recorded samples,
	// so no entry speed exists.
	FallbackNoTrajectory
	// FallbackTerminated: the train's recording ends before the block entry.
	FallbackTerminated
)

func (s ClearanceSource) String() string {
	switch s {
	case FromClearancePoint:
		return "clearance_point"
	case FromOverrunTable:
		return "overrun_table"
	case FallbackNoTrajectory:
		return "fallback_no_trajectory"
	case FallbackTerminated:
		return "fallback_terminated"
	}
	return "unknown"
}

// Fallback reports whether the fixed fallback overrun was used.
func (s ClearanceSource) Fallback() bool {
	return s == FallbackNoTrajectory || s == FallbackTerminated
}

// Interval is the occupation of one block by one train. All durations are
// minutes rounded to four places.
type Interval struct {
	BlockID           string          `json:"block_id"`
	ApproachFormation float64         `json:"approach_formation"`
	Running           float64         `json:"running"`
	RunningSections   []float64       `json:"running_sections"`
	Clearance         float64         `json:"clearance"`
	ClearanceSections []float64       `json:"clearance_sections"`
	Total             float64         `json:"total"`
	Source            ClearanceSource `json:"source"`
	// Overrun is the overrun distance in metres behind the exit signal, zero
	// when a rear-clearance point was used.
	Overrun float64 `json:"overrun"`
	// OriginFallback is set when some travel time resolved a position at
	// the leg origin because it lay before the recorded samples.
	OriginFallback bool `json:"origin_fallback,omitempty"`
	// Truncated is set when some travel time stopped at the last recorded
	// sample because a position lay past the end of the recording.
	Truncated bool `json:"truncated,omitempty"`
}

func (iv *Interval) note(fb trajectory.Fallbacks) {
	iv.OriginFallback = iv.OriginFallback || fb.Origin
	iv.Truncated = iv.Truncated || fb.Truncated
}

// NonFiniteError reports a NaN or infinite duration.
type NonFiniteError struct {
	BlockID string
	Field   string
}

func (e *NonFiniteError) Error() string {
	return fmt.Sprintf("block %s: non-finite %s", e.BlockID, e.Field)
}

// Round4 rounds to the precision every stage of the model works at.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Calculator computes occupancy intervals with a fixed parameter set.
type Calculator struct {
	Params Params
	Logger *slog.Logger
}

func NewCalculator(p Params, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{Params: p, Logger: logger.With("component", "occupancy")}
}

func (c *Calculator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// overrun picks the overrun distance from the speed at pos.
func (c *Calculator) overrun(traj *trajectory.Trajectory, pos float64) (float64, ClearanceSource) {
	speed, res := traj.VelocityAt(pos)
	switch res {
	case trajectory.BeforeStart:
		return c.Params.FallbackOverrun, FallbackNoTrajectory
	case trajectory.PastEnd:
		return c.Params.FallbackOverrun, FallbackTerminated
	}
	return c.Params.OverrunFor(speed), FromOverrunTable
}

// clearanceTime is the time from exit until the rear of the train has passed
// clearPos, plus the release time in seconds.
func clearanceTime(traj *trajectory.Trajectory, exit, clearPos, trainLength, release float64) (float64, trajectory.Fallbacks) {
	rear := traj.Direction().Advance(clearPos, trainLength/1000)
	t, fb := traj.TravelTime(exit, rear)
	return Round4(t + release/60), fb
}

// Compute returns the occupancy interval of block b. trainLength is in
// metres.
func (c *Calculator) Compute(b blocks.Block, traj *trajectory.Trajectory, trainLength float64) (Interval, error) {
	p := c.Params
	dir := traj.Direction()
	iv := Interval{BlockID: b.ID}

	approach := p.RouteFormation + p.SignalSighting
	if b.Approach != nil {
		t, fb := traj.TravelTime(b.Approach.Position, b.Start.Position)
		approach += t
		iv.note(fb)
	}
	iv.ApproachFormation = Round4(approach)

	running, fb := traj.TravelTime(b.Start.Position, b.End.Position)
	iv.Running = Round4(running)
	iv.note(fb)

	iv.RunningSections = make([]float64, len(b.Sections))
	for i, s := range b.Sections {
		t, fb := traj.TravelTime(s.Start.Position, s.End.Position)
		iv.RunningSections[i] = Round4(t)
		iv.note(fb)
	}

	release := p.DefaultRelease
	if b.Clearance != nil {
		release = b.ReleaseTime
	}

	iv.ClearanceSections = make([]float64, 0, len(b.Sections))
	for i := 0; i+1 < len(b.Sections); i++ {
		s := b.Sections[i]
		overrun, src := c.overrun(traj, s.Start.Position)
		if src.Fallback() {
			c.logger().Debug("section entry speed unresolved, using fallback overrun",
				slog.String("block", b.ID), slog.String("section", s.ID()), slog.String("reason", src.String()))
		}
		t, fb := clearanceTime(traj, s.End.Position, dir.Advance(s.End.Position, overrun/1000), trainLength, release)
		iv.ClearanceSections = append(iv.ClearanceSections, t)
		iv.note(fb)
	}

	var clearPos float64
	if b.Clearance != nil {
		clearPos = b.Clearance.Position
		iv.Source = FromClearancePoint
	} else {
		iv.Overrun, iv.Source = c.overrun(traj, b.Start.Position)
		clearPos = dir.Advance(b.End.Position, iv.Overrun/1000)
		if iv.Source.Fallback() {
			c.logger().Debug("block entry speed unresolved, using fallback overrun",
				slog.String("block", b.ID), slog.String("reason", iv.Source.String()))
		}
	}
	iv.Clearance, fb = clearanceTime(traj, b.End.Position, clearPos, trainLength, release)
	iv.note(fb)
	iv.ClearanceSections = append(iv.ClearanceSections, iv.Clearance)

	iv.Total = Round4(iv.ApproachFormation + iv.Running + iv.Clearance)

	if iv.OriginFallback {
		c.logger().Debug("travel time resolved at leg origin", slog.String("block", b.ID))
	}
	if iv.Truncated {
		c.logger().Debug("travel time cut off at end of recording", slog.String("block", b.ID))
	}
	if err := iv.checkFinite(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// ComputeLeg computes the intervals of every block of one leg, in order.
func (c *Calculator) ComputeLeg(bs []blocks.Block, traj *trajectory.Trajectory, trainLength float64) ([]Interval, error) {
	out := make([]Interval, 0, len(bs))
	for _, b := range bs {
		iv, err := c.Compute(b, traj, trainLength)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (iv Interval) checkFinite() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"approach_formation", iv.ApproachFormation},
		{"running", iv.Running},
		{"clearance", iv.Clearance},
		{"total", iv.Total},
	}
	for _, f := range fields {
		if !finite(f.v) {
			return &NonFiniteError{BlockID: iv.BlockID, Field: f.name}
		}
	}
	for i, v := range iv.RunningSections {
		if !finite(v) {
			return &NonFiniteError{BlockID: iv.BlockID, Field: fmt.Sprintf("running_sections[%d]", i)}
		}
	}
	for i, v := range iv.ClearanceSections {
		if !finite(v) {
			return &NonFiniteError{BlockID: iv.BlockID, Field: fmt.Sprintf("clearance_sections[%d]", i)}
		}
	}
	return nil
}
