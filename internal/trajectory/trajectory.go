// Package trajectory answers position and velocity queries over the recorded
// time/position samples of one journey leg.
package trajectory

import (
	"errors"
	"time"

	"block-occupancy/internal/track"
)

var (
	ErrEmptyTrajectory = errors.New("trajectory has no samples")
	ErrNoDirection     = errors.New("trajectory needs a direction of travel")
)

// Sample is one raw record as delivered by the schedule files.
type Sample struct {
	Velocity float64   // km/h
	Elapsed  float64   // seconds since leg departure
	Offset   float64   // metres travelled since leg origin
	Time     time.Time // wall clock
}

// Waypoint is a sample placed on the absolute position scale.
type Waypoint struct {
	Velocity float64
	Elapsed  float64 // minutes
	Position float64 // km
	Time     time.Time
}

// Resolution tells how a position lookup was satisfied.
type Resolution int8

const (
	Resolved Resolution = iota
	// BeforeStart: no waypoint lies at or before the target; the first
	// waypoint is returned.
	BeforeStart
	// PastEnd: the target lies beyond the last recorded waypoint; the last
	// waypoint is returned.
	PastEnd
)

func (r Resolution) String() string {
	switch r {
	case BeforeStart:
		return "before_start"
	case PastEnd:
		return "past_end"
	}
	return "resolved"
}

// Trajectory is the read-only waypoint sequence of one leg.
type Trajectory struct {
	direction track.Direction
	origin    float64
	points    []Waypoint
}

// New places samples on the absolute scale starting at origin. Samples must
// be ordered by elapsed time.
func New(samples []Sample, direction track.Direction, origin float64) (*Trajectory, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyTrajectory
	}
	if direction.Sign() == 0 {
		return nil, ErrNoDirection
	}
	points := make([]Waypoint, len(samples))
	for i, s := range samples {
		points[i] = Waypoint{
			Velocity: s.Velocity,
			Elapsed:  s.Elapsed / 60,
			Position: direction.Advance(origin, s.Offset/1000),
			Time:     s.Time,
		}
	}
	return &Trajectory{direction: direction, origin: origin, points: points}, nil
}

func (t *Trajectory) Direction() track.Direction { return t.direction }

// Origin is the leg's own start position, the fallback point for lookups
// that cannot be resolved.
func (t *Trajectory) Origin() float64 { return t.origin }

func (t *Trajectory) Len() int { return len(t.points) }

// Waypoints returns the underlying sequence. Callers must not modify it.
func (t *Trajectory) Waypoints() []Waypoint { return t.points }

// At returns the last waypoint that does not pass target in travel order.
// This is a floor lookup, not an interpolation.
func (t *Trajectory) At(target float64) (Waypoint, Resolution) {
	if t.direction.Passed(t.points[0].Position, target) {
		return t.points[0], BeforeStart
	}
	for i := 1; i < len(t.points); i++ {
		if t.direction.Passed(t.points[i].Position, target) {
			return t.points[i-1], Resolved
		}
	}
	last := t.points[len(t.points)-1]
	if last.Position == target {
		return last, Resolved
	}
	return last, PastEnd
}

// VelocityAt is the instantaneous velocity at target.
func (t *Trajectory) VelocityAt(target float64) (float64, Resolution) {
	wp, res := t.At(target)
	return wp.Velocity, res
}

// ElapsedAt returns the elapsed minutes at target. A target before the first
// sample is resolved at the leg origin instead and reported as BeforeStart; a
// target past the last sample resolves at the last waypoint as PastEnd.
func (t *Trajectory) ElapsedAt(target float64) (float64, Resolution) {
	wp, res := t.At(target)
	if res == BeforeStart {
		wp, _ = t.At(t.origin)
	}
	return wp.Elapsed, res
}

// Fallbacks records which ends of a travel time query were not resolved on
// the recorded samples.
type Fallbacks struct {
	// Origin: a position before the samples was resolved at the leg origin.
	Origin bool
	// Truncated: a position past the samples was resolved at the last
	// waypoint, so the travel time stops where the recording does.
	Truncated bool
}

func (f *Fallbacks) add(res Resolution) {
	switch res {
	case BeforeStart:
		f.Origin = true
	case PastEnd:
		f.Truncated = true
	}
}

// TravelTime is the elapsed minutes between two positions, with the origin
// fallback applied to either end.
func (t *Trajectory) TravelTime(from, to float64) (float64, Fallbacks) {
	var fb Fallbacks
	start, res := t.ElapsedAt(from)
	fb.add(res)
	end, res := t.ElapsedAt(to)
	fb.add(res)
	return end - start, fb
}

// Bounds limits a Range query. A nil Bounds selects every waypoint.
type Bounds struct {
	From, To float64
}

func (b *Bounds) contains(pos float64) bool {
	if b == nil {
		return true
	}
	return (b.From <= pos && pos <= b.To) || (b.To <= pos && pos <= b.From)
}

// Range maps every in-range position to its waypoint.
func (t *Trajectory) Range(b *Bounds) map[float64]Waypoint {
	out := make(map[float64]Waypoint)
	for _, p := range t.points {
		if b.contains(p.Position) {
			out[p.Position] = p
		}
	}
	return out
}
