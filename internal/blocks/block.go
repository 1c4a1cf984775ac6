// Package blocks partitions a journey's ordered trackside elements into signal
// blocks bounded by main signals.
package blocks

import (
	"fmt"
	"math"

	"block-occupancy/internal/track"
)

// Point is an identified position on the absolute scale.
type Point struct {
	ID       int     `json:"id"`
	Position float64 `json:"position"`
}

// RouteSection is a contiguous sub-division of a block delimited by
// route-lock points.
type RouteSection struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// ID identifies the section across journeys.
func (s RouteSection) ID() string {
	return fmt.Sprintf("%d-%d", s.Start.ID, s.End.ID)
}

// Block is the track between two consecutive main signals in the direction
// of travel.
type Block struct {
	ID          string         `json:"id"`
	Approach    *Point         `json:"approach,omitempty"`
	Start       Point          `json:"start"`
	End         Point          `json:"end"`
	Clearance   *Point         `json:"clearance,omitempty"`
	ReleaseTime float64        `json:"release_time,omitempty"` // seconds, with Clearance only
	Sections    []RouteSection `json:"sections"`

	ApproachDistance  float64 `json:"approach_distance"`
	Length            float64 `json:"length"`
	ClearanceDistance float64 `json:"clearance_distance"`
}

func blockID(start, end int) string {
	return fmt.Sprintf("%d-%d", start, end)
}

// Degenerate reports a block whose boundaries are the same signal or share
// one position, including distinct main signals placed at the same chainage.
func (b Block) Degenerate() bool {
	return b.Start.ID == b.End.ID || b.Start.Position == b.End.Position
}

// Carry is the last known route-lock point of a leg, handed to the next leg
// of the same journey so segmentation continues where it stopped.
type Carry struct {
	Point
	// Sections are the route sections already accumulated by a block that is
	// still open at the end of the leg; the last one has no end yet.
	Sections []RouteSection
	Valid    bool
}

// CarryFrom wraps p as a valid carry.
func CarryFrom(p Point) Carry {
	return Carry{Point: p, Valid: true}
}

// ComputeDistances fills the structural distances of every block. Approach
// and clearance distances are signed progress along dir; the block length is
// always the absolute distance between its main signals.
func ComputeDistances(blocks []Block, dir track.Direction) {
	sign := dir.Sign()
	for i := range blocks {
		b := &blocks[i]
		b.ApproachDistance = 0
		if b.Approach != nil {
			b.ApproachDistance = (b.Start.Position - b.Approach.Position) * sign
		}
		b.Length = math.Abs(b.End.Position - b.Start.Position)
		b.ClearanceDistance = 0
		if b.Clearance != nil {
			b.ClearanceDistance = (b.Clearance.Position - b.End.Position) * sign
		}
	}
}
