// Package occupancy computes how long each signal block is occupied by a
// train: approach formation before entry, running time through the block and
// clearance time until the rear of the train has vacated it.
package occupancy

import (
	"fmt"
	"math"
)

// OverrunStep maps speeds up to MaxSpeed (km/h, inclusive) to an overrun
// distance in metres.
type OverrunStep struct {
	MaxSpeed float64 `yaml:"max_speed" json:"max_speed"`
	Distance float64 `yaml:"distance" json:"distance"`
}

// Params are the model constants. Durations are minutes unless noted.
type Params struct {
	RouteFormation float64 `yaml:"route_formation"`
	SignalSighting float64 `yaml:"signal_sighting"`
	// DefaultRelease is the release time in seconds used when a block has no
	// rear-clearance point.
	DefaultRelease float64 `yaml:"default_release"`
	// FallbackOverrun is used in metres when the entry speed is unknown.
	FallbackOverrun float64       `yaml:"fallback_overrun"`
	Overrun         []OverrunStep `yaml:"overrun"`
	OverrunAbove    float64       `yaml:"overrun_above"`
}

func DefaultParams() Params {
	return Params{
		RouteFormation:  0.1,
		SignalSighting:  0.2,
		DefaultRelease:  3,
		FallbackOverrun: 200,
		Overrun: []OverrunStep{
			{MaxSpeed: 30, Distance: 0},
			{MaxSpeed: 40, Distance: 50},
			{MaxSpeed: 60, Distance: 100},
		},
		OverrunAbove: 200,
	}
}

// OverrunFor returns the overrun distance in metres for speed.
func (p Params) OverrunFor(speed float64) float64 {
	for _, s := range p.Overrun {
		if speed <= s.MaxSpeed {
			return s.Distance
		}
	}
	return p.OverrunAbove
}

func (p Params) Validate() error {
	for name, v := range map[string]float64{
		"route_formation":  p.RouteFormation,
		"signal_sighting":  p.SignalSighting,
		"default_release":  p.DefaultRelease,
		"fallback_overrun": p.FallbackOverrun,
		"overrun_above":    p.OverrunAbove,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid %s: %v", name, v)
		}
	}
	for i, s := range p.Overrun {
		if s.Distance < 0 {
			return fmt.Errorf("invalid overrun step %d: negative distance %v", i, s.Distance)
		}
		if i > 0 && s.MaxSpeed <= p.Overrun[i-1].MaxSpeed {
			return fmt.Errorf("invalid overrun step %d: speeds must increase", i)
		}
	}
	return nil
}
