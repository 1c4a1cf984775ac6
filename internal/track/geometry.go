package track

import (
	"errors"
	"fmt"
)

// ErrNoDirection is returned when a node sequence has no two distinct
// positions, so no direction of travel can be inferred.
var ErrNoDirection = errors.New("no direction inferable: all positions are equal")

// CorrectionKind selects how a stub-section correction is applied.
type CorrectionKind string

const (
	// Offset adds Value to the raw chainage.
	Offset CorrectionKind = "offset"
	// Reflect maps the raw chainage to Value - chainage.
	Reflect CorrectionKind = "reflect"
)

// IDRange is an inclusive range of node ids.
type IDRange struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// Correction maps the chainage of nodes on a non-mainline stub section onto
// the mainline coordinate.
type Correction struct {
	Name   string         `yaml:"name"`
	Kind   CorrectionKind `yaml:"kind"`
	Value  float64        `yaml:"value"`
	Ranges []IDRange      `yaml:"ranges"`
}

func (c Correction) covers(id int) bool {
	for _, r := range c.Ranges {
		if id >= r.From && id <= r.To {
			return true
		}
	}
	return false
}

func (c Correction) apply(chainage float64) float64 {
	if c.Kind == Reflect {
		return c.Value - chainage
	}
	return chainage + c.Value
}

// Resolver converts raw chainage into one monotonic absolute position scale.
type Resolver struct {
	Corrections []Correction
}

func single(id int) IDRange { return IDRange{From: id, To: id} }

// DefaultResolver returns the corrections for the two stub sections of the
// analysed network.
func DefaultResolver() Resolver {
	return Resolver{Corrections: []Correction{
		{
			Name:   "stub-one",
			Kind:   Offset,
			Value:  11.67,
			Ranges: []IDRange{{From: 66, To: 73}, single(26)},
		},
		{
			Name:  "stub-two",
			Kind:  Reflect,
			Value: 28.499,
			Ranges: []IDRange{
				{From: 168, To: 170}, single(175), {From: 217, To: 223}, single(250),
				{From: 263, To: 268}, single(270), {From: 282, To: 287}, single(297),
				{From: 299, To: 305}, single(328), {From: 330, To: 331}, {From: 353, To: 358},
				single(360), {From: 382, To: 385}, single(397),
			},
		},
	}}
}

// Validate rejects overlapping correction ranges; the two stub sections
// must be disjoint.
func (r Resolver) Validate() error {
	for i, a := range r.Corrections {
		if a.Kind != Offset && a.Kind != Reflect {
			return fmt.Errorf("correction %q: unknown kind %q", a.Name, a.Kind)
		}
		for _, b := range r.Corrections[i+1:] {
			for _, ra := range a.Ranges {
				for _, rb := range b.Ranges {
					if ra.From <= rb.To && rb.From <= ra.To {
						return fmt.Errorf("corrections %q and %q overlap on ids %d-%d", a.Name, b.Name, max(ra.From, rb.From), min(ra.To, rb.To))
					}
				}
			}
		}
	}
	return nil
}

// Position returns the absolute position of n in kilometres.
func (r Resolver) Position(n Node) float64 {
	for _, c := range r.Corrections {
		if c.covers(n.ID) {
			return c.apply(n.Chainage)
		}
	}
	return n.Chainage
}

// InferDirection scans consecutive resolved positions until the first
// nonzero delta; its sign is the direction of travel.
func (r Resolver) InferDirection(nodes []Node) (Direction, error) {
	if len(nodes) < 2 {
		return 0, ErrNoDirection
	}
	prev := r.Position(nodes[0])
	for _, n := range nodes[1:] {
		pos := r.Position(n)
		switch diff := pos - prev; {
		case diff > 0:
			return Ascending, nil
		case diff < 0:
			return Descending, nil
		}
		prev = pos
	}
	return 0, ErrNoDirection
}
