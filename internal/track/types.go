package track

import (
	"fmt"
	"strings"
)

// Direction is the sense in which absolute position changes along a journey.
// The zero value means a node carries no direction affinity.
type Direction int8

const (
	Ascending  Direction = iota + 1 // positions increase ("S", steigend)
	Descending                      // positions decrease ("F", fallend)
)

// Sign returns +1 for Ascending, -1 for Descending and 0 otherwise.
func (d Direction) Sign() float64 {
	switch d {
	case Ascending:
		return 1
	case Descending:
		return -1
	}
	return 0
}

// Letter returns the suffix used by element tags for this direction.
func (d Direction) Letter() string {
	switch d {
	case Ascending:
		return "S"
	case Descending:
		return "F"
	}
	return ""
}

func (d Direction) String() string {
	switch d {
	case Ascending:
		return "ascending"
	case Descending:
		return "descending"
	}
	return "none"
}

// Advance moves pos by dist kilometres in direction d.
func (d Direction) Advance(pos, dist float64) float64 {
	return pos + d.Sign()*dist
}

// Passed reports whether pos lies strictly beyond target in direction d.
func (d Direction) Passed(pos, target float64) bool {
	if d == Descending {
		return pos < target
	}
	return pos > target
}

// Category is the kind of a trackside element.
type Category int8

const (
	Other Category = iota
	ApproachSignal
	MainSignal
	RearClearanceSignal
	RouteLockPoint
	SwitchStartMarker
)

func (c Category) String() string {
	switch c {
	case ApproachSignal:
		return "approach_signal"
	case MainSignal:
		return "main_signal"
	case RearClearanceSignal:
		return "rear_clearance_signal"
	case RouteLockPoint:
		return "route_lock_point"
	case SwitchStartMarker:
		return "switch_start_marker"
	}
	return "other"
}

// element tag prefixes as they appear in schedule and infrastructure files
var tagPrefixes = []struct {
	prefix   string
	category Category
}{
	{"Vorsignal", ApproachSignal},
	{"Hauptsignal", MainSignal},
	{"SignalZugschlussstelle", RearClearanceSignal},
	{"FstrZugschlussstelle", RouteLockPoint},
}

// ParseTag maps an element tag such as "HauptsignalS" to its category and
// direction affinity. Unknown tags map to Other without affinity.
func ParseTag(tag string) (Category, Direction) {
	if tag == "Weichenanfang" {
		return SwitchStartMarker, 0
	}
	for _, p := range tagPrefixes {
		rest, ok := strings.CutPrefix(tag, p.prefix)
		if !ok {
			continue
		}
		switch rest {
		case "S":
			return p.category, Ascending
		case "F":
			return p.category, Descending
		}
	}
	return Other, 0
}

// Tag is the inverse of ParseTag for the categories it knows.
func Tag(c Category, d Direction) string {
	if c == SwitchStartMarker {
		return "Weichenanfang"
	}
	for _, p := range tagPrefixes {
		if p.category == c {
			return p.prefix + d.Letter()
		}
	}
	return ""
}

// Node is one trackside element along a journey's path.
type Node struct {
	ID          int
	Category    Category
	Affinity    Direction
	Chainage    float64 // raw kilometrage, see Resolver.Position
	ReleaseTime float64 // seconds, rear-clearance signals only
}

// RelevantFor reports whether the node takes part in segmentation for d.
func (n Node) RelevantFor(d Direction) bool {
	return n.Affinity != 0 && n.Affinity == d
}

func (n Node) String() string {
	return fmt.Sprintf("%s#%d@%.3f", n.Category, n.ID, n.Chainage)
}
