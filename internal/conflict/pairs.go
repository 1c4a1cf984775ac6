package conflict

import (
	"sort"

	"github.com/tidwall/rtree"
)

// Pair is two journeys worth comparing, with A < B by id.
type Pair struct {
	A, B string
}

type legRef struct {
	journey int
	leg     int
}

func legBox(l Leg) (lo, hi [2]float64) {
	dep := float64(l.Departure.Unix())
	arr := float64(l.Arrival.Unix())
	if arr < dep {
		dep, arr = arr, dep
	}
	return [2]float64{dep, l.MinPos}, [2]float64{arr, l.MaxPos}
}

func shareNode(a, b []int) bool {
	seen := make(map[int]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := seen[id]; ok {
			return true
		}
	}
	return false
}

// legsOverlap reports whether one leg departs while the other is still
// underway.
func legsOverlap(a, b Leg) bool {
	if a.Departure.Before(b.Departure) {
		return b.Departure.Before(a.Arrival)
	}
	return a.Departure.Before(b.Arrival)
}

// RelevantPairs returns the journey pairs that have at least one pair of
// legs sharing a node while both are underway. Legs are indexed by time and
// position span so only nearby legs are compared.
func RelevantPairs(journeys []Journey) []Pair {
	var tr rtree.RTreeG[legRef]
	for ji, j := range journeys {
		for li, l := range j.Legs {
			lo, hi := legBox(l)
			tr.Insert(lo, hi, legRef{journey: ji, leg: li})
		}
	}

	found := make(map[Pair]struct{})
	for ji, j := range journeys {
		for _, l := range j.Legs {
			lo, hi := legBox(l)
			tr.Search(lo, hi, func(_, _ [2]float64, ref legRef) bool {
				if ref.journey <= ji {
					return true
				}
				other := journeys[ref.journey]
				ol := other.Legs[ref.leg]
				if !legsOverlap(l, ol) || !shareNode(l.NodeIDs, ol.NodeIDs) {
					return true
				}
				p := Pair{A: j.ID, B: other.ID}
				if p.B < p.A {
					p.A, p.B = p.B, p.A
				}
				found[p] = struct{}{}
				return true
			})
		}
	}

	out := make([]Pair, 0, len(found))
	for p := range found {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}
