package blocks

import (
	"block-occupancy/internal/track"
)

// TrackSection is one section of the static track layout with its elements
// in document order.
type TrackSection struct {
	Name  string
	Nodes []track.Node
}

// Infrastructure is the static description of the network.
type Infrastructure struct {
	Sections []TrackSection
}

// NodeByID returns the first element with the given id.
func (inf *Infrastructure) NodeByID(id int) (track.Node, bool) {
	if inf == nil {
		return track.Node{}, false
	}
	for _, s := range inf.Sections {
		for _, n := range s.Nodes {
			if n.ID == id {
				return n, true
			}
		}
	}
	return track.Node{}, false
}

func isLockCandidate(n track.Node, dir track.Direction) bool {
	return n.RelevantFor(dir) && (n.Category == track.MainSignal || n.Category == track.RouteLockPoint)
}

// PrecedingLockPoint finds the nearest route-lock point or main signal that
// precedes target in travel direction within target's own track section.
// Document order is ascending position, so for Descending travel the search
// runs forward. The target itself qualifies when it is a candidate. When
// several candidates share the nearest position a main signal wins over a
// route-lock point, and among equals the one closest to target in document
// order. ok is false when target is unknown or the section has no candidate.
func (inf *Infrastructure) PrecedingLockPoint(res track.Resolver, target track.Node, dir track.Direction) (track.Node, bool) {
	if inf == nil {
		return track.Node{}, false
	}
	for _, s := range inf.Sections {
		idx := -1
		for i, n := range s.Nodes {
			if n.ID == target.ID && n.Category == target.Category {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		if isLockCandidate(s.Nodes[idx], dir) {
			return s.Nodes[idx], true
		}
		step := -1
		if dir == track.Descending {
			step = 1
		}
		var best track.Node
		found := false
		var bestPos float64
		for i := idx + step; i >= 0 && i < len(s.Nodes); i += step {
			n := s.Nodes[i]
			if !isLockCandidate(n, dir) {
				continue
			}
			pos := res.Position(n)
			if !found {
				best, bestPos, found = n, pos, true
				continue
			}
			if pos != bestPos {
				break
			}
			if best.Category != track.MainSignal && n.Category == track.MainSignal {
				best = n
			}
		}
		return best, found
	}
	return track.Node{}, false
}
