package blocks

import (
	"errors"
	"fmt"
	"log/slog"

	"block-occupancy/internal/track"
)

var ErrNoNodes = errors.New("leg has no nodes")

// Result is the outcome of segmenting one leg.
type Result struct {
	Blocks []Block
	// Carry seeds the segmentation of the next leg of the same journey.
	Carry Carry
	// Origin is the position of the leg's first node, the point a trajectory
	// of this leg starts from.
	Origin float64
}

// Segmenter turns the node sequence of a leg into blocks.
type Segmenter struct {
	Resolver       track.Resolver
	Infrastructure *Infrastructure
	Logger         *slog.Logger
}

// segmentState is the open block plus what the next transition needs to see.
type segmentState struct {
	start    Point
	sections []RouteSection
	pending  *Point // approach signal of the block the next main signal opens
	approach *Point // approach signal of the open block
	// index into the emitted blocks of the most recent closure, -1 if none
	lastClosed int
	lastLock   Point
	sawMain    bool
}

func (st *segmentState) open(start Point) {
	st.start = start
	st.sections = []RouteSection{{Start: start}}
	st.approach = st.pending
	st.pending = nil
}

// closeAt ends the open block at end and returns it.
func (st *segmentState) closeAt(end Point) Block {
	sections := st.sections
	sections[len(sections)-1].End = end
	if n := len(sections); n > 1 && sections[n-1].Start.Position == end.Position {
		sections = sections[:n-1]
		sections[n-2].End = end
	}
	return Block{
		ID:       blockID(st.start.ID, end.ID),
		Approach: st.approach,
		Start:    st.start,
		End:      end,
		Sections: sections,
	}
}

func (s Segmenter) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s Segmenter) point(n track.Node) Point {
	return Point{ID: n.ID, Position: s.Resolver.Position(n)}
}

// resolveStart finds the opening block's start for a leg without carry-in.
func (s Segmenter) resolveStart(first track.Node, dir track.Direction) Point {
	firstPos := s.Resolver.Position(first)
	found, ok := s.Infrastructure.PrecedingLockPoint(s.Resolver, first, dir)
	if !ok {
		s.logger().Debug("no preceding lock point, starting at first node",
			slog.Int("node", first.ID))
		return Point{ID: first.ID, Position: firstPos}
	}
	p := s.point(found)
	// the start never lies beyond the first node of the leg
	if dir.Passed(p.Position, firstPos) {
		p.Position = firstPos
	}
	return p
}

// Segment partitions the leg's nodes into blocks. Only nodes whose affinity
// matches dir take part. carry is the carry-out of the previous leg of the
// same journey, or the zero Carry for a journey's first leg.
func (s Segmenter) Segment(nodes []track.Node, dir track.Direction, carry Carry) (Result, error) {
	if dir.Sign() == 0 {
		return Result{}, track.ErrNoDirection
	}
	if len(nodes) > 0 && nodes[0].Category == track.SwitchStartMarker {
		nodes = nodes[1:]
	}
	if len(nodes) == 0 {
		return Result{}, ErrNoNodes
	}
	log := s.logger()

	start := carry.Point
	if !carry.Valid {
		start = s.resolveStart(nodes[0], dir)
	}
	st := segmentState{lastClosed: -1, lastLock: start}
	st.open(start)
	if carry.Valid && len(carry.Sections) > 0 {
		st.sections = append([]RouteSection(nil), carry.Sections...)
	}

	var out []Block
	for _, n := range nodes {
		if !n.RelevantFor(dir) {
			continue
		}
		p := s.point(n)
		switch n.Category {
		case track.ApproachSignal:
			st.pending = &p

		case track.MainSignal:
			st.sawMain = true
			st.lastLock = p
			if n.ID == st.start.ID {
				continue
			}
			b := st.closeAt(p)
			st.lastClosed = -1
			if !b.Degenerate() {
				out = append(out, b)
				st.lastClosed = len(out) - 1
			}
			st.open(p)

		case track.RearClearanceSignal:
			if st.lastClosed < 0 || out[st.lastClosed].Clearance != nil {
				log.Debug("rear clearance point without eligible block",
					slog.Int("node", n.ID))
				continue
			}
			out[st.lastClosed].Clearance = &p
			out[st.lastClosed].ReleaseTime = n.ReleaseTime

		case track.RouteLockPoint:
			st.lastLock = p
			cur := &st.sections[len(st.sections)-1]
			if cur.Start.Position == p.Position {
				cur.Start.ID = p.ID
				continue
			}
			cur.End = p
			st.sections = append(st.sections, RouteSection{Start: p})
		}
	}

	res := Result{Origin: s.Resolver.Position(nodes[0])}
	if !st.sawMain {
		log.Debug("leg without main signal, carrying open block",
			slog.Int("start", st.start.ID))
		res.Carry = Carry{Point: st.start, Sections: st.sections, Valid: true}
		return res, nil
	}
	if b := st.closeAt(st.lastLock); !b.Degenerate() {
		out = append(out, b)
	}
	ComputeDistances(out, dir)
	res.Blocks = out
	res.Carry = CarryFrom(st.lastLock)
	return res, nil
}

// SegmentJourney segments consecutive legs, threading the carry from one leg
// into the next.
func (s Segmenter) SegmentJourney(legs [][]track.Node, dirs []track.Direction) ([]Result, error) {
	if len(legs) != len(dirs) {
		return nil, fmt.Errorf("segment journey: %d legs but %d directions", len(legs), len(dirs))
	}
	results := make([]Result, 0, len(legs))
	var carry Carry
	for i, nodes := range legs {
		res, err := s.Segment(nodes, dirs[i], carry)
		if err != nil {
			return nil, fmt.Errorf("segment leg %d: %w", i, err)
		}
		carry = res.Carry
		results = append(results, res)
	}
	return results, nil
}
