package blocks

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"block-occupancy/internal/track"
)

func asc(c track.Category, id int, km float64) track.Node {
	return track.Node{ID: id, Category: c, Affinity: track.Ascending, Chainage: km}
}

func desc(c track.Category, id int, km float64) track.Node {
	return track.Node{ID: id, Category: c, Affinity: track.Descending, Chainage: km}
}

func ids(bs []Block) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}

func sectionIDs(b Block) []string {
	out := make([]string, len(b.Sections))
	for i, s := range b.Sections {
		out[i] = s.ID()
	}
	return out
}

func TestSegmentMainApproachMain(t *testing.T) {
	nodes := []track.Node{
		asc(track.MainSignal, 1, 1.0),
		asc(track.ApproachSignal, 2, 1.5),
		asc(track.MainSignal, 3, 2.0),
	}

	res, err := Segmenter{}.Segment(nodes, track.Ascending, Carry{})
	require.NoError(t, err)
	require.Len(t, res.Blocks, 1)

	b := res.Blocks[0]
	assert.Equal(t, "1-3", b.ID)
	assert.Equal(t, 1, b.Start.ID)
	assert.Equal(t, 3, b.End.ID)
	require.NotEmpty(t, b.Sections)
	assert.Equal(t, b.Start.Position, b.Sections[0].Start.Position)
	assert.Equal(t, b.End.Position, b.Sections[len(b.Sections)-1].End.Position)
	// 2 is the approach signal of the block opened at 3, not of block 1-3;
	// see TestSegmentApproachAnnouncesNextBlock
	assert.Nil(t, b.Approach)
	assert.Equal(t, CarryFrom(Point{ID: 3, Position: 2.0}), res.Carry)
}

func TestSegmentApproachAnnouncesNextBlock(t *testing.T) {
	inf := &Infrastructure{Sections: []TrackSection{{
		Name: "main",
		Nodes: []track.Node{
			asc(track.MainSignal, 9, 0.2),
			asc(track.ApproachSignal, 10, 0.5),
			asc(track.MainSignal, 1, 1.0),
			asc(track.MainSignal, 3, 2.0),
		},
	}}}
	nodes := []track.Node{
		asc(track.ApproachSignal, 10, 0.5),
		asc(track.MainSignal, 1, 1.0),
		asc(track.MainSignal, 3, 2.0),
	}

	res, err := Segmenter{Infrastructure: inf}.Segment(nodes, track.Ascending, Carry{})
	require.NoError(t, err)
	assert.Equal(t, []string{"9-1", "1-3"}, ids(res.Blocks))

	assert.Nil(t, res.Blocks[0].Approach)
	require.NotNil(t, res.Blocks[1].Approach)
	assert.Equal(t, 10, res.Blocks[1].Approach.ID)
	assert.InDelta(t, 0.5, res.Blocks[1].ApproachDistance, 1e-9)
	assert.InDelta(t, 0.5, res.Origin, 1e-9)
}

func TestSegmentLatestApproachWins(t *testing.T) {
	nodes := []track.Node{
		asc(track.MainSignal, 1, 1.0),
		asc(track.ApproachSignal, 2, 1.2),
		asc(track.ApproachSignal, 4, 1.6),
		asc(track.MainSignal, 3, 2.0),
		asc(track.MainSignal, 5, 3.0),
	}

	res, err := Segmenter{}.Segment(nodes, track.Ascending, Carry{})
	require.NoError(t, err)
	require.Equal(t, []string{"1-3", "3-5"}, ids(res.Blocks))
	require.NotNil(t, res.Blocks[1].Approach)
	assert.Equal(t, 4, res.Blocks[1].Approach.ID)
}

func TestSegmentWithoutMainSignal(t *testing.T) {
	nodes := []track.Node{
		asc(track.ApproachSignal, 1, 1.0),
		asc(track.RouteLockPoint, 2, 1.5),
		asc(track.RearClearanceSignal, 3, 1.8),
	}

	res, err := Segmenter{}.Segment(nodes, track.Ascending, Carry{})
	require.NoError(t, err)
	assert.Empty(t, res.Blocks)
	// the open block continues in the next leg, with its sections so far
	assert.True(t, res.Carry.Valid)
	assert.Equal(t, Point{ID: 1, Position: 1.0}, res.Carry.Point)
	require.Len(t, res.Carry.Sections, 2)
	assert.Equal(t, "1-2", res.Carry.Sections[0].ID())
	assert.Equal(t, Point{ID: 2, Position: 1.5}, res.Carry.Sections[1].Start)
}

func TestSegmentStructure(t *testing.T) {
	tests := []struct {
		name     string
		dir      track.Direction
		nodes    []track.Node
		blocks   []string
		sections [][]string
	}{
		{
			name: "ascending",
			dir:  track.Ascending,
			nodes: []track.Node{
				asc(track.MainSignal, 1, 1.0),
				asc(track.RouteLockPoint, 2, 1.4),
				asc(track.RouteLockPoint, 3, 1.8),
				asc(track.MainSignal, 4, 2.0),
				asc(track.RouteLockPoint, 5, 2.5),
				asc(track.MainSignal, 6, 3.0),
			},
			blocks:   []string{"1-4", "4-6"},
			sections: [][]string{{"1-2", "2-3", "3-4"}, {"4-5", "5-6"}},
		},
		{
			name: "descending",
			dir:  track.Descending,
			nodes: []track.Node{
				desc(track.MainSignal, 1, 5.0),
				desc(track.RouteLockPoint, 2, 4.6),
				desc(track.RouteLockPoint, 3, 4.2),
				desc(track.MainSignal, 4, 4.0),
				desc(track.RouteLockPoint, 5, 3.5),
				desc(track.MainSignal, 6, 3.0),
			},
			blocks:   []string{"1-4", "4-6"},
			sections: [][]string{{"1-2", "2-3", "3-4"}, {"4-5", "5-6"}},
		},
		{
			name: "other direction ignored",
			dir:  track.Ascending,
			nodes: []track.Node{
				asc(track.MainSignal, 1, 1.0),
				desc(track.MainSignal, 7, 1.5),
				desc(track.RouteLockPoint, 8, 1.6),
				asc(track.MainSignal, 4, 2.0),
			},
			blocks:   []string{"1-4"},
			sections: [][]string{{"1-4"}},
		},
		{
			name: "route lock at the exit signal",
			dir:  track.Ascending,
			nodes: []track.Node{
				asc(track.MainSignal, 1, 1.0),
				asc(track.RouteLockPoint, 7, 2.0),
				asc(track.MainSignal, 2, 2.0),
			},
			blocks:   []string{"1-2"},
			sections: [][]string{{"1-2"}},
		},
		{
			name: "route locks before and at the exit signal",
			dir:  track.Descending,
			nodes: []track.Node{
				desc(track.MainSignal, 1, 5.0),
				desc(track.RouteLockPoint, 7, 4.5),
				desc(track.RouteLockPoint, 8, 4.0),
				desc(track.MainSignal, 2, 4.0),
				desc(track.MainSignal, 3, 3.0),
			},
			blocks:   []string{"1-2", "2-3"},
			sections: [][]string{{"1-7", "7-2"}, {"2-3"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Segmenter{}.Segment(tt.nodes, tt.dir, Carry{})
			require.NoError(t, err)
			require.Equal(t, tt.blocks, ids(res.Blocks))

			for i, b := range res.Blocks {
				assert.Equal(t, tt.sections[i], sectionIDs(b))
				assert.InDelta(t, math.Abs(b.End.Position-b.Start.Position), b.Length, 1e-12)
				assert.GreaterOrEqual(t, b.Length, 0.0)
				for j := 0; j+1 < len(b.Sections); j++ {
					assert.Equal(t, b.Sections[j].End, b.Sections[j+1].Start)
				}
				assert.Equal(t, b.Start.Position, b.Sections[0].Start.Position)
				assert.Equal(t, b.End, b.Sections[len(b.Sections)-1].End)
			}
		})
	}
}

func TestSegmentRearClearance(t *testing.T) {
	zs := asc(track.RearClearanceSignal, 5, 2.3)
	zs.ReleaseTime = 6
	nodes := []track.Node{
		asc(track.MainSignal, 1, 1.0),
		asc(track.RearClearanceSignal, 8, 1.1), // nothing closed yet
		asc(track.MainSignal, 2, 2.0),
		zs,
		asc(track.RearClearanceSignal, 6, 2.4), // block already cleared
		asc(track.MainSignal, 3, 3.0),
	}

	res, err := Segmenter{}.Segment(nodes, track.Ascending, Carry{})
	require.NoError(t, err)
	require.Equal(t, []string{"1-2", "2-3"}, ids(res.Blocks))

	b := res.Blocks[0]
	require.NotNil(t, b.Clearance)
	assert.Equal(t, 5, b.Clearance.ID)
	assert.Equal(t, 6.0, b.ReleaseTime)
	assert.InDelta(t, 0.3, b.ClearanceDistance, 1e-9)
	assert.Nil(t, res.Blocks[1].Clearance)
}

func TestSegmentRouteLockSupersedesSectionStart(t *testing.T) {
	nodes := []track.Node{
		asc(track.MainSignal, 1, 1.0),
		asc(track.RouteLockPoint, 7, 1.0),
		asc(track.RouteLockPoint, 8, 1.5),
		asc(track.MainSignal, 2, 2.0),
	}

	res, err := Segmenter{}.Segment(nodes, track.Ascending, Carry{})
	require.NoError(t, err)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, 1, res.Blocks[0].Start.ID)
	assert.Equal(t, []string{"7-8", "8-2"}, sectionIDs(res.Blocks[0]))
}

func TestSegmentSkipsLeadingSwitchStart(t *testing.T) {
	nodes := []track.Node{
		{ID: 99, Category: track.SwitchStartMarker, Chainage: 0.4},
		asc(track.MainSignal, 1, 1.0),
		asc(track.MainSignal, 2, 2.0),
	}

	res, err := Segmenter{}.Segment(nodes, track.Ascending, Carry{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1-2"}, ids(res.Blocks))
	assert.InDelta(t, 1.0, res.Origin, 1e-9)
}

func TestSegmentJourneyThreadsCarry(t *testing.T) {
	legs := [][]track.Node{
		{
			asc(track.MainSignal, 1, 1.0),
			asc(track.MainSignal, 2, 2.0),
			asc(track.RouteLockPoint, 3, 2.5),
		},
		{
			asc(track.MainSignal, 4, 3.0),
			asc(track.MainSignal, 5, 4.0),
		},
	}

	results, err := Segmenter{}.SegmentJourney(legs, []track.Direction{track.Ascending, track.Ascending})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, []string{"1-2", "2-3"}, ids(results[0].Blocks))
	assert.Equal(t, []string{"2-3"}, sectionIDs(results[0].Blocks[1]))
	assert.Equal(t, CarryFrom(Point{ID: 3, Position: 2.5}), results[0].Carry)

	assert.Equal(t, []string{"3-4", "4-5"}, ids(results[1].Blocks))
	assert.InDelta(t, 0.5, results[1].Blocks[0].Length, 1e-9)
}

func TestSegmentJourneyKeepsSectionsAcrossLegs(t *testing.T) {
	legs := [][]track.Node{
		{
			asc(track.MainSignal, 1, 1.0),
			asc(track.MainSignal, 2, 2.0),
		},
		{
			asc(track.RouteLockPoint, 3, 2.5),
			asc(track.RouteLockPoint, 4, 2.8),
		},
		{
			asc(track.RouteLockPoint, 5, 3.2),
			asc(track.MainSignal, 6, 4.0),
		},
	}
	dirs := []track.Direction{track.Ascending, track.Ascending, track.Ascending}

	results, err := Segmenter{}.SegmentJourney(legs, dirs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, []string{"1-2"}, ids(results[0].Blocks))
	assert.Empty(t, results[1].Blocks)

	require.Equal(t, []string{"2-6"}, ids(results[2].Blocks))
	b := results[2].Blocks[0]
	assert.Equal(t, []string{"2-3", "3-4", "4-5", "5-6"}, sectionIDs(b))
	assert.InDelta(t, 2.0, b.Length, 1e-9)
	assert.Equal(t, CarryFrom(Point{ID: 6, Position: 4.0}), results[2].Carry)
}

func TestSegmentDropsDegenerateBlocks(t *testing.T) {
	nodes := []track.Node{
		asc(track.MainSignal, 1, 1.0),
		asc(track.MainSignal, 2, 1.0),
		asc(track.MainSignal, 3, 2.0),
	}

	res, err := Segmenter{}.Segment(nodes, track.Ascending, Carry{})
	require.NoError(t, err)
	// 1-2 spans no track
	assert.Equal(t, []string{"2-3"}, ids(res.Blocks))

	assert.True(t, Block{Start: Point{ID: 1, Position: 1.0}, End: Point{ID: 1, Position: 1.0}}.Degenerate())
	assert.True(t, Block{Start: Point{ID: 1, Position: 1.0}, End: Point{ID: 2, Position: 1.0}}.Degenerate())
	assert.False(t, Block{Start: Point{ID: 1, Position: 1.0}, End: Point{ID: 2, Position: 1.2}}.Degenerate())
}

func TestSegmentJourneyMismatch(t *testing.T) {
	_, err := Segmenter{}.SegmentJourney(make([][]track.Node, 2), []track.Direction{track.Ascending})
	assert.Error(t, err)
}

func TestSegmentStartResolution(t *testing.T) {
	tests := []struct {
		name     string
		dir      track.Direction
		infra    []track.Node
		nodes    []track.Node
		startID  int
		startPos float64
	}{
		{
			name: "main signal preferred at equal position",
			dir:  track.Ascending,
			infra: []track.Node{
				asc(track.RouteLockPoint, 20, 0.5),
				asc(track.MainSignal, 21, 0.5),
				asc(track.RouteLockPoint, 22, 0.5),
				asc(track.ApproachSignal, 23, 0.8),
				asc(track.MainSignal, 1, 1.0),
			},
			nodes:    []track.Node{asc(track.ApproachSignal, 23, 0.8), asc(track.MainSignal, 1, 1.0)},
			startID:  21,
			startPos: 0.5,
		},
		{
			name: "nearest route lock",
			dir:  track.Ascending,
			infra: []track.Node{
				asc(track.MainSignal, 21, 0.2),
				asc(track.RouteLockPoint, 22, 0.6),
				asc(track.ApproachSignal, 23, 0.8),
			},
			nodes:    []track.Node{asc(track.ApproachSignal, 23, 0.8), asc(track.MainSignal, 1, 1.0)},
			startID:  22,
			startPos: 0.6,
		},
		{
			name: "descending searches forward in document order",
			dir:  track.Descending,
			infra: []track.Node{
				desc(track.ApproachSignal, 30, 2.2),
				desc(track.RouteLockPoint, 32, 2.6),
				desc(track.MainSignal, 31, 3.0),
			},
			nodes:    []track.Node{desc(track.ApproachSignal, 30, 2.2), desc(track.MainSignal, 1, 1.0)},
			startID:  32,
			startPos: 2.6,
		},
		{
			name: "clamped to the first node",
			dir:  track.Ascending,
			infra: []track.Node{
				asc(track.RouteLockPoint, 40, 1.2),
				asc(track.ApproachSignal, 41, 1.0),
			},
			nodes:    []track.Node{asc(track.ApproachSignal, 41, 1.0), asc(track.MainSignal, 42, 2.0)},
			startID:  40,
			startPos: 1.0,
		},
		{
			name:     "unknown node starts at itself",
			dir:      track.Ascending,
			nodes:    []track.Node{asc(track.ApproachSignal, 50, 0.7), asc(track.MainSignal, 51, 2.0)},
			startID:  50,
			startPos: 0.7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inf := &Infrastructure{Sections: []TrackSection{{Name: "s", Nodes: tt.infra}}}
			res, err := Segmenter{Infrastructure: inf}.Segment(tt.nodes, tt.dir, Carry{})
			require.NoError(t, err)
			require.NotEmpty(t, res.Blocks)
			assert.Equal(t, tt.startID, res.Blocks[0].Start.ID)
			assert.InDelta(t, tt.startPos, res.Blocks[0].Start.Position, 1e-9)
		})
	}
}

func TestSegmentErrors(t *testing.T) {
	_, err := Segmenter{}.Segment([]track.Node{asc(track.MainSignal, 1, 1)}, 0, Carry{})
	assert.ErrorIs(t, err, track.ErrNoDirection)

	_, err = Segmenter{}.Segment(nil, track.Ascending, Carry{})
	assert.ErrorIs(t, err, ErrNoNodes)
}

func TestComputeDistancesDescending(t *testing.T) {
	bs := []Block{{
		Approach:  &Point{ID: 1, Position: 5.5},
		Start:     Point{ID: 2, Position: 5.0},
		End:       Point{ID: 3, Position: 4.0},
		Clearance: &Point{ID: 4, Position: 3.8},
	}, {
		Start: Point{ID: 3, Position: 4.0},
		End:   Point{ID: 5, Position: 3.5},
	}}

	ComputeDistances(bs, track.Descending)

	assert.InDelta(t, 0.5, bs[0].ApproachDistance, 1e-9)
	assert.InDelta(t, 1.0, bs[0].Length, 1e-9)
	assert.InDelta(t, 0.2, bs[0].ClearanceDistance, 1e-9)
	assert.Zero(t, bs[1].ApproachDistance)
	assert.Zero(t, bs[1].ClearanceDistance)
	assert.InDelta(t, 0.5, bs[1].Length, 1e-9)
}

func TestInfrastructureLookups(t *testing.T) {
	inf := &Infrastructure{Sections: []TrackSection{{Name: "a", Nodes: []track.Node{asc(track.MainSignal, 1, 1.0)}}}}

	n, ok := inf.NodeByID(1)
	require.True(t, ok)
	assert.Equal(t, track.MainSignal, n.Category)

	_, ok = inf.NodeByID(2)
	assert.False(t, ok)

	var none *Infrastructure
	_, ok = none.PrecedingLockPoint(track.Resolver{}, asc(track.MainSignal, 1, 1.0), track.Ascending)
	assert.False(t, ok)
}
