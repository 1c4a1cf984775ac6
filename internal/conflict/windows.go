// Package conflict derives per route-section occupation windows of journeys
// and reports sections two journeys occupy at overlapping times.
package conflict

import (
	"math"
	"sort"
	"time"

	"block-occupancy/internal/blocks"
	"block-occupancy/internal/occupancy"
)

// Leg is one scheduled link of a journey with its computed blocks and
// intervals. Intervals[i] belongs to Blocks[i].
type Leg struct {
	Departure time.Time `json:"departure"`
	Arrival   time.Time `json:"arrival"`
	NodeIDs   []int     `json:"node_ids"`
	// MinPos and MaxPos bound the positions the leg travels over.
	MinPos    float64              `json:"min_pos"`
	MaxPos    float64              `json:"max_pos"`
	Blocks    []blocks.Block       `json:"blocks"`
	Intervals []occupancy.Interval `json:"intervals"`
}

// Journey is one train run, identified as "<line> <journey>".
type Journey struct {
	ID   string `json:"id"`
	Legs []Leg  `json:"legs"`
}

// Window is the time one journey holds one route section.
type Window struct {
	JourneyID string
	Leg       int
	BlockID   string
	Section   blocks.RouteSection
	Start     time.Time // entry minus approach formation
	Exit      time.Time // head of the train leaves the section
	End       time.Time // exit plus clearance
}

func minutes(m float64) time.Duration {
	return time.Duration(math.Round(m * float64(time.Minute)))
}

func sum(vs []float64) float64 {
	var s float64
	for _, v := range vs {
		s += v
	}
	return s
}

// Windows computes the occupation window of every route section the journey
// passes. Each leg starts at its scheduled departure; every following block
// is entered when the previous one is left. The last section of a leg that
// is followed by another leg is left relative to the next leg's departure.
func Windows(j Journey) []Window {
	var out []Window
	for li, leg := range j.Legs {
		entry := leg.Departure
		for bi, b := range leg.Blocks {
			if bi >= len(leg.Intervals) {
				break
			}
			iv := leg.Intervals[bi]
			start := entry.Add(-minutes(iv.ApproachFormation))
			exit := entry
			for si, s := range b.Sections {
				base := entry
				if bi == len(leg.Blocks)-1 && si == len(b.Sections)-1 && li+1 < len(j.Legs) {
					base = j.Legs[li+1].Departure
				}
				exit = base.Add(minutes(sum(iv.RunningSections[:min(si+1, len(iv.RunningSections))])))
				var clearance float64
				if si < len(iv.ClearanceSections) {
					clearance = iv.ClearanceSections[si]
				}
				out = append(out, Window{
					JourneyID: j.ID,
					Leg:       li,
					BlockID:   b.ID,
					Section:   s,
					Start:     start,
					Exit:      exit,
					End:       exit.Add(minutes(clearance)),
				})
			}
			entry = exit
		}
	}
	return out
}

// Record is one section two journeys occupy at overlapping times.
type Record struct {
	SectionID string              `json:"section_id"`
	BlockID   string              `json:"block_id"`
	Section   blocks.RouteSection `json:"section"`
	// First and Second are the journeys in the order they were compared.
	First  string `json:"first"`
	Second string `json:"second"`
	// Earlier is the journey whose window starts first; on equal starts the
	// lexicographically smaller journey id.
	Earlier      string        `json:"earlier"`
	Later        string        `json:"later"`
	EarlierStart time.Time     `json:"earlier_start"`
	LaterStart   time.Time     `json:"later_start"`
	Delta        time.Duration `json:"delta"`
}

func earlierOf(a, b Window) (Window, Window) {
	if a.Start.Before(b.Start) {
		return a, b
	}
	if b.Start.Before(a.Start) {
		return b, a
	}
	if a.JourneyID <= b.JourneyID {
		return a, b
	}
	return b, a
}

// FindConflicts matches windows of two journeys on the same route section
// (equal start and end ids) and reports every pair where the later window
// starts strictly before the earlier one ends.
func FindConflicts(a, b []Window) []Record {
	bySection := make(map[string][]int, len(b))
	for i, w := range b {
		id := w.Section.ID()
		bySection[id] = append(bySection[id], i)
	}

	var out []Record
	for _, wa := range a {
		for _, i := range bySection[wa.Section.ID()] {
			wb := b[i]
			earlier, later := earlierOf(wa, wb)
			if !later.Start.Before(earlier.End) {
				continue
			}
			out = append(out, Record{
				SectionID:    wa.Section.ID(),
				BlockID:      earlier.BlockID,
				Section:      wa.Section,
				First:        wa.JourneyID,
				Second:       wb.JourneyID,
				Earlier:      earlier.JourneyID,
				Later:        later.JourneyID,
				EarlierStart: earlier.Start,
				LaterStart:   later.Start,
				Delta:        later.Start.Sub(earlier.Start),
			})
		}
	}
	SortRecords(out)
	return out
}

// SortRecords orders records by time, then section, then journeys.
func SortRecords(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if !a.EarlierStart.Equal(b.EarlierStart) {
			return a.EarlierStart.Before(b.EarlierStart)
		}
		if a.SectionID != b.SectionID {
			return a.SectionID < b.SectionID
		}
		if a.Earlier != b.Earlier {
			return a.Earlier < b.Earlier
		}
		if a.Later != b.Later {
			return a.Later < b.Later
		}
		return a.LaterStart.Before(b.LaterStart)
	})
}
