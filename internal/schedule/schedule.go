// Package schedule reads journey schedules (schedule_esf.xml) and the static
// track layout description.
package schedule

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"block-occupancy/internal/track"
	"block-occupancy/internal/trajectory"
)

// Leg is one link of a journey as scheduled.
type Leg struct {
	Departure time.Time
	Arrival   time.Time
	Nodes     []track.Node
	Samples   []trajectory.Sample
}

// NodeIDs lists the ids of the leg's nodes in order.
func (l Leg) NodeIDs() []int {
	ids := make([]int, len(l.Nodes))
	for i, n := range l.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// Journey is the schedule of one train run.
type Journey struct {
	Line string
	ID   string
	Legs []Leg
}

// Key identifies the journey as "<line> <journey>".
func (j Journey) Key() string {
	return j.Line + " " + j.ID
}

type xmlSchedule struct {
	Links []xmlLink `xml:",any"`
}

type xmlLink struct {
	Origin struct {
		MinAbfahrt struct {
			Abfahrtzeit string `xml:"abfahrtzeit"`
		} `xml:"min_abfahrt"`
	} `xml:"Origin"`
	Destination struct {
		Stops []xmlStop `xml:",any"`
	} `xml:"Destination"`
	Verlauf struct {
		Nodes []xmlNode `xml:",any"`
	} `xml:"Verlauf"`
	Trajectory struct {
		Records struct {
			Records []xmlRecord `xml:",any"`
		} `xml:"records"`
	} `xml:"trajectory"`
}

type xmlStop struct {
	Ankunftzeit string `xml:"ankunftzeit"`
}

type xmlNode struct {
	XMLName          xml.Name
	ID               string `xml:"ID"`
	Kilometrierung   string `xml:"Kilometrierung"`
	FstrAufloesezeit string `xml:"FstrAufloesezeit"`
}

type xmlRecord struct {
	Xs        string `xml:"Lower_xs"`
	Vs        string `xml:"Lower_vs"`
	Ts        string `xml:"Lower_ts"`
	Timestamp string `xml:"Lower_timestamps"`
}

// parseDecimal accepts both decimal comma and decimal point.
func parseDecimal(s string) (float64, error) {
	return strconv.ParseFloat(strings.Replace(strings.TrimSpace(s), ",", ".", 1), 64)
}

const (
	isoLayout    = "2006-01-02T15:04:05"
	recordLayout = "2006-01-02 15:04:05"
)

// parseTime reads ISO timestamps with optional fraction and zone. Times
// without a zone are taken in loc.
func parseTime(s string, layout string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(layout, s, loc)
}

func (n xmlNode) toNode() (track.Node, error) {
	cat, dir := track.ParseTag(n.XMLName.Local)
	id, err := strconv.Atoi(strings.TrimSpace(n.ID))
	if err != nil {
		return track.Node{}, fmt.Errorf("node %s: invalid id %q", n.XMLName.Local, n.ID)
	}
	km, err := parseDecimal(n.Kilometrierung)
	if err != nil {
		return track.Node{}, fmt.Errorf("node %d: invalid kilometrage %q", id, n.Kilometrierung)
	}
	node := track.Node{ID: id, Category: cat, Affinity: dir, Chainage: km}
	if strings.TrimSpace(n.FstrAufloesezeit) != "" {
		if node.ReleaseTime, err = parseDecimal(n.FstrAufloesezeit); err != nil {
			return track.Node{}, fmt.Errorf("node %d: invalid release time %q", id, n.FstrAufloesezeit)
		}
	}
	return node, nil
}

func (r xmlRecord) toSample(loc *time.Location) (trajectory.Sample, error) {
	var (
		s   trajectory.Sample
		err error
	)
	if s.Offset, err = parseDecimal(r.Xs); err != nil {
		return s, fmt.Errorf("invalid Lower_xs %q", r.Xs)
	}
	if s.Velocity, err = parseDecimal(r.Vs); err != nil {
		return s, fmt.Errorf("invalid Lower_vs %q", r.Vs)
	}
	if s.Elapsed, err = parseDecimal(r.Ts); err != nil {
		return s, fmt.Errorf("invalid Lower_ts %q", r.Ts)
	}
	if strings.TrimSpace(r.Timestamp) != "" {
		if s.Time, err = parseTime(r.Timestamp, recordLayout, loc); err != nil {
			return s, fmt.Errorf("invalid Lower_timestamps %q", r.Timestamp)
		}
	}
	return s, nil
}

// arrival is read from the third destination entry, or the first one that
// carries an arrival time.
func (l xmlLink) arrival() string {
	stops := l.Destination.Stops
	if len(stops) > 2 && strings.TrimSpace(stops[2].Ankunftzeit) != "" {
		return stops[2].Ankunftzeit
	}
	for _, s := range stops {
		if strings.TrimSpace(s.Ankunftzeit) != "" {
			return s.Ankunftzeit
		}
	}
	return ""
}

// Decode reads a schedule document. loc applies to timestamps without zone.
func Decode(r io.Reader, line, journeyID string, loc *time.Location) (Journey, error) {
	if loc == nil {
		loc = time.Local
	}
	var doc xmlSchedule
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return Journey{}, fmt.Errorf("decode schedule: %w", err)
	}

	j := Journey{Line: line, ID: journeyID, Legs: make([]Leg, 0, len(doc.Links))}
	for i, link := range doc.Links {
		var leg Leg
		var err error
		if leg.Departure, err = parseTime(link.Origin.MinAbfahrt.Abfahrtzeit, isoLayout, loc); err != nil {
			return Journey{}, fmt.Errorf("link %d: invalid departure %q", i+1, link.Origin.MinAbfahrt.Abfahrtzeit)
		}
		if a := link.arrival(); a != "" {
			if leg.Arrival, err = parseTime(a, isoLayout, loc); err != nil {
				return Journey{}, fmt.Errorf("link %d: invalid arrival %q", i+1, a)
			}
		}
		for _, xn := range link.Verlauf.Nodes {
			n, err := xn.toNode()
			if err != nil {
				return Journey{}, fmt.Errorf("link %d: %w", i+1, err)
			}
			leg.Nodes = append(leg.Nodes, n)
		}
		for k, xr := range link.Trajectory.Records.Records {
			s, err := xr.toSample(loc)
			if err != nil {
				return Journey{}, fmt.Errorf("link %d record %d: %w", i+1, k+1, err)
			}
			leg.Samples = append(leg.Samples, s)
		}
		j.Legs = append(j.Legs, leg)
	}
	return j, nil
}

// LoadJourney reads the schedule file at path.
func LoadJourney(path, line, journeyID string, loc *time.Location) (Journey, error) {
	f, err := os.Open(path)
	if err != nil {
		return Journey{}, fmt.Errorf("open schedule: %w", err)
	}
	defer f.Close()

	j, err := Decode(f, line, journeyID, loc)
	if err != nil {
		return Journey{}, fmt.Errorf("%s: %w", path, err)
	}
	return j, nil
}
