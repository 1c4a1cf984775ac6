package schedule

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"block-occupancy/internal/blocks"
)

type xmlInfrastructure struct {
	Stations struct {
		Stations []xmlStation `xml:",any"`
	} `xml:"Spurplanbetriebsstellen"`
}

type xmlStation struct {
	Sections struct {
		Sections []xmlTrackSection `xml:",any"`
	} `xml:"Spurplanabschnitte"`
}

type xmlTrackSection struct {
	Nodes struct {
		Nodes []xmlNode `xml:",any"`
	} `xml:"Spurplanknoten"`
}

// DecodeInfrastructure reads a track layout document: stations
// (Spurplanbetriebsstellen) of track sections (Spurplanabschnitte) of
// ordered nodes (Spurplanknoten).
func DecodeInfrastructure(r io.Reader) (*blocks.Infrastructure, error) {
	var doc xmlInfrastructure
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode infrastructure: %w", err)
	}

	inf := &blocks.Infrastructure{}
	for si, st := range doc.Stations.Stations {
		for ai, sec := range st.Sections.Sections {
			ts := blocks.TrackSection{Name: fmt.Sprintf("%d/%d", si+1, ai+1)}
			for _, xn := range sec.Nodes.Nodes {
				n, err := xn.toNode()
				if err != nil {
					return nil, fmt.Errorf("section %s: %w", ts.Name, err)
				}
				ts.Nodes = append(ts.Nodes, n)
			}
			inf.Sections = append(inf.Sections, ts)
		}
	}
	return inf, nil
}

// LoadInfrastructure reads the track layout file at path.
func LoadInfrastructure(path string) (*blocks.Infrastructure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open infrastructure: %w", err)
	}
	defer f.Close()
	return DecodeInfrastructure(f)
}
