package schedule

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// FileName is the schedule file expected in every journey directory.
const FileName = "schedule_esf.xml"

// Ref locates one journey's schedule below the schedules root, laid out as
// <root>/<line>/<journey>/schedule_esf.xml.
type Ref struct {
	Line    string
	Journey string
	Path    string
}

func (r Ref) Key() string {
	return r.Line + " " + r.Journey
}

// DiscoverJourneys walks root for schedule files.
func DiscoverJourneys(root string) ([]Ref, error) {
	var refs []Ref
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != FileName {
			return nil
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 2 {
			return nil
		}
		refs = append(refs, Ref{Line: parts[0], Journey: parts[1], Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover journeys in %s: %w", root, err)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Line != refs[j].Line {
			return refs[i].Line < refs[j].Line
		}
		return refs[i].Journey < refs[j].Journey
	})
	return refs, nil
}
