package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"block-occupancy/internal/blocks"
	"block-occupancy/internal/conflict"
	"block-occupancy/internal/db"
	"block-occupancy/internal/occupancy"
)

var (
	accent = lipgloss.Color("#FF9900")
	muted  = lipgloss.Color("#666666")
	danger = lipgloss.Color("#FF3333")
	white  = lipgloss.Color("#FFFFFF")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(white)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	mutedStyle  = lipgloss.NewStyle().Foreground(muted)
	dangerStyle = lipgloss.NewStyle().Foreground(danger).Bold(true)
)

// table renders rows with left-aligned columns padded to their widest cell.
// Widths ignore ANSI styling.
func table(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i, c := range r {
			widths[i] = max(widths[i], lipgloss.Width(c))
		}
	}
	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = c + strings.Repeat(" ", widths[i]-lipgloss.Width(c))
		}
		return strings.Join(parts, "  ")
	}
	fmt.Fprintln(w, headerStyle.Render(line(header)))
	for _, r := range rows {
		fmt.Fprintln(w, line(r))
	}
}

var intervalHeader = []string{"block", "from km", "to km", "length", "approach", "running", "clearance", "total", "source"}

func intervalRow(b blocks.Block, iv occupancy.Interval) []string {
	source := iv.Source.String()
	if iv.OriginFallback {
		source += " (origin)"
	}
	if iv.Truncated {
		source += " (truncated)"
	}
	if iv.Source.Fallback() || iv.Truncated {
		source = dangerStyle.Render(source)
	}
	return []string{
		b.ID,
		fmt.Sprintf("%.3f", b.Start.Position),
		fmt.Sprintf("%.3f", b.End.Position),
		fmt.Sprintf("%.3f", b.Length),
		fmt.Sprintf("%.4f", iv.ApproachFormation),
		fmt.Sprintf("%.4f", iv.Running),
		fmt.Sprintf("%.4f", iv.Clearance),
		fmt.Sprintf("%.4f", iv.Total),
		source,
	}
}

func renderJourney(w io.Writer, j conflict.Journey) {
	fmt.Fprintln(w, titleStyle.Render("Journey "+j.ID))
	for li, leg := range j.Legs {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("leg %d  departs %s  arrives %s  %d blocks",
			li+1, leg.Departure.Format("15:04:05"), leg.Arrival.Format("15:04:05"), len(leg.Blocks))))
		rows := make([][]string, 0, len(leg.Intervals))
		for i, iv := range leg.Intervals {
			rows = append(rows, intervalRow(leg.Blocks[i], iv))
		}
		table(w, intervalHeader, rows)
		fmt.Fprintln(w)
	}
}

func renderStored(w io.Writer, journeyID string, stored []db.StoredInterval) {
	fmt.Fprintln(w, titleStyle.Render("Journey "+journeyID))
	rows := make([][]string, 0, len(stored))
	for _, s := range stored {
		rows = append(rows, append([]string{fmt.Sprint(s.Leg + 1)}, intervalRow(s.Block, s.Interval)...))
	}
	table(w, append([]string{"leg"}, intervalHeader...), rows)
}

func renderConflicts(w io.Writer, recs []conflict.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no conflicts"))
		return
	}
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.SectionID,
			r.BlockID,
			r.Earlier,
			r.EarlierStart.Format("15:04:05"),
			r.Later,
			r.LaterStart.Format("15:04:05"),
			r.Delta.Round(time.Second).String(),
		})
	}
	table(w, []string{"section", "block", "earlier", "start", "later", "start", "headway"}, rows)

	top := conflictsBySection(recs)
	if len(top) > 5 {
		top = top[:5]
	}
	parts := make([]string, len(top))
	for i, s := range top {
		parts[i] = fmt.Sprintf("%s (%d)", s.Section, s.Count)
	}
	fmt.Fprintln(w, mutedStyle.Render("most affected sections: "+strings.Join(parts, ", ")))
}

func renderSummary(w io.Writer, runID string, journeys, failed, conflicts int, took time.Duration) {
	status := fmt.Sprintf("%d conflicts", conflicts)
	if conflicts > 0 {
		status = dangerStyle.Render(status)
	}
	fmt.Fprintf(w, "%s %s  %d journeys, %d failed, %s  %s\n",
		titleStyle.Render("run"), runID, journeys, failed, status, mutedStyle.Render(took.Round(time.Millisecond).String()))
}

type sectionCount struct {
	Section string
	Count   int
}

func sortSectionCounts(s []sectionCount) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Count != s[j].Count {
			return s[i].Count > s[j].Count
		}
		return s[i].Section < s[j].Section
	})
}
