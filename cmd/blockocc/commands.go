package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"block-occupancy/internal/conflict"
	"block-occupancy/internal/db"
	"block-occupancy/internal/schedule"
)

var (
	runID       string
	lineFilter  string
	noPublish   bool
	maxConflict int
)

var occupancyCmd = &cobra.Command{
	Use:   "occupancy <line> <journey>",
	Short: "Print the block occupation times of one journey",
	Long: `Segment one journey into signal blocks and print approach, running and
clearance time of every block.

Examples:
  blockocc occupancy S1 1111
  blockocc occupancy S1 1111 --run 6f1c2d0e-...`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			return runOccupancy(ctx, a, args[0], args[1])
		})(cmd, args)
	},
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Analyse every scheduled journey and report conflicts",
	Long: `Discover all journeys below SCHEDULES_DIR (<line>/<journey>/schedule_esf.xml),
compute their block occupation and report route sections occupied by two
journeys at overlapping times. Results are stored when a database is
configured and published when NATS_URL is set.`,
	Args: cobra.NoArgs,
	RunE: withApp(runConflicts),
}

var lastRunCmd = &cobra.Command{
	Use:   "last-run",
	Short: "Show the most recent finished analysis run",
	Args:  cobra.NoArgs,
	RunE:  withApp(runLastRun),
}

func init() {
	occupancyCmd.Flags().StringVar(&runID, "run", "", "read stored intervals of this run instead of computing them")
	conflictsCmd.Flags().StringVar(&lineFilter, "line", "", "only analyse journeys of this line")
	conflictsCmd.Flags().BoolVar(&noPublish, "no-publish", false, "do not publish conflicts to NATS")
	conflictsCmd.Flags().IntVar(&maxConflict, "max", 50, "print at most this many conflicts (0 for all)")
}

func runOccupancy(ctx context.Context, a *app, line, journey string) error {
	key := line + " " + journey
	if runID != "" {
		if a.sqlDB == nil {
			return errors.New("--run needs a database (DATABASE_URL or PGDATABASE)")
		}
		stored, err := db.LoadIntervals(ctx, a.sqlDB, runID, key)
		if err != nil {
			return err
		}
		if len(stored) == 0 {
			return fmt.Errorf("no intervals stored for %s in run %s", key, runID)
		}
		renderStored(os.Stdout, key, stored)
		return nil
	}

	path := filepath.Join(a.cfg.SchedulesDir, line, journey, schedule.FileName)
	sj, err := schedule.LoadJourney(path, line, journey, a.cfg.Location)
	if err != nil {
		return err
	}
	an, err := a.analyzer()
	if err != nil {
		return err
	}
	j, err := an.AnalyzeJourney(ctx, sj)
	if err != nil {
		return err
	}
	renderJourney(os.Stdout, j)
	return nil
}

func runConflicts(ctx context.Context, a *app) error {
	refs, err := schedule.DiscoverJourneys(a.cfg.SchedulesDir)
	if err != nil {
		return err
	}
	var journeys []schedule.Journey
	for _, ref := range refs {
		if lineFilter != "" && ref.Line != lineFilter {
			continue
		}
		sj, err := schedule.LoadJourney(ref.Path, ref.Line, ref.Journey, a.cfg.Location)
		if err != nil {
			a.logger.Warn("schedule unreadable, skipped", slog.String("journey", ref.Key()), slog.Any("error", err))
			continue
		}
		journeys = append(journeys, sj)
	}
	if len(journeys) == 0 {
		return fmt.Errorf("no journeys found below %s", a.cfg.SchedulesDir)
	}

	an, err := a.analyzer()
	if err != nil {
		return err
	}
	if !noPublish {
		pub, err := a.publisher()
		if err != nil {
			return err
		}
		if pub != nil {
			an.Publisher = pub
			defer func() {
				if err := pub.Flush(); err != nil {
					a.logger.Warn("nats flush failed", slog.Any("error", err))
				}
			}()
		}
	}

	bar := progressbar.NewOptions(len(journeys),
		progressbar.OptionSetDescription("analysing journeys"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	an.Progress = func(string) { _ = bar.Add(1) }

	rep, err := an.Run(ctx, journeys)
	_ = bar.Finish()
	if err != nil {
		return err
	}

	shown := rep.Conflicts
	if maxConflict > 0 && len(shown) > maxConflict {
		shown = shown[:maxConflict]
	}
	renderConflicts(os.Stdout, shown)
	renderSummary(os.Stdout, rep.RunID, len(rep.Journeys), len(rep.Failed), len(rep.Conflicts), rep.FinishedAt.Sub(rep.StartedAt))
	return nil
}

func runLastRun(ctx context.Context, a *app) error {
	if a.sqlDB == nil {
		return errors.New("last-run needs a database (DATABASE_URL or PGDATABASE)")
	}
	r, err := db.LatestRun(ctx, a.sqlDB)
	if err != nil {
		return err
	}
	renderSummary(os.Stdout, r.ID, r.Journeys, 0, r.Conflicts, r.FinishedAt.Sub(r.StartedAt))
	return nil
}

// conflictsBySection counts records per section, most affected first.
func conflictsBySection(recs []conflict.Record) []sectionCount {
	idx := make(map[string]int)
	var out []sectionCount
	for _, r := range recs {
		i, ok := idx[r.SectionID]
		if !ok {
			i = len(out)
			idx[r.SectionID] = i
			out = append(out, sectionCount{Section: r.SectionID})
		}
		out[i].Count++
	}
	sortSectionCounts(out)
	return out
}
