package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"block-occupancy/internal/conflict"
	"block-occupancy/internal/db"
	"block-occupancy/internal/schedule"
)

// JourneyError is a journey that could not be analysed.
type JourneyError struct {
	JourneyID string
	Err       error
}

func (e JourneyError) Error() string {
	return fmt.Sprintf("%s: %v", e.JourneyID, e.Err)
}

func (e JourneyError) Unwrap() error { return e.Err }

// Report summarises one run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Journeys   []conflict.Journey
	Failed     []JourneyError
	Conflicts  []conflict.Record
	Published  int
}

// Run analyses every journey, scans the analysed ones for conflicts and
// stores and publishes the outcome. A journey that fails is reported in
// Report.Failed and left out of the scan; only infrastructure failures of
// the store or a canceled context abort the run.
func (a *Analyzer) Run(ctx context.Context, journeys []schedule.Journey) (Report, error) {
	rep := Report{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	log := a.logger().With(slog.String("run", rep.RunID))
	log.Info("analysis started", slog.Int("journeys", len(journeys)))

	if a.Store != nil {
		if err := a.Store.SaveRun(ctx, db.Run{ID: rep.RunID, StartedAt: rep.StartedAt}); err != nil {
			return rep, err
		}
	}

	analysed, failed, err := a.analyseAll(ctx, journeys)
	if err != nil {
		return rep, err
	}
	rep.Journeys, rep.Failed = analysed, failed
	for _, f := range failed {
		log.Warn("journey skipped", slog.String("journey", f.JourneyID), slog.Any("error", f.Err))
	}

	if a.Store != nil {
		for _, j := range rep.Journeys {
			for li, leg := range j.Legs {
				if err := a.Store.SaveIntervals(ctx, rep.RunID, j.ID, li, leg.Blocks, leg.Intervals); err != nil {
					return rep, err
				}
			}
		}
	}

	scanStart := time.Now()
	det := &conflict.Detector{Workers: a.Workers, Logger: log.With("component", "conflict")}
	if a.Metrics != nil {
		det.OnPair = func(_ conflict.Pair, found int) { a.Metrics.PairScanned(found) }
	}
	rep.Conflicts, err = det.Scan(ctx, rep.Journeys)
	if err != nil {
		return rep, err
	}
	if a.Metrics != nil {
		a.Metrics.ScanObserve(time.Since(scanStart))
	}

	if a.Store != nil {
		if err := a.Store.SaveConflicts(ctx, rep.RunID, rep.Conflicts); err != nil {
			return rep, err
		}
	}
	if a.Publisher != nil {
		for _, r := range rep.Conflicts {
			if err := a.Publisher.PublishConflict(rep.RunID, r); err != nil {
				log.Warn("publish conflict failed", slog.String("section", r.SectionID), slog.Any("error", err))
				continue
			}
			rep.Published++
		}
	}

	rep.FinishedAt = time.Now().UTC()
	if a.Store != nil {
		err := a.Store.SaveRun(ctx, db.Run{
			ID:         rep.RunID,
			StartedAt:  rep.StartedAt,
			FinishedAt: rep.FinishedAt,
			Journeys:   len(rep.Journeys),
			Conflicts:  len(rep.Conflicts),
		})
		if err != nil {
			return rep, err
		}
	}
	log.Info("analysis finished",
		slog.Int("analysed", len(rep.Journeys)), slog.Int("failed", len(rep.Failed)),
		slog.Int("conflicts", len(rep.Conflicts)), slog.Duration("took", rep.FinishedAt.Sub(rep.StartedAt)))
	return rep, nil
}

// analyseAll analyses journeys in parallel. The analysed journeys keep the
// input order.
func (a *Analyzer) analyseAll(ctx context.Context, journeys []schedule.Journey) ([]conflict.Journey, []JourneyError, error) {
	workers := a.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*conflict.Journey, len(journeys))
	errs := make([]error, len(journeys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	var progress sync.Mutex
	for i, sj := range journeys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			j, err := a.AnalyzeJourney(gctx, sj)
			if err != nil {
				errs[i] = err
			} else {
				results[i] = &j
			}
			if a.Progress != nil {
				progress.Lock()
				a.Progress(sj.Key())
				progress.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("analyse journeys: %w", err)
	}

	var (
		out    []conflict.Journey
		failed []JourneyError
	)
	for i, sj := range journeys {
		if errs[i] != nil {
			failed = append(failed, JourneyError{JourneyID: sj.Key(), Err: errs[i]})
			continue
		}
		out = append(out, *results[i])
	}
	return out, failed, nil
}
