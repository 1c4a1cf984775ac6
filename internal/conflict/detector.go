package conflict

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Detector scans relevant journey pairs for conflicts in parallel.
type Detector struct {
	Workers int
	Logger  *slog.Logger
	// OnPair, if set, is called from the workers after each pair has been
	// compared.
	OnPair func(p Pair, found int)
}

// Scan compares every relevant pair of journeys. Windows are computed once
// per journey and shared read-only between workers.
func (d *Detector) Scan(ctx context.Context, journeys []Journey) ([]Record, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := d.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	windows := make(map[string][]Window, len(journeys))
	for _, j := range journeys {
		if _, dup := windows[j.ID]; dup {
			return nil, fmt.Errorf("duplicate journey %q", j.ID)
		}
		windows[j.ID] = Windows(j)
	}

	pairs := RelevantPairs(journeys)
	logger.Info("scanning journey pairs",
		slog.Int("journeys", len(journeys)), slog.Int("pairs", len(pairs)))

	var (
		mu  sync.Mutex
		out []Record
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, p := range pairs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			recs := FindConflicts(windows[p.A], windows[p.B])
			if len(recs) > 0 {
				logger.Debug("conflicts found",
					slog.String("first", p.A), slog.String("second", p.B), slog.Int("count", len(recs)))
				mu.Lock()
				out = append(out, recs...)
				mu.Unlock()
			}
			if d.OnPair != nil {
				d.OnPair(p, len(recs))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan pairs: %w", err)
	}
	SortRecords(out)
	return out, nil
}
