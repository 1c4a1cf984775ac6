// Package analyzer runs the block occupancy pipeline over scheduled
// journeys: segmentation into blocks, interval timing, conflict detection,
// and hand-off of the results to the cache, the database and NATS.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"block-occupancy/internal/blocks"
	"block-occupancy/internal/cache"
	"block-occupancy/internal/conflict"
	"block-occupancy/internal/db"
	"block-occupancy/internal/occupancy"
	"block-occupancy/internal/schedule"
	"block-occupancy/internal/track"
	"block-occupancy/internal/trajectory"
)

// TrainLengths resolves the train length in metres of a line.
type TrainLengths interface {
	TrainLength(line string) (float64, error)
}

type Cache interface {
	Get(ctx context.Context, line, journey string) (conflict.Journey, error)
	Put(ctx context.Context, line, journey string, j conflict.Journey) error
}

type Store interface {
	SaveRun(ctx context.Context, r db.Run) error
	SaveIntervals(ctx context.Context, runID, journeyID string, leg int, bs []blocks.Block, intervals []occupancy.Interval) error
	SaveConflicts(ctx context.Context, runID string, recs []conflict.Record) error
}

type Publisher interface {
	PublishConflict(runID string, r conflict.Record) error
}

type Metrics interface {
	JourneyAnalysed(cached bool, d time.Duration)
	JourneyFailed()
	Computed(bs []blocks.Block, intervals []occupancy.Interval)
	PairScanned(conflicts int)
	ScanObserve(d time.Duration)
}

// Analyzer wires the pipeline. Lengths is required; Cache, Store,
// Publisher and Metrics may be nil.
type Analyzer struct {
	Resolver       track.Resolver
	Infrastructure *blocks.Infrastructure
	Params         occupancy.Params
	Lengths        TrainLengths
	Workers        int

	Cache     Cache
	Store     Store
	Publisher Publisher
	Metrics   Metrics
	Logger    *slog.Logger

	// Progress, if set, is called once per journey handled by Run.
	Progress func(journeyID string)
}

func (a *Analyzer) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *Analyzer) segmenter() blocks.Segmenter {
	return blocks.Segmenter{
		Resolver:       a.Resolver,
		Infrastructure: a.Infrastructure,
		Logger:         a.logger().With("component", "blocks"),
	}
}

// AnalyzeJourney returns the blocks and occupancy intervals of every leg of
// the journey, from the cache when present.
func (a *Analyzer) AnalyzeJourney(ctx context.Context, sj schedule.Journey) (conflict.Journey, error) {
	start := time.Now()
	log := a.logger().With(slog.String("journey", sj.Key()))

	if a.Cache != nil {
		j, err := a.Cache.Get(ctx, sj.Line, sj.ID)
		switch {
		case err == nil:
			log.Debug("journey served from cache")
			if a.Metrics != nil {
				a.Metrics.JourneyAnalysed(true, time.Since(start))
			}
			return j, nil
		case !errors.Is(err, cache.ErrMiss):
			log.Warn("cache lookup failed", slog.Any("error", err))
		}
	}

	j, err := a.compute(sj, log)
	if err != nil {
		if a.Metrics != nil {
			a.Metrics.JourneyFailed()
		}
		return conflict.Journey{}, fmt.Errorf("journey %s: %w", sj.Key(), err)
	}

	if a.Cache != nil {
		if err := a.Cache.Put(ctx, sj.Line, sj.ID, j); err != nil {
			log.Warn("cache store failed", slog.Any("error", err))
		}
	}
	if a.Metrics != nil {
		a.Metrics.JourneyAnalysed(false, time.Since(start))
	}
	return j, nil
}

func (a *Analyzer) compute(sj schedule.Journey, log *slog.Logger) (conflict.Journey, error) {
	length, err := a.Lengths.TrainLength(sj.Line)
	if err != nil {
		return conflict.Journey{}, err
	}

	nodes := make([][]track.Node, len(sj.Legs))
	dirs := make([]track.Direction, len(sj.Legs))
	for i, leg := range sj.Legs {
		dir, err := a.Resolver.InferDirection(leg.Nodes)
		if err != nil {
			return conflict.Journey{}, fmt.Errorf("leg %d: %w", i, err)
		}
		nodes[i], dirs[i] = leg.Nodes, dir
	}

	results, err := a.segmenter().SegmentJourney(nodes, dirs)
	if err != nil {
		return conflict.Journey{}, err
	}

	calc := occupancy.NewCalculator(a.Params, log)
	j := conflict.Journey{ID: sj.Key(), Legs: make([]conflict.Leg, len(sj.Legs))}
	for i, leg := range sj.Legs {
		res := results[i]
		var intervals []occupancy.Interval
		if len(res.Blocks) > 0 {
			traj, err := trajectory.New(leg.Samples, dirs[i], res.Origin)
			if err != nil {
				return conflict.Journey{}, fmt.Errorf("leg %d: %w", i, err)
			}
			intervals, err = calc.ComputeLeg(res.Blocks, traj, length)
			if err != nil {
				return conflict.Journey{}, fmt.Errorf("leg %d: %w", i, err)
			}
		}
		if a.Metrics != nil {
			a.Metrics.Computed(res.Blocks, intervals)
		}
		log.Debug("leg analysed",
			slog.Int("leg", i), slog.String("direction", dirs[i].String()), slog.Int("blocks", len(res.Blocks)))
		j.Legs[i] = a.buildLeg(leg, res.Blocks, intervals)
	}
	return j, nil
}

// buildLeg fills the conflict view of a leg. A leg without a scheduled
// arrival is assumed to arrive when its last block has been run through.
func (a *Analyzer) buildLeg(leg schedule.Leg, bs []blocks.Block, intervals []occupancy.Interval) conflict.Leg {
	out := conflict.Leg{
		Departure: leg.Departure,
		Arrival:   leg.Arrival,
		NodeIDs:   leg.NodeIDs(),
		MinPos:    math.Inf(1),
		MaxPos:    math.Inf(-1),
		Blocks:    bs,
		Intervals: intervals,
	}
	for _, n := range leg.Nodes {
		pos := a.Resolver.Position(n)
		out.MinPos = min(out.MinPos, pos)
		out.MaxPos = max(out.MaxPos, pos)
	}
	if len(leg.Nodes) == 0 {
		out.MinPos, out.MaxPos = 0, 0
	}
	if out.Arrival.IsZero() {
		var running float64
		for _, iv := range intervals {
			running += iv.Running
		}
		out.Arrival = out.Departure.Add(time.Duration(math.Round(running * float64(time.Minute))))
	}
	return out
}
