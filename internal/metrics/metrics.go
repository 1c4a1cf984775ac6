package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	JourneysAnalysed *prometheus.CounterVec // source label: computed|cache
	JourneyErrors    prometheus.Counter
	Blocks           prometheus.Counter
	Intervals        prometheus.Counter
	Fallbacks        *prometheus.CounterVec // reason label: fallback_no_trajectory|fallback_terminated|origin|truncated

	PairsScanned   prometheus.Counter
	ConflictsFound prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	AnalysisDuration prometheus.Histogram
	ScanDuration     prometheus.Histogram
	PublishDuration  prometheus.Histogram

	Workers prometheus.Gauge
}

func NewCollector(workers int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		JourneysAnalysed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blockocc_journeys_analysed_total",
			Help: "Journeys whose block occupation was determined.",
		}, []string{"source"}),
		JourneyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blockocc_journey_errors_total",
			Help: "Journeys that could not be analysed.",
		}),
		Blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blockocc_blocks_segmented_total",
			Help: "Signal blocks produced by segmentation.",
		}),
		Intervals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blockocc_intervals_computed_total",
			Help: "Occupancy intervals computed.",
		}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blockocc_fallbacks_total",
			Help: "Intervals computed with a fallback value.",
		}, []string{"reason"}),
		PairsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blockocc_pairs_scanned_total",
			Help: "Journey pairs compared for conflicts.",
		}),
		ConflictsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blockocc_conflicts_total",
			Help: "Conflicting section occupations found.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blockocc_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blockocc_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blockocc_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "blockocc_journey_analysis_duration_seconds",
			Help:    "Duration to segment and time one journey.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "blockocc_conflict_scan_duration_seconds",
			Help:    "Duration of a full conflict scan.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "blockocc_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blockocc_scan_workers",
			Help: "Configured number of conflict scan workers.",
		}),
	}

	reg.MustRegister(
		c.JourneysAnalysed, c.JourneyErrors, c.Blocks, c.Intervals, c.Fallbacks,
		c.PairsScanned, c.ConflictsFound,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.AnalysisDuration, c.ScanDuration, c.PublishDuration,
		c.Workers,
	)

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	c.Workers.Set(float64(workers))

	return c
}

// Registry exposes the collector's registry for gathering in tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", slog.Any("error", err))
		}
	}()
	slog.Info("metrics listening", slog.String("addr", addr))
	return srv
}
