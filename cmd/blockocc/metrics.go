package main

import (
	"time"

	"block-occupancy/internal/analyzer"
	"block-occupancy/internal/blocks"
	"block-occupancy/internal/metrics"
	"block-occupancy/internal/occupancy"
	"block-occupancy/internal/publisher"
)

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}

// analyzerMetrics adapts our Collector to analyzer.Metrics.
type analyzerMetrics struct{ c *metrics.Collector }

var _ analyzer.Metrics = (*analyzerMetrics)(nil)

func (m *analyzerMetrics) JourneyAnalysed(cached bool, d time.Duration) {
	if cached {
		m.c.JourneysAnalysed.WithLabelValues("cache").Inc()
		return
	}
	m.c.JourneysAnalysed.WithLabelValues("computed").Inc()
	m.c.AnalysisDuration.Observe(d.Seconds())
}

func (m *analyzerMetrics) JourneyFailed() { m.c.JourneyErrors.Inc() }

func (m *analyzerMetrics) Computed(bs []blocks.Block, intervals []occupancy.Interval) {
	m.c.Blocks.Add(float64(len(bs)))
	m.c.Intervals.Add(float64(len(intervals)))
	for _, iv := range intervals {
		if iv.Source.Fallback() {
			m.c.Fallbacks.WithLabelValues(iv.Source.String()).Inc()
		}
		if iv.OriginFallback {
			m.c.Fallbacks.WithLabelValues("origin").Inc()
		}
		if iv.Truncated {
			m.c.Fallbacks.WithLabelValues("truncated").Inc()
		}
	}
}

func (m *analyzerMetrics) PairScanned(conflicts int) {
	m.c.PairsScanned.Inc()
	m.c.ConflictsFound.Add(float64(conflicts))
}

func (m *analyzerMetrics) ScanObserve(d time.Duration) { m.c.ScanDuration.Observe(d.Seconds()) }
