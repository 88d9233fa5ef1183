package progress

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"runwayscraper/pkg/models"
)

// Metrics exports progress counters on a dedicated registry so the exporter
// carries only scraper series, not the default process collectors.
type Metrics struct {
	registry *prometheus.Registry

	seasonsTotal       prometheus.Gauge
	seasonsCompleted   prometheus.Gauge
	designersTotal     prometheus.Gauge
	designersCompleted prometheus.Gauge
	looksTotal         prometheus.Gauge
	looksExtracted     prometheus.Gauge
	completionPct      prometheus.Gauge
	extractionRate     prometheus.Gauge

	UnitsProcessed *prometheus.CounterVec
	UnitFailures   *prometheus.CounterVec
	PageFetches    *prometheus.CounterVec
}

// NewMetrics builds and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		seasonsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "runway_seasons_total",
			Help: "Seasons discovered in storage.",
		}),
		seasonsCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "runway_seasons_completed",
			Help: "Seasons with all designers extracted.",
		}),
		designersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "runway_designers_total",
			Help: "Designers discovered in storage.",
		}),
		designersCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "runway_designers_completed",
			Help: "Designers with all looks extracted.",
		}),
		looksTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "runway_looks_total",
			Help: "Looks expected across all designers.",
		}),
		looksExtracted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "runway_looks_extracted",
			Help: "Looks fully extracted.",
		}),
		completionPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "runway_completion_percent",
			Help: "Overall extraction completion percentage.",
		}),
		extractionRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "runway_extraction_rate",
			Help: "Looks extracted per second since the run started.",
		}),
		UnitsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runway_units_processed_total",
			Help: "Work units processed, by unit type and outcome.",
		}, []string{"type", "outcome"}),
		UnitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runway_unit_failures_total",
			Help: "Work unit failures, by error type.",
		}, []string{"error_type"}),
		PageFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runway_page_fetches_total",
			Help: "Page fetches, by client and cache outcome.",
		}, []string{"client", "result"}),
	}

	m.registry.MustRegister(
		m.seasonsTotal, m.seasonsCompleted,
		m.designersTotal, m.designersCompleted,
		m.looksTotal, m.looksExtracted,
		m.completionPct, m.extractionRate,
		m.UnitsProcessed, m.UnitFailures, m.PageFetches,
	)
	return m
}

// Observe publishes a recomputed progress record.
func (m *Metrics) Observe(p models.OverallProgress) {
	m.seasonsTotal.Set(float64(p.TotalSeasons))
	m.seasonsCompleted.Set(float64(p.CompletedSeasons))
	m.designersTotal.Set(float64(p.TotalDesigners))
	m.designersCompleted.Set(float64(p.CompletedDesigners))
	m.looksTotal.Set(float64(p.TotalLooks))
	m.looksExtracted.Set(float64(p.ExtractedLooks))
	m.completionPct.Set(p.CompletionPercentage)
	m.extractionRate.Set(p.ExtractionRate)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
