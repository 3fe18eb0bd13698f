// Package prometheus exposes the engine's lifecycle counters as
// Prometheus metrics via a client_golang collector.
package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authgrid "github.com/authgrid/authgrid"
)

const namespace = "authgrid"

// Source is what the exporter reads. *authgrid.Engine satisfies it.
type Source interface {
	MetricsSnapshot() map[string]uint64
	AuditDropped() uint64
}

// Exporter is a prometheus.Collector over an engine's counters.
// Counters are read at scrape time; nothing is cached between scrapes.
type Exporter struct {
	source  Source
	dropped *prometheus.Desc
}

// NewExporter builds a collector for the given engine.
func NewExporter(engine *authgrid.Engine) *Exporter {
	return NewExporterFromSource(engine)
}

// NewExporterFromSource builds a collector over a custom source.
func NewExporterFromSource(source Source) *Exporter {
	return &Exporter{
		source: source,
		dropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "audit", "dropped_total"),
			"Audit events discarded under dispatcher backpressure.",
			nil, nil,
		),
	}
}

// Describe sends no descriptors; the collector is unchecked because
// the counter set is only known at scrape time.
func (e *Exporter) Describe(chan<- *prometheus.Desc) {}

// Collect snapshots the counters and emits one counter metric each.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	if e == nil || e.source == nil {
		return
	}

	for name, value := range e.source.MetricsSnapshot() {
		desc := prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "lifecycle", name+"_total"),
			"Lifecycle counter "+name+".",
			nil, nil,
		)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value))
	}

	ch <- prometheus.MustNewConstMetric(e.dropped, prometheus.CounterValue, float64(e.source.AuditDropped()))
}

// Handler returns an http.Handler serving this exporter on a private
// registry.
func (e *Exporter) Handler() http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(e)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
