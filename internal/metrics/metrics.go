// Package metrics holds the Prometheus instruments of the server. They are
// served on the debug endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tekton_lsp"

type Metrics struct {
	Registry *prometheus.Registry

	// OpenDocuments is the number of documents the editor has open.
	OpenDocuments prometheus.Gauge
	// IndexedDocuments counts documents indexed, by origin (editor, disk).
	IndexedDocuments *prometheus.CounterVec
	// Diagnostics counts published diagnostics by tag and severity.
	Diagnostics *prometheus.CounterVec
	// AnalysisSeconds measures parse, validate and index of one edit.
	AnalysisSeconds prometheus.Histogram
	// Requests counts protocol requests by method and outcome.
	Requests       *prometheus.CounterVec
	RequestSeconds *prometheus.HistogramVec
}

// New registers every instrument on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		OpenDocuments: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_documents",
			Help:      "Number of documents open in the editor.",
		}),
		IndexedDocuments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_documents_total",
			Help:      "Documents indexed, by origin.",
		}, []string{"origin"}),
		Diagnostics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Diagnostics produced, by tag and severity.",
		}, []string{"tag", "severity"}),
		AnalysisSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_seconds",
			Help:      "Time to parse, validate and index a document.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Protocol requests, by method and status.",
		}, []string{"method", "status"}),
		RequestSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_seconds",
			Help:      "Protocol request latency, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// ObserveRequest records one handled request. A nil Metrics records nothing.
func (m *Metrics) ObserveRequest(method string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Requests.WithLabelValues(method, status).Inc()
	m.RequestSeconds.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveAnalysis(start time.Time) {
	if m == nil {
		return
	}
	m.AnalysisSeconds.Observe(time.Since(start).Seconds())
}

func (m *Metrics) CountDiagnostic(tag, severity string) {
	if m == nil {
		return
	}
	m.Diagnostics.WithLabelValues(tag, severity).Inc()
}

func (m *Metrics) CountIndexed(origin string, n int) {
	if m == nil {
		return
	}
	m.IndexedDocuments.WithLabelValues(origin).Add(float64(n))
}

func (m *Metrics) SetOpenDocuments(n int) {
	if m == nil {
		return
	}
	m.OpenDocuments.Set(float64(n))
}
