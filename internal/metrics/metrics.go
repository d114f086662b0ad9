package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aartemyeu/void.bookkeeper/internal/models"
)

const namespace = "statement_extractor"

// Metrics counts extraction work. All methods are safe on a nil *Metrics,
// which records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	statements   *prometheus.CounterVec
	transactions prometheus.Counter
	extractTime  *prometheus.HistogramVec
}

// New registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statements_total",
			Help:      "Statements processed, by outcome.",
		}, []string{"outcome"}),
		transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions extracted.",
		}),
		extractTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "text_extraction_seconds",
			Help:      "Time to obtain statement text, by source.",
			// OCR of a multi-page statement takes tens of seconds.
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"source"}),
	}
	m.registry.MustRegister(
		m.statements,
		m.transactions,
		m.extractTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Parsed records a successfully parsed statement.
func (m *Metrics) Parsed(stmt *models.Statement) {
	if m == nil || stmt == nil {
		return
	}
	m.statements.WithLabelValues("parsed").Inc()
	m.transactions.Add(float64(len(stmt.Transactions)))
}

// Failed records a statement that was skipped.
func (m *Metrics) Failed() {
	if m == nil {
		return
	}
	m.statements.WithLabelValues("failed").Inc()
}

// ObserveExtraction records how long getting text from source took.
func (m *Metrics) ObserveExtraction(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.extractTime.WithLabelValues(source).Observe(d.Seconds())
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
