package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "depthcrawl"

// URL outcomes used as the status label of URLsProcessed.
const (
	OutcomeVisited = "visited"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Metrics holds the crawl metrics and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	DomainsClaimed   prometheus.Counter
	DomainsCompleted prometheus.Counter

	URLsProcessed      *prometheus.CounterVec
	ExtractionDuration prometheus.Histogram
	AnchorsExtracted   prometheus.Counter

	LinksInserted prometheus.Counter
	EdgesRecorded prometheus.Counter
	LinksSkipped  *prometheus.CounterVec

	StorageErrors *prometheus.CounterVec
	WorkersBusy   prometheus.Gauge
}

// New creates the metrics on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newMetrics(reg)
}

func newMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		DomainsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "domains_claimed_total",
			Help:      "Seed domains claimed for crawling",
		}),
		DomainsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "domains_completed_total",
			Help:      "Seed domains finalized as completed",
		}),
		URLsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "urls_processed_total",
			Help:      "Claimed URLs by outcome",
		}, []string{"status"}),
		ExtractionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Time spent extracting anchors from one URL",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
		}),
		AnchorsExtracted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "anchors_extracted_total",
			Help:      "Distinct anchors returned by extraction",
		}),
		LinksInserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "links_inserted_total",
			Help:      "URL rows added to the frontier",
		}),
		EdgesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "edges_recorded_total",
			Help:      "New parent to child relationships",
		}),
		LinksSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "links_skipped_total",
			Help:      "Anchors rejected by the link processor",
		}, []string{"reason"}),
		StorageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "storage_errors_total",
			Help:      "Failed store operations that the crawl continued past",
		}, []string{"op"}),
		WorkersBusy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "workers_busy",
			Help:      "Workers currently crawling a domain",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// DomainClaimed records a claimed domain.
func (m *Metrics) DomainClaimed() {
	if m == nil {
		return
	}
	m.DomainsClaimed.Inc()
}

// DomainCompleted records a finalized domain.
func (m *Metrics) DomainCompleted() {
	if m == nil {
		return
	}
	m.DomainsCompleted.Inc()
}

// URLProcessed records the outcome of one claimed URL.
func (m *Metrics) URLProcessed(outcome string) {
	if m == nil {
		return
	}
	m.URLsProcessed.WithLabelValues(outcome).Inc()
}

// Extraction records how long extracting one URL took and what it found.
func (m *Metrics) Extraction(d time.Duration, anchors int) {
	if m == nil {
		return
	}
	m.ExtractionDuration.Observe(d.Seconds())
	m.AnchorsExtracted.Add(float64(anchors))
}

// Links records the outcome of processing one page's anchors.
func (m *Metrics) Links(inserted, edges int, skipped map[string]int) {
	if m == nil {
		return
	}
	m.LinksInserted.Add(float64(inserted))
	m.EdgesRecorded.Add(float64(edges))
	for reason, n := range skipped {
		m.LinksSkipped.WithLabelValues(reason).Add(float64(n))
	}
}

// StorageError records a store failure the crawl continued past.
func (m *Metrics) StorageError(op string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(op).Inc()
}

// WorkerBusy moves the busy worker gauge by delta.
func (m *Metrics) WorkerBusy(delta int) {
	if m == nil {
		return
	}
	m.WorkersBusy.Add(float64(delta))
}
