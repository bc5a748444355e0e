// Package metrics exposes Prometheus collectors for conversions. Every
// helper is safe to call on a nil *Metrics, which disables recording.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics bundles the collectors on a dedicated registry.
type Metrics struct {
	Registry           *prometheus.Registry
	ConversionsTotal   *prometheus.CounterVec
	ConversionDuration prometheus.Histogram
	PagesCaptured      prometheus.Counter
	PageRetriesTotal   prometheus.Counter
	NavRetriesTotal    prometheus.Counter
	PDFBytes           prometheus.Histogram
	ActiveConversions  prometheus.Gauge
	WebhooksTotal      *prometheus.CounterVec
}

// New constructs and registers all collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	conversions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topdf_conversions_total",
			Help: "Finished conversions by outcome (ok or the error kind).",
		},
		[]string{"outcome"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "topdf_conversion_duration_seconds",
			Help:    "Wall time of a conversion, from link to written PDF.",
			Buckets: []float64{5, 10, 20, 30, 60, 120, 300, 600},
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "topdf_pages_captured_total",
			Help: "Pages accepted by the capturer.",
		},
	)
	pageRetries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "topdf_page_retries_total",
			Help: "Page capture attempts that failed and were retried.",
		},
	)
	navRetries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "topdf_navigation_retries_total",
			Help: "Navigation attempts that failed and were retried.",
		},
	)
	pdfBytes := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "topdf_pdf_bytes",
			Help:    "Size of assembled PDFs.",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		},
	)
	active := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "topdf_active_conversions",
			Help: "Conversions currently running.",
		},
	)
	webhooks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topdf_webhook_deliveries_total",
			Help: "Webhook deliveries by result.",
		},
		[]string{"result"},
	)

	registry.MustRegister(
		conversions, duration, pages, pageRetries, navRetries, pdfBytes, active, webhooks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		Registry:           registry,
		ConversionsTotal:   conversions,
		ConversionDuration: duration,
		PagesCaptured:      pages,
		PageRetriesTotal:   pageRetries,
		NavRetriesTotal:    navRetries,
		PDFBytes:           pdfBytes,
		ActiveConversions:  active,
		WebhooksTotal:      webhooks,
	}
}

// ObserveConversion records one finished conversion.
func (m *Metrics) ObserveConversion(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ConversionsTotal.WithLabelValues(outcome).Inc()
	m.ConversionDuration.Observe(d.Seconds())
}

// IncPages adds accepted pages.
func (m *Metrics) IncPages(n int) {
	if m == nil {
		return
	}
	m.PagesCaptured.Add(float64(n))
}

// IncPageRetry counts a retried page attempt.
func (m *Metrics) IncPageRetry() {
	if m == nil {
		return
	}
	m.PageRetriesTotal.Inc()
}

// IncNavRetry counts a retried navigation.
func (m *Metrics) IncNavRetry() {
	if m == nil {
		return
	}
	m.NavRetriesTotal.Inc()
}

// ObservePDF records the size of an assembled PDF.
func (m *Metrics) ObservePDF(size int64) {
	if m == nil {
		return
	}
	m.PDFBytes.Observe(float64(size))
}

// ConversionStarted bumps the active gauge; the returned func undoes it.
func (m *Metrics) ConversionStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveConversions.Inc()
	return m.ActiveConversions.Dec
}

// IncWebhook counts a webhook delivery result ("delivered" or "failed").
func (m *Metrics) IncWebhook(result string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(result).Inc()
}
