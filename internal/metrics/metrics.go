package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hsewrapped"

var (
	admissionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_total",
			Help:      "Admission decisions by outcome (admitted, cooldown, capacity, in_flight).",
		},
		[]string{"outcome"},
	)
	activeSlots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "admission_active_slots",
			Help:      "Currently held admission slots.",
		},
	)
	requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Finished portfolio requests by result kind.",
		},
		[]string{"result"},
	)
	requestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Wall time of admitted portfolio requests.",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 90, 120, 180},
		},
	)
	enrichmentCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_fetch_total",
			Help:      "Per-item enrichment fetches by source and outcome.",
		},
		[]string{"source", "outcome"},
	)
	deliveryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_total",
			Help:      "Delivery attempts by mode (batch, single) and outcome.",
		},
		[]string{"mode", "outcome"},
	)
	slidesRendered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slides_rendered_total",
			Help:      "Rendered slides by kind.",
		},
		[]string{"kind"},
	)
)

var registerMetrics sync.Once

// Register adds all collectors to reg once; later calls are no-ops.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(
			admissionCounter,
			activeSlots,
			requestCounter,
			requestDuration,
			enrichmentCounter,
			deliveryCounter,
			slidesRendered,
		)
	})
}

// RecordAdmission counts one admission decision and the resulting slot usage.
func RecordAdmission(outcome string, active int) {
	admissionCounter.WithLabelValues(outcome).Inc()
	activeSlots.Set(float64(active))
}

// SetActiveSlots publishes the current slot count.
func SetActiveSlots(active int) {
	activeSlots.Set(float64(active))
}

// RecordRequest counts a finished request and its duration.
func RecordRequest(result string, elapsed time.Duration) {
	requestCounter.WithLabelValues(result).Inc()
	requestDuration.Observe(elapsed.Seconds())
}

// RecordEnrichment counts one enrichment call, source is likes, views, scrape or detail.
func RecordEnrichment(source string, ok bool) {
	enrichmentCounter.WithLabelValues(source, outcome(ok)).Inc()
}

// RecordDelivery counts one outbound delivery attempt.
func RecordDelivery(mode string, ok bool) {
	deliveryCounter.WithLabelValues(mode, outcome(ok)).Inc()
}

// RecordSlide counts one rendered slide.
func RecordSlide(kind string) {
	slidesRendered.WithLabelValues(kind).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
