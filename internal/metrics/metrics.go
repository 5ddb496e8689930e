package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking flows.
type BookingMetrics struct {
	bookingsTotal        *prometheus.CounterVec
	availabilityTotal    *prometheus.CounterVec
	upstreamLatency      prometheus.Histogram
	httpRequestDurations *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "appointments",
			Name:      "submissions_total",
			Help:      "Total booking submissions by outcome",
		}, []string{"outcome"}),
		availabilityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "availability",
			Name:      "requests_total",
			Help:      "Total availability lookups by result",
		}, []string{"result"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "availability",
			Name:      "upstream_latency_seconds",
			Help:      "Latency of scheduling provider lookups",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequestDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.availabilityTotal, m.upstreamLatency, m.httpRequestDurations)
	return m
}

// ObserveSubmission counts one booking submission. Outcomes: created,
// conflict, validation_error, spam, upstream_error, error.
func (m *BookingMetrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveAvailability(result string) {
	if m == nil {
		return
	}
	m.availabilityTotal.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveUpstreamLatency(seconds float64) {
	if m == nil {
		return
	}
	m.upstreamLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveHTTPRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequestDurations.WithLabelValues(method, route, status).Observe(seconds)
}
