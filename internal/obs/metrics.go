package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Decisions       *prometheus.CounterVec
	Configures      *prometheus.CounterVec
	Evictions       prometheus.Counter
	Buckets         prometheus.GaugeFunc
}

// NewMetrics registers the service metrics. bucketCount is sampled on every
// scrape, so it must be safe to call concurrently.
func NewMetrics(reg prometheus.Registerer, bucketCount func() int) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotagate_requests_total",
				Help: "Total HTTP requests processed, by operation and status code",
			},
			[]string{"op", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quotagate_request_duration_seconds",
				Help:    "Request duration in seconds, by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotagate_decisions_total",
				Help: "Total admission decisions, by outcome",
			},
			[]string{"outcome"},
		),
		Configures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotagate_configures_total",
				Help: "Total configure calls, by result",
			},
			[]string{"result"},
		),
		Evictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quotagate_evicted_buckets_total",
				Help: "Total idle buckets evicted by the janitor",
			},
		),
		Buckets: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "quotagate_buckets",
				Help: "Buckets currently resident in memory",
			},
			func() float64 { return float64(bucketCount()) },
		),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.Decisions, m.Configures, m.Evictions, m.Buckets)
	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Instrument records request count and duration for one named operation.
func (m *Metrics) Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		code := rec.status
		if code == 0 {
			code = http.StatusOK
		}

		m.RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		m.RequestsTotal.WithLabelValues(op, strconv.Itoa(code)).Inc()
	})
}

func (m *Metrics) ObserveDecision(allowed bool) {
	if allowed {
		m.Decisions.WithLabelValues("allowed").Inc()
	} else {
		m.Decisions.WithLabelValues("denied").Inc()
	}
}

func (m *Metrics) ObserveConfigure(ok bool) {
	if ok {
		m.Configures.WithLabelValues("ok").Inc()
	} else {
		m.Configures.WithLabelValues("invalid").Inc()
	}
}
