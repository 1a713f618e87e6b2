package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	derivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundsflow_derivations_total",
			Help: "Transaction detail derivations by type, status and outcome.",
		},
		[]string{"type", "status", "outcome"},
	)

	openDiscrepancies = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fundsflow_open_discrepancies",
		Help: "Wallets whose internal and external balances disagree at the last check.",
	})

	initOnce sync.Once
	ready    atomic.Bool
)

// Init registers metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
			derivationsTotal, openDiscrepancies)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness flag reported by /readyz.
func SetReady(v bool) { ready.Store(v) }

func Ready() bool { return ready.Load() }

// ObserveDerivation counts one derivation. outcome is "ok", "cached",
// "invalid_fee", "unknown_type", "not_found" or "error".
func ObserveDerivation(txType, status, outcome string) {
	derivationsTotal.WithLabelValues(txType, status, outcome).Inc()
}

func SetOpenDiscrepancies(n int) {
	openDiscrepancies.Set(float64(n))
}

// Instrument records request count, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses identifiers so metric label cardinality stays
// bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return p
	}
	switch parts[1] {
	case "transactions":
		if parts[2] == "export.csv" {
			return p
		}
		switch {
		case len(parts) == 3:
			return "/v1/transactions/:reference"
		case len(parts) == 4 && parts[3] == "export.pdf":
			return "/v1/transactions/:reference/export.pdf"
		}
	case "wallets":
		switch {
		case len(parts) == 3:
			return "/v1/wallets/:id"
		case len(parts) == 4 && parts[3] == "statement":
			return "/v1/wallets/:id/statement"
		}
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers stream through the instrumented writer.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
