package middlewares

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once
	metricsErr  error

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        *prometheus.GaugeVec
)

// RegisterHTTPMetrics crea y registra las métricas HTTP (una sola vez por proceso).
func RegisterHTTPMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	metricsOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		httpInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests en vuelo por método y ruta",
		}, []string{"method", "path"})

		for _, c := range []prometheus.Collector{httpRequestsTotal, httpRequestDuration, httpInflight} {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					metricsErr = err
					return
				}
			}
		}
	})
	return metricsErr
}

// WithMetrics instrumenta requests (contador, latencia, inflight). Sin
// RegisterHTTPMetrics previo es un no-op.
func WithMetrics() Middleware {
	return func(next http.Handler) http.Handler {
		if httpRequestsTotal == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method := strings.ToUpper(r.Method)
			path := normalizePath(r.URL.Path)

			httpInflight.WithLabelValues(method, path).Inc()
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				httpInflight.WithLabelValues(method, path).Dec()
				httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
				status := rec.status
				if status == 0 {
					status = http.StatusOK
				}
				httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

// normalizePath acota la cardinalidad: solo las rutas conocidas conservan su path.
var knownSuffixes = []string{"/init", "/redirect", "/readyz", "/healthz", "/metrics"}

func normalizePath(p string) string {
	clean := strings.TrimRight(strings.SplitN(p, "?", 2)[0], "/")
	if clean == "" {
		return "/"
	}
	for _, s := range knownSuffixes {
		if strings.HasSuffix(clean, s) {
			return clean
		}
	}
	return "other"
}
