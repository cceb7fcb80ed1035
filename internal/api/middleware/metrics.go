package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/Harshitk-cp/ranger/internal/metrics"
)

// MetricsCollector counts requests for the JSON /metrics endpoint and the
// Prometheus status-class counter.
type MetricsCollector struct {
	requestCount *atomic.Int64
	errorCount   *atomic.Int64
	prom         *metrics.Metrics
}

func NewMetricsCollector(requestCount, errorCount *atomic.Int64, prom *metrics.Metrics) *MetricsCollector {
	return &MetricsCollector{
		requestCount: requestCount,
		errorCount:   errorCount,
		prom:         prom,
	}
}

// Middleware returns middleware that counts requests and errors.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requestCount.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		// 4xx and 5xx
		if rw.statusCode >= 400 {
			mc.errorCount.Add(1)
		}
		if mc.prom != nil {
			mc.prom.HTTPRequestsTotal.WithLabelValues(metrics.StatusClass(rw.statusCode)).Inc()
		}
	})
}
