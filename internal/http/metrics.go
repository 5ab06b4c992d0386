package httpx

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

func (r *Router) initMetrics() {
	r.metricsOnce.Do(func() {
		r.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "featherlog",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"})

		r.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "featherlog",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"})

		r.rateLimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "featherlog",
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route", "key"})

		r.streamSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "featherlog",
			Subsystem: "api",
			Name:      "stream_subscribers",
			Help:      "Currently connected live stream subscribers",
		})

		collectors := []prometheus.Collector{r.requestTotal, r.requestLatency, r.rateLimitHits, r.streamSubscribers}
		for _, collector := range collectors {
			if err := prometheus.Register(collector); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					switch v := are.ExistingCollector.(type) {
					case *prometheus.CounterVec:
						if collector == r.requestTotal {
							r.requestTotal = v
						} else if collector == r.rateLimitHits {
							r.rateLimitHits = v
						}
					case *prometheus.HistogramVec:
						r.requestLatency = v
					case prometheus.Gauge:
						r.streamSubscribers = v
					}
					continue
				}
				r.logger.Warn("metric registration failed", "error", err)
			}
		}
	})
}

func (r *Router) recordRequest(method, route string, status int, duration time.Duration) {
	if r.requestTotal == nil || r.requestLatency == nil {
		return
	}
	labels := []string{method, route, strconv.Itoa(status)}
	r.requestTotal.WithLabelValues(labels...).Inc()
	r.requestLatency.WithLabelValues(labels...).Observe(duration.Seconds())
}

func (r *Router) recordRateLimitHit(route, key string) {
	if r.rateLimitHits == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	r.rateLimitHits.WithLabelValues(route, key).Inc()
}
