package limiter

import "github.com/prometheus/client_golang/prometheus"

// PrometheusRecorder exports limiter metrics through a Prometheus registry.
type PrometheusRecorder struct {
	calls   *prometheus.CounterVec
	latency prometheus.Histogram
}

// NewPrometheusRecorder registers the limiter metrics with the given
// registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_calls_total",
			Help: "Rate limit decisions by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ratelimit_check_duration_seconds",
			Help:    "Latency of rate limit checks against the backing store.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(r.calls, r.latency)
	return r
}

func (p *PrometheusRecorder) Add(name string, value float64, tags map[string]string) {
	if name != "ratelimit.call" {
		return
	}
	p.calls.WithLabelValues(tags["outcome"]).Add(value)
}

func (p *PrometheusRecorder) Observe(name string, value float64, tags map[string]string) {
	if name == "ratelimit.latency" {
		p.latency.Observe(value)
	}
}
