package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dotprice"

type Prometheus struct {
	gatherer prometheus.Gatherer

	requests          *prometheus.CounterVec
	requestDuration   prometheus.Histogram
	cacheHits         prometheus.Counter
	registrarRequests *prometheus.CounterVec
	registrarDuration *prometheus.HistogramVec
}

// NewPrometheus registers the pricing collectors on reg. A nil reg uses a
// fresh registry.
func NewPrometheus(reg *prometheus.Registry) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	p := &Prometheus{
		gatherer: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "requests_total",
			Help:      "Total pricing requests by result.",
		}, []string{"result"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "request_duration_seconds",
			Help:      "Pricing request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "cache_hits_total",
			Help:      "Pricing requests answered from cache.",
		}),
		registrarRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registrar",
			Name:      "requests_total",
			Help:      "Registrar lookups by registrar and outcome.",
		}, []string{"registrar", "outcome"}),
		registrarDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "registrar",
			Name:      "request_duration_seconds",
			Help:      "Registrar lookup duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"registrar"}),
	}

	collectors := []prometheus.Collector{
		p.requests,
		p.requestDuration,
		p.cacheHits,
		p.registrarRequests,
		p.registrarDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) RecordRequest(success bool, d time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	p.requests.WithLabelValues(result).Inc()
	p.requestDuration.Observe(d.Seconds())
}

func (p *Prometheus) RecordCacheHit() {
	p.cacheHits.Inc()
}

func (p *Prometheus) RecordRegistrar(name, outcome string, d time.Duration) {
	p.registrarRequests.WithLabelValues(name, outcome).Inc()
	p.registrarDuration.WithLabelValues(name).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
