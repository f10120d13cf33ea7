package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records request metrics into Prometheus collectors.
// Disabled metrics are left nil and never registered.
type Collector struct {
	config  Config
	filter  Filter
	sampler Sampler

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
	errors   *prometheus.CounterVec
	inFlight prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics with reg.
// Metrics already registered by an identical collector are reused, so
// several applications may share one registry.
func NewCollector(reg prometheus.Registerer, config Config) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rate := config.SamplingRate
	if rate == 0 {
		rate = 1.0
	}
	buckets := config.LatencyBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	c := &Collector{
		config:  config,
		sampler: NewRandomSampler(rate),
	}

	labels := []string{"method", "status"}
	var err error

	c.inFlight, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "requests_in_flight",
		Help:      "Number of requests currently being handled.",
	}))
	if err != nil {
		return nil, err
	}

	if config.EnableQPS {
		c.requests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "requests_total",
			Help:      "Total number of handled requests.",
		}, labels))
		if err != nil {
			return nil, err
		}
	}

	if config.EnableLatency {
		c.latency, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "request_duration_seconds",
			Help:      "Time spent running the middleware pipeline.",
			Buckets:   buckets,
		}, labels))
		if err != nil {
			return nil, err
		}
	}

	if config.EnableThroughput {
		c.bytes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "response_size_bytes_total",
			Help:      "Total size of response bodies in bytes.",
		}, labels))
		if err != nil {
			return nil, err
		}
	}

	if config.EnableErrors {
		c.errors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors delivered to the error sink.",
		}, []string{"status"}))
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

// register registers col with reg, returning the existing collector when an
// identical one is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return col, nil
}

// WithFilter sets the filter deciding which requests are observed.
func (c *Collector) WithFilter(filter Filter) *Collector {
	c.filter = filter
	return c
}

// WithSampler replaces the sampler built from Config.SamplingRate, for
// example with NewRandomSampler(0) to stop observing requests.
func (c *Collector) WithSampler(sampler Sampler) *Collector {
	if sampler != nil {
		c.sampler = sampler
	}
	return c
}

// ShouldObserve reports whether metrics should be collected for r.
func (c *Collector) ShouldObserve(r *http.Request) bool {
	if c.filter != nil && !c.filter.Filter(r) {
		return false
	}
	return c.sampler.Sample()
}

// TrackInFlight increments the in-flight gauge and returns a function that
// decrements it.
func (c *Collector) TrackInFlight() func() {
	c.inFlight.Inc()
	return c.inFlight.Dec
}

// Observe records one completed request.
func (c *Collector) Observe(method string, status int, duration time.Duration, size int64) {
	code := strconv.Itoa(status)
	if c.requests != nil {
		c.requests.WithLabelValues(method, code).Inc()
	}
	if c.latency != nil {
		c.latency.WithLabelValues(method, code).Observe(duration.Seconds())
	}
	if c.bytes != nil && size > 0 {
		c.bytes.WithLabelValues(method, code).Add(float64(size))
	}
}

// ObserveError records an error delivered to the error sink.
func (c *Collector) ObserveError(status int) {
	if c.errors != nil {
		c.errors.WithLabelValues(strconv.Itoa(status)).Inc()
	}
}

// Handler returns an HTTP handler exposing the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
