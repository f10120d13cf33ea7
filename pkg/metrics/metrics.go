// Package metrics provides Prometheus metrics collection for SLayer applications.
package metrics

import (
	"math/rand/v2"
	"net/http"
)

// Config configures a Collector.
type Config struct {
	// Namespace and Subsystem prefix every metric name.
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`

	// EnableLatency enables the request duration histogram
	EnableLatency bool `mapstructure:"enable_latency"`
	// EnableThroughput enables the response size counter
	EnableThroughput bool `mapstructure:"enable_throughput"`
	// EnableQPS enables the request counter
	EnableQPS bool `mapstructure:"enable_qps"`
	// EnableErrors enables the error counter
	EnableErrors bool `mapstructure:"enable_errors"`

	// LatencyBuckets defines the buckets for the latency histogram.
	// Defaults to prometheus.DefBuckets.
	LatencyBuckets []float64 `mapstructure:"latency_buckets"`

	// SamplingRate is the fraction of requests observed (0.0-1.0).
	// Zero means unset and is treated as 1.0. Use Collector.WithSampler to
	// observe no requests.
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// DefaultConfig returns a Config with every metric enabled.
func DefaultConfig() Config {
	return Config{
		Namespace:        "slayer",
		EnableLatency:    true,
		EnableThroughput: true,
		EnableQPS:        true,
		EnableErrors:     true,
		SamplingRate:     1.0,
	}
}

// Filter determines whether to collect metrics for a request
type Filter interface {
	// Filter returns true if metrics should be collected for the request
	Filter(r *http.Request) bool
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(r *http.Request) bool

// Filter calls f(r).
func (f FilterFunc) Filter(r *http.Request) bool {
	return f(r)
}

// Sampler samples metrics at a given rate
type Sampler interface {
	// Sample returns true if the metric should be sampled
	Sample() bool
}

// randomSampler is a simple implementation of Sampler
type randomSampler struct {
	rate float64
}

// NewRandomSampler creates a new random sampler with the given rate
func NewRandomSampler(rate float64) Sampler {
	if rate < 0.0 {
		rate = 0.0
	}
	if rate > 1.0 {
		rate = 1.0
	}
	return &randomSampler{
		rate: rate,
	}
}

// Sample returns true if the metric should be sampled
func (s *randomSampler) Sample() bool {
	if s.rate >= 1.0 {
		return true
	}
	if s.rate <= 0.0 {
		return false
	}
	return rand.Float64() < s.rate
}
