package pipeline

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// PrometheusCollector implements MetricsCollector on a private prometheus
// registry. Vectors are created on first use of a metric name; the label set
// of that first call is fixed for the lifetime of the metric.
type PrometheusCollector struct {
	namespace string
	registry  *prometheus.Registry
	logger    Logger

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labels     map[string][]string
}

// NewPrometheusCollector creates a collector with Go runtime and process
// collectors already registered.
func NewPrometheusCollector(namespace string, logger Logger) *PrometheusCollector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &PrometheusCollector{
		namespace:  namespace,
		registry:   registry,
		logger:     logger,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labels:     make(map[string][]string),
	}
}

// Registry exposes the underlying registry for HTTP exposition.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordCounter records a counter metric
func (c *PrometheusCollector) RecordCounter(name string, value int64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vec, ok := c.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      metricName(name) + "_total",
			Help:      "Counter " + name,
		}, labelNames(tags))
		if !c.register(name, vec, tags) {
			return
		}
		c.counters[name] = vec
	}

	counter, err := vec.GetMetricWith(prometheus.Labels(tags))
	if err != nil {
		c.logger.Warn("Dropping counter sample", String("name", name), Error(err))
		return
	}
	counter.Add(float64(value))
}

// RecordGauge records a gauge metric
func (c *PrometheusCollector) RecordGauge(name string, value float64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vec, ok := c.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      metricName(name),
			Help:      "Gauge " + name,
		}, labelNames(tags))
		if !c.register(name, vec, tags) {
			return
		}
		c.gauges[name] = vec
	}

	gauge, err := vec.GetMetricWith(prometheus.Labels(tags))
	if err != nil {
		c.logger.Warn("Dropping gauge sample", String("name", name), Error(err))
		return
	}
	gauge.Set(value)
}

// RecordHistogram records a histogram metric
func (c *PrometheusCollector) RecordHistogram(name string, value float64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vec, ok := c.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      metricName(name),
			Help:      "Histogram " + name,
			Buckets:   prometheus.DefBuckets,
		}, labelNames(tags))
		if !c.register(name, vec, tags) {
			return
		}
		c.histograms[name] = vec
	}

	observer, err := vec.GetMetricWith(prometheus.Labels(tags))
	if err != nil {
		c.logger.Warn("Dropping histogram sample", String("name", name), Error(err))
		return
	}
	observer.Observe(value)
}

// RecordTiming records a timing metric as a histogram in seconds
func (c *PrometheusCollector) RecordTiming(name string, duration time.Duration, tags map[string]string) {
	c.RecordHistogram(name+"_seconds", duration.Seconds(), tags)
}

func (c *PrometheusCollector) register(name string, collector prometheus.Collector, tags map[string]string) bool {
	if err := c.registry.Register(collector); err != nil {
		c.logger.Error("Failed to register metric", String("name", name), Error(err))
		return false
	}
	c.labels[name] = labelNames(tags)
	c.logger.Debug("Registered metric", String("name", name), Any("labels", c.labels[name]))
	return true
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(name)
}

// NoopMetrics discards every sample.
type NoopMetrics struct{}

func (NoopMetrics) RecordCounter(string, int64, map[string]string)         {}
func (NoopMetrics) RecordGauge(string, float64, map[string]string)         {}
func (NoopMetrics) RecordHistogram(string, float64, map[string]string)     {}
func (NoopMetrics) RecordTiming(string, time.Duration, map[string]string) {}
