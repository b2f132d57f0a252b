// Package metrics exposes gateway and stream metrics in the Prometheus
// format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "thinkgate"

// Collector records gateway metrics into its own registry.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Stream metrics
	streamsTotal     *prometheus.CounterVec
	streamDuration   *prometheus.HistogramVec
	fragmentsTotal   prometheus.Counter
	reasoningRegions prometheus.Counter
	malformedLines   *prometheus.CounterVec

	// Event publication metrics
	eventsPublished *prometheus.CounterVec
	eventsDropped   prometheus.Counter

	logger *zap.Logger
}

// NewCollector creates a Collector with a fresh registry that also carries
// the Go runtime and process collectors.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	c := &Collector{
		registry: registry,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds, including streamed bodies",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.streamsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of streams by outcome",
		},
		[]string{"outcome"},
	)

	c.streamDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Stream duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	c.fragmentsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_total",
			Help:      "Total number of upstream text fragments processed",
		},
	)

	c.reasoningRegions = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reasoning_regions_closed_total",
			Help:      "Total number of reasoning regions closed and summarized",
		},
	)

	c.malformedLines = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_lines_total",
			Help:      "Total number of skipped upstream lines by reason",
		},
		[]string{"reason"},
	)

	c.eventsPublished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of stream completion events handed to the publisher",
		},
		[]string{"status"},
	)

	c.eventsDropped = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Total number of stream completion events dropped on a full queue",
		},
	)

	return c
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordStream records a finished stream.
func (c *Collector) RecordStream(outcome string, duration time.Duration, fragments, regions int) {
	c.streamsTotal.WithLabelValues(outcome).Inc()
	c.streamDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	c.fragmentsTotal.Add(float64(fragments))
	c.reasoningRegions.Add(float64(regions))
}

// RecordMalformedLine records a skipped upstream line.
func (c *Collector) RecordMalformedLine(reason string) {
	c.malformedLines.WithLabelValues(reason).Inc()
}

// RecordPublish records the result of publishing a completion event.
func (c *Collector) RecordPublish(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.eventsPublished.WithLabelValues(status).Inc()
}

// RecordDroppedEvent records a completion event dropped on a full queue.
func (c *Collector) RecordDroppedEvent() {
	c.eventsDropped.Inc()
	c.logger.Debug("completion event dropped")
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an http.Handler serving the registry in the exposition
// format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(c.logger),
	})
}
