// Package selfmetrics exposes the SDK's own operational counters as both
// Prometheus and OpenTelemetry metrics, distinct from the application
// metrics the SDK records and uploads on the embedder's behalf. Grounded on
// the teacher's monitoring.PrometheusExporter (a private registry,
// CounterVec family, promhttp.HandlerFor-backed HTTP handler) for the
// scrape surface, and its monitoring.OpenTelemetryTracer sibling for the
// push-based OTel meter, narrowed from a business-rule metrics exporter to
// the ping submission/upload counters this module's own operation produces.
package selfmetrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/shimmerdata/beacon/platform"
)

// Collector tracks counts of pings submitted and upload outcomes.
type Collector struct {
	registry       *prometheus.Registry
	pingsSubmitted *prometheus.CounterVec
	uploadResults  *prometheus.CounterVec

	uploadLatency metric.Float64Histogram
}

// New builds a Collector with its own private Prometheus registry, so
// instantiating more than one Beacon in a process never collides on metric
// names, and an OTel meter bound to the global MeterProvider. If the global
// provider is not an SDK MeterProvider, a no-exporter SDK provider is
// installed as the global one first.
func New() *Collector {
	registry := prometheus.NewRegistry()
	pingsSubmitted := prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "beacon", Name: "pings_submitted_total", Help: "Pings handed to the assembler, by ping type."},
		[]string{"ping"},
	)
	uploadResults := prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "beacon", Name: "upload_results_total", Help: "Upload attempts by outcome."},
		[]string{"outcome"},
	)
	registry.MustRegister(pingsSubmitted, uploadResults)

	if _, ok := otel.GetMeterProvider().(*sdkmetric.MeterProvider); !ok {
		otel.SetMeterProvider(sdkmetric.NewMeterProvider())
	}
	meter := otel.Meter("beacon")
	uploadLatency, _ := meter.Float64Histogram(
		"beacon.upload.latency",
		metric.WithDescription("Duration of one upload attempt, by outcome."),
		metric.WithUnit("s"),
	)

	return &Collector{
		registry:       registry,
		pingsSubmitted: pingsSubmitted,
		uploadResults:  uploadResults,
		uploadLatency:  uploadLatency,
	}
}

// RecordSubmission increments the submitted-ping counter for ping.
func (c *Collector) RecordSubmission(ping string) {
	c.pingsSubmitted.WithLabelValues(ping).Inc()
}

// Handler returns the HTTP handler exposing these counters in the
// Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WrapUploader decorates u so every Post outcome increments uploadResults
// and records its latency, without requiring upload.Manager to know
// metrics exist.
func (c *Collector) WrapUploader(u platform.Uploader) platform.Uploader {
	return &instrumentedUploader{inner: u, c: c}
}

type instrumentedUploader struct {
	inner platform.Uploader
	c     *Collector
}

func (i *instrumentedUploader) Post(ctx context.Context, url string, body []byte, headers map[string]string) (platform.UploadResult, error) {
	start := time.Now()
	result, err := i.inner.Post(ctx, url, body, headers)
	label := outcomeLabel(result, err)
	i.c.uploadResults.WithLabelValues(label).Inc()
	if i.c.uploadLatency != nil {
		i.c.uploadLatency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("outcome", label),
		))
	}
	return result, err
}

func outcomeLabel(result platform.UploadResult, err error) string {
	switch result.Status {
	case platform.Success:
		return "success"
	case platform.RecoverableFailure:
		return "recoverable_failure"
	case platform.HTTPStatus:
		if result.Code >= 500 {
			return "server_error"
		}
		return "client_error"
	default:
		if err != nil {
			return "error"
		}
		return "unknown"
	}
}
