// Package telemetry provides OpenTelemetry metrics for the asset cache.
package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const (
	meterName = "github.com/reducekit/asset-cache"
)

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// EnablePrometheus enables the Prometheus /metrics endpoint.
	EnablePrometheus bool

	// FlushInterval is how often to export metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	requestsTotal      metric.Int64Counter
	responseBytesTotal metric.Int64Counter
	requestDuration    metric.Float64Histogram

	saveSize        metric.Float64Histogram
	savesTotal      metric.Int64Counter
	sendsTotal      metric.Int64Counter
	flushRenames    metric.Int64Counter
	watchEvents     metric.Int64Counter
	backendDuration metric.Float64Histogram
	backendTotal    metric.Int64Counter
	backendBytes    metric.Int64Counter

	meterProvider *sdkmetric.MeterProvider
	promHandler   http.Handler
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the OpenTelemetry metrics system.
// Returns a shutdown function that should be called on application exit.
// Uses sync.Once to ensure single initialisation.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInitMetrics(ctx, cfg)
	})

	if initErr != nil {
		return nil, initErr
	}

	return shutdownMetrics, nil
}

func doInitMetrics(ctx context.Context, cfg MetricsConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "asset-cache"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var readers []sdkmetric.Reader
	var promHandler http.Handler

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	if cfg.EnablePrometheus {
		promExp, err := promexporter.New()
		if err != nil {
			return err
		}
		readers = append(readers, promExp)
		promHandler = promhttp.Handler()
	}

	// If no exporters configured, use a no-op periodic reader to still collect metrics
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewPeriodicReader(noopExporter{},
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	meter := mp.Meter(meterName)

	requestsTotal, err := meter.Int64Counter(
		"asset_cache_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	responseBytesTotal, err := meter.Int64Counter(
		"asset_cache_http_response_bytes_total",
		metric.WithDescription("Total bytes sent in HTTP responses"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	requestDuration, err := meter.Float64Histogram(
		"asset_cache_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return err
	}

	saveSize, err := meter.Float64Histogram(
		"asset_cache_save_size_bytes",
		metric.WithDescription("Size of artifacts written to storage"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(128, 512, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216),
	)
	if err != nil {
		return err
	}

	savesTotal, err := meter.Int64Counter(
		"asset_cache_saves_total",
		metric.WithDescription("Total artifacts saved"),
		metric.WithUnit("{artifact}"),
	)
	if err != nil {
		return err
	}

	sendsTotal, err := meter.Int64Counter(
		"asset_cache_sends_total",
		metric.WithDescription("Total content transmissions by outcome (active, expired, miss)"),
		metric.WithUnit("{send}"),
	)
	if err != nil {
		return err
	}

	flushRenames, err := meter.Int64Counter(
		"asset_cache_flush_renames_total",
		metric.WithDescription("Total files renamed to the expired form by flush"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return err
	}

	watchEvents, err := meter.Int64Counter(
		"asset_cache_watch_events_total",
		metric.WithDescription("Total filesystem watch events applied to the reduction index"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	backendDuration, err := meter.Float64Histogram(
		"asset_cache_backend_request_duration_seconds",
		metric.WithDescription("Duration of backend filesystem operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return err
	}

	backendTotal, err := meter.Int64Counter(
		"asset_cache_backend_requests_total",
		metric.WithDescription("Total number of backend filesystem operations"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	backendBytes, err := meter.Int64Counter(
		"asset_cache_backend_bytes_total",
		metric.WithDescription("Total bytes transferred in backend operations"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	globalMetrics = &Metrics{
		requestsTotal:      requestsTotal,
		responseBytesTotal: responseBytesTotal,
		requestDuration:    requestDuration,
		saveSize:           saveSize,
		savesTotal:         savesTotal,
		sendsTotal:         sendsTotal,
		flushRenames:       flushRenames,
		watchEvents:        watchEvents,
		backendDuration:    backendDuration,
		backendTotal:       backendTotal,
		backendBytes:       backendBytes,
		meterProvider:      mp,
		promHandler:        promHandler,
	}

	return nil
}

// shutdownMetrics shuts down the metrics provider and clears the global state.
func shutdownMetrics(ctx context.Context) error {
	if globalMetrics == nil {
		return nil
	}
	err := globalMetrics.meterProvider.Shutdown(ctx)
	globalMetrics = nil
	return err
}

// RecordHTTP records HTTP request metrics.
// Call this from the logging middleware after the request completes.
func RecordHTTP(ctx context.Context, status int, bytesSent int64, duration time.Duration) {
	if globalMetrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("status_class", StatusClass(status)),
	}
	globalMetrics.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	globalMetrics.responseBytesTotal.Add(ctx, bytesSent, metric.WithAttributes(attrs...))
	globalMetrics.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordSave records an artifact save with its size and kind.
func RecordSave(ctx context.Context, kind string, size int64) {
	if globalMetrics == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("kind", kind))
	globalMetrics.savesTotal.Add(ctx, 1, attrs)
	globalMetrics.saveSize.Record(ctx, float64(size), attrs)
}

// RecordSend records a content transmission outcome.
// outcome is "active", "expired" or "miss".
func RecordSend(ctx context.Context, outcome string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.sendsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordFlush records the number of files a flush renamed to expired.
func RecordFlush(ctx context.Context, renamed int) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.flushRenames.Add(ctx, int64(renamed))
}

// RecordWatchEvent records one filesystem watch event applied to the
// reduction index. op is "add" or "remove".
func RecordWatchEvent(ctx context.Context, op string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.watchEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordBackendOp records a backend filesystem operation.
func RecordBackendOp(ctx context.Context, backend, op, outcome string, duration time.Duration, bytes int64) {
	if globalMetrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("backend", backend),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	}
	globalMetrics.backendTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	globalMetrics.backendDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if bytes > 0 {
		globalMetrics.backendBytes.Add(ctx, bytes, metric.WithAttributes(attrs...))
	}
}

// PrometheusHandler returns the Prometheus metrics HTTP handler.
// Returns a handler that returns 404 if Prometheus export is not enabled,
// allowing safe registration regardless of initialization order.
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if globalMetrics == nil || globalMetrics.promHandler == nil {
			http.NotFound(w, r)
			return
		}
		globalMetrics.promHandler.ServeHTTP(w, r)
	})
}

// StatusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx).
func StatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// noopExporter is a no-op metrics exporter for when no exporters are configured.
type noopExporter struct{}

func (noopExporter) Temporality(_ sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (noopExporter) Aggregation(_ sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return nil
}

func (noopExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error {
	return nil
}

func (noopExporter) ForceFlush(_ context.Context) error {
	return nil
}

func (noopExporter) Shutdown(_ context.Context) error {
	return nil
}
