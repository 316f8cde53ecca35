package telemetry

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ShutdownFunc releases telemetry resources.
type ShutdownFunc func(ctx context.Context) error

// Setup initializes OpenTelemetry with a Prometheus exporter.
// Returns a shutdown function that must be called on exit.
func Setup(ctx context.Context, serviceName string) (ShutdownFunc, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, errors.Wrap(err, "creating prometheus exporter")
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// PipelineMetrics holds all OTel instruments for the pipeline.
type PipelineMetrics struct {
	requestsTotal           otelmetric.Int64Counter
	requestDuration         otelmetric.Float64Histogram
	handlerErrorsTotal      otelmetric.Int64Counter
	shortCircuitsTotal      otelmetric.Int64Counter
	rateLimitDecisionsTotal otelmetric.Int64Counter
	authValidationsTotal    otelmetric.Int64Counter
	jwksRefreshesTotal      otelmetric.Int64Counter
	upstreamRequestsTotal   otelmetric.Int64Counter
	upstreamDuration        otelmetric.Float64Histogram
}

// NewPipelineMetrics creates and registers all pipeline metrics.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter("relay")
	m := &PipelineMetrics{}
	var err error

	latencyBuckets := otelmetric.WithExplicitBucketBoundaries(
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
	)

	if m.requestsTotal, err = meter.Int64Counter("relay_requests_total",
		otelmetric.WithDescription("Total requests entering the pipeline")); err != nil {
		return nil, errors.Wrap(err, "creating requests_total")
	}
	if m.requestDuration, err = meter.Float64Histogram("relay_request_duration_seconds",
		otelmetric.WithDescription("Pipeline request duration"), latencyBuckets); err != nil {
		return nil, errors.Wrap(err, "creating request_duration")
	}
	if m.handlerErrorsTotal, err = meter.Int64Counter("relay_handler_errors_total",
		otelmetric.WithDescription("Total handler errors translated by the adapter")); err != nil {
		return nil, errors.Wrap(err, "creating handler_errors_total")
	}
	if m.shortCircuitsTotal, err = meter.Int64Counter("relay_short_circuits_total",
		otelmetric.WithDescription("Total requests answered without reaching the terminal handler")); err != nil {
		return nil, errors.Wrap(err, "creating short_circuits_total")
	}
	if m.rateLimitDecisionsTotal, err = meter.Int64Counter("relay_ratelimit_decisions_total",
		otelmetric.WithDescription("Total rate limit decisions")); err != nil {
		return nil, errors.Wrap(err, "creating ratelimit_decisions_total")
	}
	if m.authValidationsTotal, err = meter.Int64Counter("relay_auth_validations_total",
		otelmetric.WithDescription("Total auth validations")); err != nil {
		return nil, errors.Wrap(err, "creating auth_validations_total")
	}
	if m.jwksRefreshesTotal, err = meter.Int64Counter("relay_jwks_refreshes_total",
		otelmetric.WithDescription("Total JWKS refreshes")); err != nil {
		return nil, errors.Wrap(err, "creating jwks_refreshes_total")
	}
	if m.upstreamRequestsTotal, err = meter.Int64Counter("relay_upstream_requests_total",
		otelmetric.WithDescription("Total requests forwarded to upstreams")); err != nil {
		return nil, errors.Wrap(err, "creating upstream_requests_total")
	}
	if m.upstreamDuration, err = meter.Float64Histogram("relay_upstream_duration_seconds",
		otelmetric.WithDescription("Upstream request duration"), latencyBuckets); err != nil {
		return nil, errors.Wrap(err, "creating upstream_duration")
	}

	return m, nil
}

// RecordRequest records one request through the pipeline.
func (m *PipelineMetrics) RecordRequest(ctx context.Context, method, path string, status int, durationSec float64) {
	attrs := otelmetric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(status),
	)
	m.requestsTotal.Add(ctx, 1, attrs)
	m.requestDuration.Record(ctx, durationSec, attrs)
}

// RecordHandlerError records a handler error reaching the adapter boundary.
func (m *PipelineMetrics) RecordHandlerError(ctx context.Context) {
	m.handlerErrorsTotal.Add(ctx, 1)
}

// RecordShortCircuit records a request answered by the named middleware
// without reaching downstream handlers.
func (m *PipelineMetrics) RecordShortCircuit(ctx context.Context, middleware string) {
	m.shortCircuitsTotal.Add(ctx, 1, otelmetric.WithAttributes(middlewareAttr(middleware)))
}

// RecordRateLimitDecision records a rate limit decision.
func (m *PipelineMetrics) RecordRateLimitDecision(ctx context.Context, layer, result string) {
	m.rateLimitDecisionsTotal.Add(ctx, 1, otelmetric.WithAttributes(
		layerAttr(layer),
		resultAttr(result),
	))
}

// RecordAuthValidation records an auth validation result.
func (m *PipelineMetrics) RecordAuthValidation(ctx context.Context, result string) {
	m.authValidationsTotal.Add(ctx, 1, otelmetric.WithAttributes(resultAttr(result)))
}

// RecordJWKSRefresh records a JWKS refresh attempt.
func (m *PipelineMetrics) RecordJWKSRefresh(ctx context.Context, result string) {
	m.jwksRefreshesTotal.Add(ctx, 1, otelmetric.WithAttributes(resultAttr(result)))
}

// RecordUpstreamRequest records a request forwarded to an upstream.
func (m *PipelineMetrics) RecordUpstreamRequest(ctx context.Context, upstream string, status int, durationSec float64) {
	attrs := otelmetric.WithAttributes(
		upstreamAttr(upstream),
		statusAttr(status),
	)
	m.upstreamRequestsTotal.Add(ctx, 1, attrs)
	m.upstreamDuration.Record(ctx, durationSec, attrs)
}
