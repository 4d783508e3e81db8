package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/subha-wp/advisorpro-crm-sub002/internal/auth"
)

// meterName scopes every instrument created here.
const meterName = "github.com/subha-wp/advisorpro-crm-sub002/internal/api"

// Metrics records auth and HTTP instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	operations   metric.Int64Counter
	rateLimited  metric.Int64Counter
	auditDropped metric.Int64Counter
	duration     metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	operations, err := meter.Int64Counter(
		"auth.operations.total",
		metric.WithDescription("Auth operations by operation and outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	rateLimited, err := meter.Int64Counter(
		"auth.rate_limited.total",
		metric.WithDescription("Requests rejected by the rate guard"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	auditDropped, err := meter.Int64Counter(
		"auth.audit.dropped.total",
		metric.WithDescription("Audit events dropped because the queue was full"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"http.server.duration_ms",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		operations:   operations,
		rateLimited:  rateLimited,
		auditDropped: auditDropped,
		duration:     duration,
	}, nil
}

// RecordAuth counts one auth operation. The outcome label is derived from
// the error kind so it stays low-cardinality.
func (m *Metrics) RecordAuth(ctx context.Context, operation string, err error) {
	if m == nil {
		return
	}
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcomeOf(err)),
	))
}

// RecordRateLimited counts one request rejected on route.
func (m *Metrics) RecordRateLimited(ctx context.Context, route string) {
	if m == nil {
		return
	}
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
}

// AuditDropped counts one audit event lost to back-pressure. Its signature
// fits audit.WithDropHook.
func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Add(context.Background(), 1)
}

// RecordRequest records the duration of one HTTP request.
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, auth.ErrInvalidRefresh):
		return "invalid_refresh"
	case errors.Is(err, auth.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, auth.ErrForbidden):
		return "forbidden"
	case errors.Is(err, auth.ErrValidation):
		return "invalid"
	case errors.Is(err, auth.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

// Telemetry bundles the metrics, the Prometheus scrape handler and the
// meter provider behind them.
type Telemetry struct {
	Metrics  *Metrics
	Handler  http.Handler
	provider *sdkmetric.MeterProvider
}

// NewPrometheusTelemetry wires an otel meter provider to a private
// Prometheus registry and returns the /metrics handler for it.
func NewPrometheusTelemetry() (*Telemetry, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	m, err := NewMetrics(provider.Meter(meterName))
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("creating instruments: %w", err)
	}

	return &Telemetry{
		Metrics:  m,
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		provider: provider,
	}, nil
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
