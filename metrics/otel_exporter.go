package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelExporter provides OpenTelemetry metrics export following OTel standards
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	collector     Collector

	// OTel meters and instruments
	meter            metric.Meter
	statusCountGauge metric.Int64ObservableGauge
	endpointGauge    metric.Int64ObservableGauge
	backlogGauge     metric.Int64ObservableGauge
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter with Prometheus format
func NewOTelExporter(collector Collector) (*OTelExporter, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(
		"webhook-engine",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	oe := &OTelExporter{
		meterProvider: meterProvider,
		collector:     collector,
		meter:         meter,
	}

	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (oe *OTelExporter) registerInstruments() error {
	var err error

	oe.statusCountGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.events.count",
		metric.WithDescription("Number of webhook events by status"),
		metric.WithUnit("{events}"),
		metric.WithInt64Callback(oe.observeStatusCounts),
	)
	if err != nil {
		return fmt.Errorf("creating status count gauge: %w", err)
	}

	oe.endpointGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.endpoints.count",
		metric.WithDescription("Number of registered endpoints by state"),
		metric.WithUnit("{endpoints}"),
		metric.WithInt64Callback(oe.observeEndpointCounts),
	)
	if err != nil {
		return fmt.Errorf("creating endpoint gauge: %w", err)
	}

	oe.backlogGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.delivery.backlog",
		metric.WithDescription("Number of pending events overdue for delivery"),
		metric.WithUnit("{events}"),
		metric.WithInt64Callback(oe.observeDueBacklog),
	)
	if err != nil {
		return fmt.Errorf("creating backlog gauge: %w", err)
	}

	return nil
}

// observeStatusCounts is a callback that reports event counts by status
func (oe *OTelExporter) observeStatusCounts(ctx context.Context, observer metric.Int64Observer) error {
	statusCounts, err := oe.collector.GetStatusCounts(ctx)
	if err != nil {
		return err
	}

	for status, count := range statusCounts {
		observer.Observe(count, metric.WithAttributes(
			attribute.String("webhook.status", status),
		))
	}

	return nil
}

// observeEndpointCounts is a callback that reports endpoint registry totals
func (oe *OTelExporter) observeEndpointCounts(ctx context.Context, observer metric.Int64Observer) error {
	endpoints, err := oe.collector.GetEndpointCounts(ctx)
	if err != nil {
		return err
	}

	observer.Observe(endpoints.Total, metric.WithAttributes(
		attribute.String("endpoint.state", "registered"),
	))
	observer.Observe(endpoints.Enabled, metric.WithAttributes(
		attribute.String("endpoint.state", "enabled"),
	))

	return nil
}

// observeDueBacklog is a callback that reports the due backlog size
func (oe *OTelExporter) observeDueBacklog(ctx context.Context, observer metric.Int64Observer) error {
	backlog, err := oe.collector.GetDueBacklog(ctx)
	if err != nil {
		return err
	}

	observer.Observe(backlog)
	return nil
}

// ServeHTTP serves Prometheus-formatted metrics on the given HTTP handler
func (oe *OTelExporter) ServeHTTP() http.Handler {
	return promhttp.Handler()
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}
