// Package telemetry wires the OpenTelemetry meter provider used by the
// engine instruments into the Prometheus registry served at /metrics.
package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Config identifies the service in exported metrics
type Config struct {
	ServiceName string
	Version     string
	Environment string
}

// Provider owns the SDK meter provider
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
}

// New creates a meter provider exporting into registry
func New(registry prometheus.Registerer, cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "vigil"
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
		attribute.String("deployment.environment", cfg.Environment),
	)

	return &Provider{
		meterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		),
	}, nil
}

// MeterProvider returns the SDK meter provider
func (p *Provider) MeterProvider() *sdkmetric.MeterProvider {
	return p.meterProvider
}

// SetGlobal installs the provider for otel.Meter callers. Instruments
// created before this call stay no-ops.
func (p *Provider) SetGlobal() {
	otel.SetMeterProvider(p.meterProvider)
}

// Shutdown flushes and stops the meter provider
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}
	return nil
}
