// Package telemetry provides OpenTelemetry metrics with a Prometheus exporter
// for the toolbox control plane.
package telemetry

import (
	"context"
	"fmt"
	"time"

	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	ExecutionOutcomeSuccess = "success"
	ExecutionOutcomeError   = "error"
	ExecutionOutcomeDenied  = "denied"
)

// Providers holds the OpenTelemetry providers for the server.
// When telemetry is disabled, a nil *Providers is safe to use.
type Providers struct {
	serviceName   string
	meterProvider *sdkmetric.MeterProvider
}

// NewProviders sets up a meter provider backed by the Prometheus exporter.
// Metrics are scraped from the default prometheus registry via /metrics.
func NewProviders(serviceName string) (*Providers, error) {
	exporter, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return &Providers{serviceName: serviceName, meterProvider: mp}, nil
}

// IsEnabled returns true if telemetry is active.
func (p *Providers) IsEnabled() bool {
	return p != nil && p.meterProvider != nil
}

// ServiceName returns the configured service name.
func (p *Providers) ServiceName() string {
	if p == nil {
		return ""
	}
	return p.serviceName
}

// Meter returns a meter for creating instruments.
func (p *Providers) Meter() metric.Meter {
	return p.meterProvider.Meter(p.serviceName)
}

// Shutdown flushes and stops the providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if !p.IsEnabled() {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}

// CustomMetrics records the domain metrics of the control plane.
type CustomMetrics interface {
	// RecordToolExecution records one capability execution with its outcome
	// and duration.
	RecordToolExecution(ctx context.Context, outcome string, d time.Duration)

	// RecordCredentialFetch records one credential broker request.
	RecordCredentialFetch(ctx context.Context, outcome string)

	// RecordHeartbeat records one host agent heartbeat.
	RecordHeartbeat(ctx context.Context)
}
