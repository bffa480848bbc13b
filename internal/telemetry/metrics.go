package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type customMetrics struct {
	executions       metric.Int64Counter
	executionSeconds metric.Float64Histogram
	credentialFetch  metric.Int64Counter
	heartbeats       metric.Int64Counter
}

// NewCustomMetrics creates the control plane's domain metric instruments.
func NewCustomMetrics(meter metric.Meter) (CustomMetrics, error) {
	executions, err := meter.Int64Counter(
		"toolbox_tool_executions_total",
		metric.WithDescription("Number of tool capability executions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create executions counter: %w", err)
	}

	executionSeconds, err := meter.Float64Histogram(
		"toolbox_tool_execution_seconds",
		metric.WithDescription("Duration of tool capability executions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution duration histogram: %w", err)
	}

	credentialFetch, err := meter.Int64Counter(
		"toolbox_credential_fetches_total",
		metric.WithDescription("Number of credential broker requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential fetch counter: %w", err)
	}

	heartbeats, err := meter.Int64Counter(
		"toolbox_heartbeats_total",
		metric.WithDescription("Number of host agent heartbeats received"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create heartbeat counter: %w", err)
	}

	return &customMetrics{
		executions:       executions,
		executionSeconds: executionSeconds,
		credentialFetch:  credentialFetch,
		heartbeats:       heartbeats,
	}, nil
}

func (m *customMetrics) RecordToolExecution(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.executions.Add(ctx, 1, attrs)
	m.executionSeconds.Record(ctx, d.Seconds(), attrs)
}

func (m *customMetrics) RecordCredentialFetch(ctx context.Context, outcome string) {
	m.credentialFetch.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *customMetrics) RecordHeartbeat(ctx context.Context) {
	m.heartbeats.Add(ctx, 1)
}

type noopCustomMetrics struct{}

// NewNoopCustomMetrics returns metrics that record nothing. Used when
// telemetry is disabled and in tests.
func NewNoopCustomMetrics() CustomMetrics {
	return noopCustomMetrics{}
}

func (noopCustomMetrics) RecordToolExecution(context.Context, string, time.Duration) {}
func (noopCustomMetrics) RecordCredentialFetch(context.Context, string)              {}
func (noopCustomMetrics) RecordHeartbeat(context.Context)                            {}
