package watcher

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the watcher's operational metrics. A nil *Metrics is valid
// and records nothing, so the watcher works without a meter provider.
type Metrics struct {
	requestsProcessed metric.Int64Counter
	actionDuration    metric.Float64Histogram
	malformedRequests metric.Int64Counter
}

// NewMetrics registers the watcher metrics on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("fenceline.watcher")

	requestsProcessed, err := meter.Int64Counter(
		"fenceline.watcher.requests_processed",
		metric.WithDescription("Number of fence requests processed"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	actionDuration, err := meter.Float64Histogram(
		"fenceline.watcher.action_duration",
		metric.WithDescription("Duration of fence action execution"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	malformedRequests, err := meter.Int64Counter(
		"fenceline.watcher.malformed_requests",
		metric.WithDescription("Number of request files that failed to parse"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requestsProcessed: requestsProcessed,
		actionDuration:    actionDuration,
		malformedRequests: malformedRequests,
	}, nil
}

// RecordProcessed records one handled request and its execution time.
func (m *Metrics) RecordProcessed(ctx context.Context, action string, success bool, seconds float64) {
	if m == nil {
		return
	}
	status := "failed"
	if success {
		status = "completed"
	}
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("status", status),
	)
	m.requestsProcessed.Add(ctx, 1, attrs)
	m.actionDuration.Record(ctx, seconds, attrs)
}

// RecordMalformed records a request file that could not be parsed.
func (m *Metrics) RecordMalformed(ctx context.Context) {
	if m == nil {
		return
	}
	m.malformedRequests.Add(ctx, 1)
}
