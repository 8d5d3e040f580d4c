package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/aoichat/pkg/completion"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aoichat"

// Metrics collects per-process counters for completions and tool calls.
// The registry is written once to a node_exporter textfile on exit.
type Metrics struct {
	registry *prometheus.Registry

	completionTotal    *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
	fragmentsTotal     *prometheus.CounterVec

	toolCallTotal    *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		completionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completions_total",
				Help:      "Total streamed completions by provider and status.",
			},
			[]string{"provider", "status"},
		),
		completionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "completion_duration_seconds",
				Help:      "Completion duration in seconds from request to termination event.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		fragmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fragments_total",
				Help:      "Total text fragments streamed by provider.",
			},
			[]string{"provider"},
		),
		toolCallTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total tool calls by tool and status.",
			},
			[]string{"tool", "status"},
		),
		toolCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Tool call duration in seconds by tool.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
	}

	m.registry.MustRegister(
		m.completionTotal,
		m.completionDuration,
		m.fragmentsTotal,
		m.toolCallTotal,
		m.toolCallDuration,
	)
	return m
}

// Gatherer exposes the registry
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// RecordCompletion records one finished completion stream
func (m *Metrics) RecordCompletion(provider string, duration time.Duration, fragments int, err error) {
	m.completionTotal.WithLabelValues(provider, completionStatus(err)).Inc()
	m.completionDuration.WithLabelValues(provider).Observe(duration.Seconds())
	m.fragmentsTotal.WithLabelValues(provider).Add(float64(fragments))
}

// RecordToolCall implements completion.ToolCallRecorder
func (m *Metrics) RecordToolCall(_ context.Context, record completion.ToolCallRecord) {
	m.toolCallTotal.WithLabelValues(record.Call.Name, toolStatus(record)).Inc()
	m.toolCallDuration.WithLabelValues(record.Call.Name).Observe(record.Duration.Seconds())
}

// WriteToTextfile writes the registry in the text exposition format
func (m *Metrics) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

func completionStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, errStreamAbandoned):
		return "abandoned"
	default:
		return "error"
	}
}
