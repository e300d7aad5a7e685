package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects counters and histograms for the conversation engine.
//
// Tracked:
//   - Streaming rounds by stop signal (end_turn, pause_turn, tool_use)
//   - Model request latency and token consumption
//   - Client tool executions by tool and outcome
//   - Artifact resolution outcomes (resolved, oversize, failed)
//   - Scheduled task dispatches
type Metrics struct {
	// RoundCounter counts streaming rounds by stop signal and kind.
	// Labels: stop_signal, kind (loop|wrapup|recovery)
	RoundCounter *prometheus.CounterVec

	// RequestDuration measures model API call latency in seconds.
	// Labels: model
	RequestDuration *prometheus.HistogramVec

	// TokensUsed tracks token consumption.
	// Labels: model, type (input|output)
	TokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts client tool invocations.
	// Labels: tool_name, status (ok|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures client tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ArtifactCounter counts artifact resolution outcomes.
	// Labels: outcome (resolved|oversize|metadata_error|download_error)
	ArtifactCounter *prometheus.CounterVec

	// TaskCounter counts scheduled task dispatches.
	// Labels: type (static|dynamic), status (ok|error|stale)
	TaskCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the default registry.
// Call once at startup.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics with a specific registerer.
// Tests pass prometheus.NewRegistry() to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RoundCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "summabot_rounds_total",
				Help: "Total streaming rounds by stop signal and round kind",
			},
			[]string{"stop_signal", "kind"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "summabot_request_duration_seconds",
				Help:    "Duration of model API requests in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),

		TokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "summabot_tokens_total",
				Help: "Total tokens used by model and type",
			},
			[]string{"model", "type"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "summabot_tool_executions_total",
				Help: "Total client tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "summabot_tool_execution_duration_seconds",
				Help:    "Duration of client tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),

		ArtifactCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "summabot_artifacts_total",
				Help: "Total artifact resolution attempts by outcome",
			},
			[]string{"outcome"},
		),

		TaskCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "summabot_scheduled_tasks_total",
				Help: "Total scheduled task dispatches by type and status",
			},
			[]string{"type", "status"},
		),
	}
}

// RecordRound increments the round counter for a stop signal.
func (m *Metrics) RecordRound(stopSignal, kind string) {
	m.RoundCounter.WithLabelValues(stopSignal, kind).Inc()
}

// RecordRequest records latency and token usage for one model request.
func (m *Metrics) RecordRequest(model string, durationSeconds float64, inputTokens, outputTokens int64) {
	m.RequestDuration.WithLabelValues(model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.TokensUsed.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.TokensUsed.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// RecordToolExecution records one client tool execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordArtifact records one artifact resolution outcome.
func (m *Metrics) RecordArtifact(outcome string) {
	m.ArtifactCounter.WithLabelValues(outcome).Inc()
}

// RecordTask records one scheduled task dispatch.
func (m *Metrics) RecordTask(taskType, status string) {
	m.TaskCounter.WithLabelValues(taskType, status).Inc()
}
