// Package observability instruments the runtime core with Prometheus
// counters and histograms. This is ambient instrumentation, not a
// user-facing feature: there is no bundled HTTP handler here, just the
// metric objects a daemon wires to its own /metrics endpoint.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics centralizes the runtime's Prometheus instrumentation: the LLM
// driver, the tool dispatcher, and the browser manager.
type Metrics struct {
	// DriverCalls counts LLM driver calls by vendor and outcome.
	// Labels: vendor (anthropic|openai), outcome (success|error|rate_limited|overloaded)
	DriverCalls *prometheus.CounterVec

	// DriverCallDuration measures LLM driver call latency in seconds.
	// Labels: vendor
	DriverCallDuration *prometheus.HistogramVec

	// ToolCalls counts tool dispatcher invocations by tool and outcome.
	// Labels: tool, outcome (success|error|timeout)
	ToolCalls *prometheus.CounterVec

	// BrowserSessionsActive is a gauge of currently running browser sessions.
	BrowserSessionsActive prometheus.Gauge
}

// NewMetrics creates and registers the runtime's Prometheus metrics. Call
// once at process startup.
func NewMetrics() *Metrics {
	return &Metrics{
		DriverCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openfang_driver_calls_total",
				Help: "Total number of LLM driver calls by vendor and outcome",
			},
			[]string{"vendor", "outcome"},
		),

		DriverCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "openfang_driver_call_seconds",
				Help:    "Duration of LLM driver calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"vendor"},
		),

		ToolCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openfang_tool_calls_total",
				Help: "Total number of tool dispatcher invocations by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),

		BrowserSessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "openfang_browser_sessions_active",
				Help: "Current number of running browser manager sessions",
			},
		),
	}
}

// RecordDriverCall records one LLM driver call's outcome and latency.
func (m *Metrics) RecordDriverCall(vendor, outcome string, durationSeconds float64) {
	m.DriverCalls.WithLabelValues(vendor, outcome).Inc()
	m.DriverCallDuration.WithLabelValues(vendor).Observe(durationSeconds)
}

// RecordToolCall records one tool dispatcher invocation's outcome.
func (m *Metrics) RecordToolCall(tool, outcome string) {
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

// SetBrowserSessionsActive sets the current browser session gauge.
func (m *Metrics) SetBrowserSessionsActive(count int) {
	m.BrowserSessionsActive.Set(float64(count))
}
