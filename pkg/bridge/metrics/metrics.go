// Package metrics exposes the bridge's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SessionsStarted   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsFailed    prometheus.Counter
	ActiveSessions    prometheus.Gauge
	SessionDuration   prometheus.Histogram

	// Frames are labeled by relay direction: inbound (caller to agent) or
	// outbound (agent to caller).
	FramesRelayed prometheus.CounterVec
	FrameErrors   prometheus.CounterVec

	FunctionCalls    prometheus.CounterVec
	FunctionDuration prometheus.Histogram

	TranscriptWrites       prometheus.Counter
	TranscriptWriteErrors  prometheus.Counter
	AgentHandshakeFailures prometheus.Counter
}

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebridge_sessions_started_total",
			Help: "Call sessions accepted on the media endpoint.",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebridge_sessions_completed_total",
			Help: "Call sessions that ended normally.",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebridge_sessions_failed_total",
			Help: "Call sessions that ended with a failure.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voicebridge_active_sessions",
			Help: "Call sessions currently relaying audio.",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicebridge_session_duration_seconds",
			Help:    "Call session length from stream start to teardown.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		FramesRelayed: *factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebridge_frames_relayed_total",
			Help: "Audio frames relayed, by direction.",
		}, []string{"direction"}),
		FrameErrors: *factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebridge_frame_errors_total",
			Help: "Audio frames dropped as malformed, by direction.",
		}, []string{"direction"}),
		FunctionCalls: *factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebridge_function_calls_total",
			Help: "Agent function invocations, by function and outcome.",
		}, []string{"function", "outcome"}),
		FunctionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicebridge_function_duration_seconds",
			Help:    "Function dispatch latency.",
			Buckets: prometheus.DefBuckets,
		}),
		TranscriptWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebridge_transcript_writes_total",
			Help: "Transcript fragments persisted.",
		}),
		TranscriptWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebridge_transcript_write_errors_total",
			Help: "Transcript persistence failures (logged, never fatal).",
		}),
		AgentHandshakeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebridge_agent_handshake_failures_total",
			Help: "Speech-agent configuration handshakes that did not reach active.",
		}),
	}
}
