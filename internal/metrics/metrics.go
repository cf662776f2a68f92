// Package metrics declares the Prometheus collectors this service exposes,
// grouped by the component that owns each signal: the Adaptive Dispatcher's
// scoring weights and candidate selections, the Tiered Fallback Executor's
// per-tier outcomes, the Health/Failure Ledger's reliability gauges, the
// Validation Critic's patch success rate, the Connectivity Prober's
// reachability checks, the Recovery Engine's action counts, Self-Healing's
// strategy disable/re-enable events, and the WebSocket Tool-Update
// Listener's connection state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatcher (C5)
	DispatcherWeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "toolrund_dispatcher_weight",
			Help: "Current value of each term in the dispatcher's scoring weight vector",
		},
		[]string{"term"}, // historical | performance | context | reliability
	)

	DispatcherSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolrund_dispatcher_selections_total",
			Help: "Total number of candidates selected by the dispatcher",
		},
		[]string{"capability", "tool_id"},
	)

	DispatcherScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolrund_dispatcher_score",
			Help:    "Composite score assigned to the winning candidate",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 .. 1.0
		},
		[]string{"capability"},
	)

	// Tiered Fallback Executor (C6)
	ExecutorCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolrund_executor_calls_total",
			Help: "Total tool calls dispatched through the tiered fallback executor",
		},
		[]string{"tier", "outcome"}, // tier: primary|secondary|fallback|emergency
	)

	ExecutorCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolrund_executor_call_duration_seconds",
			Help:    "Tool call duration in seconds, by tier",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"tier"},
	)

	// Health/Failure Ledger (C4)
	LedgerReliability = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "toolrund_ledger_reliability",
			Help: "Current reliability score in [0,1] for each tool_id",
		},
		[]string{"tool_id"},
	)

	LedgerToolOffline = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "toolrund_ledger_tool_offline",
			Help: "Whether tool_id is currently marked offline (1=offline, 0=available)",
		},
		[]string{"tool_id"},
	)

	// Error Classifier (C7)
	ClassifierEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolrund_classifier_events_total",
			Help: "Total error events classified, by kind and severity",
		},
		[]string{"kind", "severity"},
	)

	// Recovery Engine (C8)
	RecoveryActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolrund_recovery_actions_total",
			Help: "Total recovery actions taken, by action and outcome",
		},
		[]string{"action", "outcome"}, // action: registered recovery action name (e.g. retry, mark-offline-briefly, emergency-restart)
	)

	// Self-Healing Rules (C9)
	SelfHealStrategyDisabled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolrund_selfheal_strategy_disabled_total",
			Help: "Total number of strategies auto-disabled by self-healing rules",
		},
		[]string{"capability", "strategy"},
	)

	SelfHealStrategyReenabled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolrund_selfheal_strategy_reenabled_total",
			Help: "Total number of strategies auto-re-enabled by self-healing rules",
		},
		[]string{"capability", "strategy"},
	)

	// Validation Critic (C10)
	CriticPatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolrund_critic_patches_total",
			Help: "Total correction patches proposed, by type and whether auto-applied",
		},
		[]string{"patch_type", "auto_applied"},
	)

	CriticPatchOutcome = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolrund_critic_patch_outcome_total",
			Help: "Outcome of a re-validated call after a correction patch was applied",
		},
		[]string{"patch_type", "outcome"},
	)

	// Connectivity Prober (C11)
	ProberChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolrund_prober_checks_total",
			Help: "Total connectivity probes performed, by tool_id and result",
		},
		[]string{"tool_id", "result"}, // result: reachable|unreachable
	)

	ProberCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolrund_prober_check_duration_seconds",
			Help:    "Connectivity probe round-trip duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
		[]string{"tool_id"},
	)

	// WebSocket Tool-Update Listener (C12)
	WSUpdateConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "toolrund_wsupdate_connected",
			Help: "Whether the tool-update WebSocket listener currently holds a live connection (1=connected, 0=disconnected)",
		},
	)

	WSUpdateReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "toolrund_wsupdate_reconnects_total",
			Help: "Total number of WebSocket reconnect attempts",
		},
	)

	WSUpdateFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolrund_wsupdate_frames_total",
			Help: "Total number of tool-update frames received, by recognized frame type",
		},
		[]string{"frame_type"},
	)

	// MCP client transports
	MCPClientCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolrund_mcpclient_calls_total",
			Help: "Total calls issued to MCP tool servers, by transport and outcome",
		},
		[]string{"transport", "outcome"}, // transport: http|grpc|stdio
	)

	MCPClientCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolrund_mcpclient_call_duration_seconds",
			Help:    "MCP tool call duration in seconds, by transport",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"transport"},
	)

	// LLM client
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolrund_llm_requests_total",
			Help: "Total LLM generation requests, by provider and status",
		},
		[]string{"provider", "model", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolrund_llm_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"provider", "model"},
	)
)
