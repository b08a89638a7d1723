// Package metrics holds the Prometheus collectors for the engine. They are
// registered on the default registry and served by the HTTP server.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trailguard"

// ============ Signals ============

var SignalsReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "received_total",
		Help:      "Signals received, by validation result",
	},
	[]string{"result"},
)

// RiskDecisions counts per-connection signal outcomes; code is "allowed" or
// the violation code.
var RiskDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "risk_decisions_total",
		Help:      "Per-connection risk validation results",
	},
	[]string{"code"},
)

// ============ Instructions ============

var InstructionsCreated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "instructions",
		Name:      "created_total",
		Help:      "Instructions queued for the actuator",
	},
	[]string{"action"},
)

var InstructionsResolved = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "instructions",
		Name:      "resolved_total",
		Help:      "Instructions reported back by the actuator",
	},
	[]string{"action", "status"},
)

var InstructionsReaped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "instructions",
		Name:      "reaped_total",
		Help:      "Terminal instructions deleted by the retention sweep",
	},
)

// ============ Trailing ============

var TrailingEvaluations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trailing",
		Name:      "evaluations_total",
		Help:      "Trailing evaluations by configured mode and final stage",
	},
	[]string{"mode", "stage"},
)

var TPHits = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trades",
		Name:      "tp_hits_total",
		Help:      "Take-profit levels reached",
	},
	[]string{"level"},
)

// ============ Monitor ============

var MonitorPassDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "pass_duration_seconds",
		Help:      "Wall time of one monitor pass",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
)

var MonitorItemErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "item_errors_total",
		Help:      "Per-item failures inside a monitor sweep",
	},
	[]string{"sweep"},
)

var ConnectionsByQuality = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "connections",
		Name:      "by_quality",
		Help:      "Connections per heartbeat quality band after the last health sweep",
	},
	[]string{"quality"},
)

// ============ Notifications ============

var NotificationsSent = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "events_total",
		Help:      "Notification deliveries by event type and result",
	},
	[]string{"type", "result"},
)

func RecordSignal(result string) {
	SignalsReceived.WithLabelValues(result).Inc()
}

func RecordRiskDecision(code string) {
	if code == "" {
		code = "allowed"
	}
	RiskDecisions.WithLabelValues(code).Inc()
}

func RecordInstruction(action string) {
	InstructionsCreated.WithLabelValues(action).Inc()
}

func RecordResolved(action, status string) {
	InstructionsResolved.WithLabelValues(action, status).Inc()
}

func RecordReaped(n int64) {
	if n > 0 {
		InstructionsReaped.Add(float64(n))
	}
}

func RecordTrailing(mode, stage string) {
	TrailingEvaluations.WithLabelValues(mode, stage).Inc()
}

// RecordTPHit takes the 1-based level.
func RecordTPHit(level int) {
	TPHits.WithLabelValues(strconv.Itoa(level)).Inc()
}

func RecordPass(d time.Duration) {
	MonitorPassDuration.Observe(d.Seconds())
}

func RecordItemError(sweep string) {
	MonitorItemErrors.WithLabelValues(sweep).Inc()
}

func UpdateQuality(counts map[string]int) {
	for q, n := range counts {
		ConnectionsByQuality.WithLabelValues(q).Set(float64(n))
	}
}

func RecordNotification(eventType string, sent bool) {
	result := "sent"
	if !sent {
		result = "failed"
	}
	NotificationsSent.WithLabelValues(eventType, result).Inc()
}
