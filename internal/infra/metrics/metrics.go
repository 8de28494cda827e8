package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tick metrics
	TicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_engine_ticks_total",
		Help: "Total number of engine ticks by outcome (ok, degraded, skipped, failed)",
	}, []string{"outcome"})
	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sla_engine_tick_duration_seconds",
		Help:    "Duration of completed engine ticks",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	TickDeferredItems = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sla_engine_tick_deferred_items_total",
		Help: "Total number of candidates left for the next tick after the time budget ran out",
	})

	// Reminder metrics
	RemindersSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_engine_reminders_sent_total",
		Help: "Total number of reminders dispatched",
	}, []string{"level"})
	RemindersFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_engine_reminders_failed_total",
		Help: "Total number of reminders whose dispatch failed and will be retried",
	}, []string{"level"})

	// Escalation metrics
	EscalationsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_engine_escalations_created_total",
		Help: "Total number of escalation records created",
	}, []string{"trigger_type"})
	EscalationsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_engine_escalations_failed_total",
		Help: "Total number of escalations that failed and will be retried",
	}, []string{"trigger_type"})
	EscalationsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_engine_escalations_skipped_total",
		Help: "Total number of escalation candidates skipped because no recipient could be resolved",
	}, []string{"trigger_type"})

	// Notification metrics
	NotificationsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_engine_notifications_created_total",
		Help: "Total number of persisted notifications",
	}, []string{"type", "priority"})
	NotificationsSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_engine_notifications_suppressed_total",
		Help: "Total number of notifications dropped by Do-Not-Disturb",
	}, []string{"type"})

	// Outbound channel metrics
	OutboundSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_engine_outbound_send_success_total",
		Help: "Total number of successful outbound channel sends",
	}, []string{"channel"})
	OutboundSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_engine_outbound_send_failure_total",
		Help: "Total number of failed outbound channel sends, including open-breaker rejections",
	}, []string{"channel"})
	OutboundBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sla_engine_outbound_breaker_state",
		Help: "Circuit breaker state per channel (0 closed, 1 half-open, 2 open)",
	}, []string{"channel"})

	// Timer metrics
	TimerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_engine_timer_transitions_total",
		Help: "Total number of timer session transitions by action and result",
	}, []string{"action", "result"})
)

func init() {
	prometheus.MustRegister(TicksTotal)
	prometheus.MustRegister(TickDuration)
	prometheus.MustRegister(TickDeferredItems)
	prometheus.MustRegister(RemindersSent)
	prometheus.MustRegister(RemindersFailed)
	prometheus.MustRegister(EscalationsCreated)
	prometheus.MustRegister(EscalationsFailed)
	prometheus.MustRegister(EscalationsSkipped)
	prometheus.MustRegister(NotificationsCreated)
	prometheus.MustRegister(NotificationsSuppressed)
	prometheus.MustRegister(OutboundSendSuccess)
	prometheus.MustRegister(OutboundSendFailure)
	prometheus.MustRegister(OutboundBreakerState)
	prometheus.MustRegister(TimerTransitions)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
