package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_orders_submitted_total",
			Help: "Total number of orders accepted by the gateway (by strategy).",
		},
		[]string{"strategy"},
	)

	OrdersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_orders_rejected_total",
			Help: "Orders refused before or by the gateway (by reason).",
		},
		[]string{"reason"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradecore_positions_open",
			Help: "Current number of open positions.",
		},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradecore_equity",
			Help: "Current account equity (paper or live).",
		},
	)

	DrawdownGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradecore_drawdown_ratio",
			Help: "Drawdown from session peak equity as a fraction.",
		},
	)

	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_decisions_total",
			Help: "Decisions produced per strategy and action.",
		},
		[]string{"strategy", "action"},
	)

	CycleFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_cycle_failures_total",
			Help: "Failed trading cycle steps by error kind.",
		},
		[]string{"kind"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tradecore_cycle_duration_seconds",
			Help:    "Wall time of one trading cycle.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	RiskHalts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_risk_halts_total",
			Help: "Trading halts raised by the risk manager (by reason).",
		},
		[]string{"reason"},
	)

	NotificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradecore_notifications_dropped_total",
			Help: "Notifications discarded because the queue was full or sending failed.",
		},
	)

	TradeLogFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_tradelog_failures_total",
			Help: "Trade log records a sink failed to append (by sink).",
		},
		[]string{"sink"},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersSubmitted, OrdersRejected, PositionsOpen, EquityGauge, DrawdownGauge,
		Decisions, CycleFailures, CycleDuration, RiskHalts, NotificationsDropped, TradeLogFailures,
	)
}
