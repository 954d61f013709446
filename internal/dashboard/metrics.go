package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. Registered once on
// the default registry and updated from the aggregator's refresh cycle.
type Metrics struct {
	TradesOpened    prometheus.Counter
	TradesClosed    *prometheus.CounterVec
	OrdersRejected  prometheus.Counter
	SignalsBlocked  *prometheus.CounterVec
	ActivePositions prometheus.Gauge
	DailyPnL        prometheus.Gauge
	NetDelta        prometheus.Gauge
	NetVega         prometheus.Gauge
	TickAge         prometheus.Gauge
	CacheAPIErrors  prometheus.Gauge
}

// NewMetrics registers the collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		TradesOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scalper_trades_opened_total",
			Help: "Trades opened this process lifetime.",
		}),
		TradesClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scalper_trades_closed_total",
			Help: "Trades closed, by exit reason.",
		}, []string{"reason"}),
		OrdersRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scalper_orders_rejected_total",
			Help: "Orders the broker rejected.",
		}),
		SignalsBlocked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scalper_signals_blocked_total",
			Help: "Entry signals blocked, by gate.",
		}, []string{"gate"}),
		ActivePositions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scalper_active_positions",
			Help: "Currently open trades.",
		}),
		DailyPnL: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scalper_daily_pnl",
			Help: "Realized pnl for the session.",
		}),
		NetDelta: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scalper_portfolio_net_delta",
			Help: "Aggregate delta exposure of open trades.",
		}),
		NetVega: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scalper_portfolio_net_vega",
			Help: "Aggregate vega exposure of open trades.",
		}),
		TickAge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scalper_tick_age_seconds",
			Help: "Age of the latest underlying tick.",
		}),
		CacheAPIErrors: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scalper_greeks_api_errors_total",
			Help: "Greeks refresh failures observed by the cache.",
		}),
	}
}

// Observe updates the gauges from a dashboard snapshot.
func (m *Metrics) Observe(snap Snapshot, cacheAPIErrors int64) {
	m.ActivePositions.Set(float64(len(snap.Positions)))
	m.DailyPnL.Set(snap.Portfolio.RiskState.DailyPnL)
	m.NetDelta.Set(snap.Portfolio.Greeks.NetDelta)
	m.NetVega.Set(snap.Portfolio.Greeks.NetVega)
	m.TickAge.Set(snap.Market.TickAge)
	m.CacheAPIErrors.Set(float64(cacheAPIErrors))
}
