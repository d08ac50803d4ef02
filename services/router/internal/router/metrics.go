package router

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics covers the router, the in-process book, the oracle adapter and
// the tier cache. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Orders          *prometheus.CounterVec
	OrderDuration   *prometheus.HistogramVec
	FeesCollected   *prometheus.CounterVec
	Settlements     *prometheus.CounterVec
	SweepClaimed    prometheus.Counter
	OracleFailures  *prometheus.CounterVec
	BookOrders      *prometheus.HistogramVec
	BookDepth       *prometheus.GaugeVec
	CacheRefreshDur prometheus.Histogram
	CacheSize       prometheus.Gauge
	CacheErrors     prometheus.Counter
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_orders_total",
				Help: "Orders placed through the router.",
			},
			[]string{"fee_type", "status"},
		),
		OrderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "router_order_duration_seconds",
				Help:    "Order placement duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"fee_type"},
		),
		FeesCollected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_fee_collected_total",
				Help: "Fee amounts collected in base units.",
			},
			[]string{"kind", "coin"},
		),
		Settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_unsettled_settlements_total",
				Help: "Unsettled fee settlements by result.",
			},
			[]string{"result"},
		),
		SweepClaimed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "router_sweep_claimed_total",
				Help: "Unsettled fees claimed by sweeps.",
			},
		),
		OracleFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_oracle_failures_total",
				Help: "Oracle pricing failures by reason.",
			},
			[]string{"reason"},
		),
		BookOrders: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "book_order_duration_seconds",
				Help:    "Matching duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pool_id", "status"},
		),
		BookDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "book_depth",
				Help: "Resting orders per pool side.",
			},
			[]string{"pool_id", "side"},
		),
		CacheRefreshDur: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tier_cache_refresh_duration_seconds",
				Help:    "Tier cache refresh duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		CacheSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tier_cache_size",
				Help: "Number of discount tiers cached.",
			},
		),
		CacheErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tier_cache_refresh_errors_total",
				Help: "Failed tier cache refreshes.",
			},
		),
	}

	registry.MustRegister(
		m.Orders, m.OrderDuration, m.FeesCollected, m.Settlements, m.SweepClaimed,
		m.OracleFailures, m.BookOrders, m.BookDepth, m.CacheRefreshDur, m.CacheSize, m.CacheErrors,
	)
	return m
}

func (m *Metrics) orderPlaced(feeType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Orders.WithLabelValues(feeType, status).Inc()
	m.OrderDuration.WithLabelValues(feeType).Observe(duration.Seconds())
}

func (m *Metrics) feeCollected(kind, coin string, amount uint64) {
	if m == nil || amount == 0 {
		return
	}
	m.FeesCollected.WithLabelValues(kind, coin).Add(float64(amount))
}

func (m *Metrics) settlement(result string) {
	if m == nil {
		return
	}
	m.Settlements.WithLabelValues(result).Inc()
}

func (m *Metrics) claimed(count int) {
	if m == nil || count == 0 {
		return
	}
	m.SweepClaimed.Add(float64(count))
}

func (m *Metrics) IncOracleFailure(reason string) {
	if m == nil {
		return
	}
	m.OracleFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveOrder(poolID, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BookOrders.WithLabelValues(poolID, status).Observe(duration.Seconds())
}

func (m *Metrics) SetBookDepth(poolID, side string, depth float64) {
	if m == nil {
		return
	}
	m.BookDepth.WithLabelValues(poolID, side).Set(depth)
}

func (m *Metrics) ObserveRefresh(duration time.Duration) {
	if m == nil {
		return
	}
	m.CacheRefreshDur.Observe(duration.Seconds())
}

func (m *Metrics) SetCacheSize(size int) {
	if m == nil {
		return
	}
	m.CacheSize.Set(float64(size))
}

func (m *Metrics) IncRefreshError() {
	if m == nil {
		return
	}
	m.CacheErrors.Inc()
}
