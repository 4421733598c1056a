// Package metrics holds the Prometheus collectors for billing and HTTP traffic.
package metrics

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics is safe to use as a nil pointer; every observation is then a no-op.
type Metrics struct {
	BillsComputed   *prometheus.CounterVec
	QuoteCache      *prometheus.CounterVec
	Checkouts       *prometheus.CounterVec
	CheckoutAmount  *prometheus.HistogramVec
	PointsEarned    prometheus.Counter
	PointsRedeemed  prometheus.Counter
	Voids           *prometheus.CounterVec
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg, reusing any that are already registered.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		BillsComputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bills_computed_total",
			Help:      "Bill computations by outcome.",
		}, []string{"result"}),
		QuoteCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_cache_total",
			Help:      "Quote cache lookups by outcome.",
		}, []string{"result"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Completed checkouts by store and payment method.",
		}, []string{"store", "payment_method"}),
		CheckoutAmount: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_amount",
			Help:      "Distribution of checkout totals.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"store"}),
		PointsEarned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loyalty_points_earned_total",
			Help:      "Loyalty points credited to customers.",
		}),
		PointsRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loyalty_points_redeemed_total",
			Help:      "Loyalty points redeemed by customers.",
		}),
		Voids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_voided_total",
			Help:      "Voided transactions by store.",
		}, []string{"store"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the server.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"method", "route"}),
	}

	m.BillsComputed = register(reg, m.BillsComputed)
	m.QuoteCache = register(reg, m.QuoteCache)
	m.Checkouts = register(reg, m.Checkouts)
	m.CheckoutAmount = register(reg, m.CheckoutAmount)
	m.PointsEarned = register(reg, m.PointsEarned)
	m.PointsRedeemed = register(reg, m.PointsRedeemed)
	m.Voids = register(reg, m.Voids)
	m.RequestsTotal = register(reg, m.RequestsTotal)
	m.RequestDuration = register(reg, m.RequestDuration)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
	return c
}

func (m *Metrics) ObserveBill(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.BillsComputed.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveQuoteCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.QuoteCache.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveCheckout(storeID string, paymentMethod string, total decimal.Decimal, earned int64, redeemed int64) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(storeID, paymentMethod).Inc()
	m.CheckoutAmount.WithLabelValues(storeID).Observe(total.InexactFloat64())
	m.PointsEarned.Add(float64(earned))
	m.PointsRedeemed.Add(float64(redeemed))
}

func (m *Metrics) ObserveVoid(storeID string) {
	if m == nil {
		return
	}
	m.Voids.WithLabelValues(storeID).Inc()
}

func (m *Metrics) ObserveRequest(method string, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(float64(elapsed) / float64(time.Millisecond))
}
