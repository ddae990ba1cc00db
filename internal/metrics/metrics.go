// Package metrics holds the Prometheus collectors of the service. Every
// method is safe on a nil *Metrics so components can run without them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stocky"

// Reward outcomes.
const (
	RewardCreated   = "created"
	RewardDuplicate = "duplicate"
	RewardFailed    = "failed"
)

// Price lookup results.
const (
	PriceHit         = "hit"
	PriceMiss        = "miss"
	PriceStale       = "stale"
	PriceUnavailable = "unavailable"
)

type Metrics struct {
	RewardsTotal        *prometheus.CounterVec
	PriceLookupsTotal   *prometheus.CounterVec
	ActionsTotal        *prometheus.CounterVec
	AdjustmentsTotal    *prometheus.CounterVec
	LedgerImbalances    prometheus.Counter
	HTTPRequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		RewardsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewards_total",
			Help:      "Reward submissions by outcome",
		}, []string{"outcome"}),
		PriceLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_lookups_total",
			Help:      "Latest-price lookups by cache result",
		}, []string{"result"}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corporate_actions_total",
			Help:      "Corporate actions finished, by type and final status",
		}, []string{"type", "status"}),
		AdjustmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corporate_action_adjustments_total",
			Help:      "Reward events adjusted by corporate actions",
		}, []string{"type"}),
		LedgerImbalances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_imbalances_total",
			Help:      "Transactions rejected because they did not balance",
		}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.RewardsTotal,
		m.PriceLookupsTotal,
		m.ActionsTotal,
		m.AdjustmentsTotal,
		m.LedgerImbalances,
		m.HTTPRequestDuration,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) Reward(outcome string) {
	if m == nil {
		return
	}
	m.RewardsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PriceLookup(result string) {
	if m == nil {
		return
	}
	m.PriceLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Action(actionType, status string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(actionType, status).Inc()
}

func (m *Metrics) Adjusted(actionType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.AdjustmentsTotal.WithLabelValues(actionType).Add(float64(n))
}

func (m *Metrics) Imbalance() {
	if m == nil {
		return
	}
	m.LedgerImbalances.Inc()
}

// Middleware records the duration of every request by matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the collectors registered with g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
