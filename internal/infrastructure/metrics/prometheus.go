package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhj/kis_autotrader/internal/domain"
)

const namespace = "kis_trader"

// Prometheus implements the usecase metrics hooks and the broker observer
// on a private registry.
type Prometheus struct {
	registry *prometheus.Registry

	ordersSubmitted *prometheus.CounterVec
	orderOutcomes   *prometheus.CounterVec
	ledgerShares    *prometheus.CounterVec
	riskExits       *prometheus.CounterVec
	cycleSeconds    prometheus.Histogram
	halted          prometheus.Gauge

	brokerRequests *prometheus.CounterVec
	brokerLatency  *prometheus.HistogramVec
	fallback       prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		ordersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Orders sent to the broker by side and urgency.",
		}, []string{"side", "urgency"}),
		orderOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_outcomes_total",
			Help:      "Terminal order outcomes.",
		}, []string{"outcome"}),
		ledgerShares: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_settled_shares_total",
			Help:      "Shares recorded in the position ledger.",
		}, []string{"side"}),
		riskExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_exits_total",
			Help:      "Exit orders placed by the risk guard.",
		}, []string{"kind"}),
		cycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Trading cycle wall time.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		halted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trading_halted",
			Help:      "1 when new entries are halted for the day.",
		}),
		brokerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_requests_total",
			Help:      "Broker API calls by endpoint and result.",
		}, []string{"endpoint", "result"}),
		brokerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broker_request_seconds",
			Help:      "Broker API latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		fallback: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_fallback_mode",
			Help:      "1 while the broker client is in fallback mode.",
		}),
	}
	p.registry.MustRegister(
		p.ordersSubmitted, p.orderOutcomes, p.ledgerShares, p.riskExits,
		p.cycleSeconds, p.halted,
		p.brokerRequests, p.brokerLatency, p.fallback,
	)
	return p
}

func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) OrderSubmitted(side domain.Side, urgency domain.Urgency) {
	p.ordersSubmitted.WithLabelValues(string(side), urgency.String()).Inc()
}

func (p *Prometheus) OrderFinished(outcome string) {
	p.orderOutcomes.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) LedgerSettled(side domain.Side, qty int64) {
	p.ledgerShares.WithLabelValues(string(side)).Add(float64(qty))
}

func (p *Prometheus) RiskExit(kind string) {
	p.riskExits.WithLabelValues(kind).Inc()
}

func (p *Prometheus) CycleCompleted(d time.Duration) {
	p.cycleSeconds.Observe(d.Seconds())
}

func (p *Prometheus) TradingHalted(halted bool) {
	p.halted.Set(boolGauge(halted))
}

func (p *Prometheus) ObserveRequest(endpoint string, elapsed time.Duration, err error) {
	result := "ok"
	switch {
	case err == nil:
	case domain.HasCode(err, domain.CodeRejected):
		result = "rejected"
	default:
		result = "error"
	}
	p.brokerRequests.WithLabelValues(endpoint, result).Inc()
	p.brokerLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (p *Prometheus) FallbackChanged(active bool) {
	p.fallback.Set(boolGauge(active))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
