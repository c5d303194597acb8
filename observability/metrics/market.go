package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type MarketMetrics struct {
	marketsCreated prometheus.Counter
	ticketsSold    prometheus.Counter
	amountStaked   prometheus.Counter
	finalizations  *prometheus.CounterVec
	claimsSettled  prometheus.Counter
	payoutTotal    prometheus.Counter
	feeTotal       prometheus.Counter
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			marketsCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_created_total",
				Help: "Count of initialized prediction markets.",
			}),
			ticketsSold: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_tickets_sold_total",
				Help: "Count of tickets sold across all markets.",
			}),
			amountStaked: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_amount_staked_total",
				Help: "Total value moved into market custody accounts.",
			}),
			finalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_finalized_total",
				Help: "Count of finalized markets by winning side.",
			}, []string{"side"}),
			claimsSettled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_claims_settled_total",
				Help: "Count of settled reward claims.",
			}),
			payoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_payout_total",
				Help: "Total value paid out to claimants.",
			}),
			feeTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_fee_total",
				Help: "Total protocol fees skimmed from winning claims.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.marketsCreated,
			marketRegistry.ticketsSold,
			marketRegistry.amountStaked,
			marketRegistry.finalizations,
			marketRegistry.claimsSettled,
			marketRegistry.payoutTotal,
			marketRegistry.feeTotal,
		)
	})
	return marketRegistry
}

func (m *MarketMetrics) ObserveCreated() {
	if m == nil {
		return
	}
	m.marketsCreated.Inc()
}

func (m *MarketMetrics) ObservePurchase(tickets, amount uint64) {
	if m == nil {
		return
	}
	m.ticketsSold.Add(float64(tickets))
	m.amountStaked.Add(float64(amount))
}

func (m *MarketMetrics) ObserveFinalized(side string) {
	if m == nil {
		return
	}
	m.finalizations.WithLabelValues(side).Inc()
}

func (m *MarketMetrics) ObserveClaim(payout, fee uint64) {
	if m == nil {
		return
	}
	m.claimsSettled.Inc()
	m.payoutTotal.Add(float64(payout))
	m.feeTotal.Add(float64(fee))
}
