// Package metrics exposes Prometheus instrumentation for the market engines.
package metrics

import (
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Market holds the collectors updated by the auction, sale and settlement
// engines. A nil *Market is valid and records nothing.
type Market struct {
	bids          *prometheus.CounterVec
	auctionsEnded *prometheus.CounterVec
	purchases     prometheus.Counter
	salesEnded    *prometheus.CounterVec
	settled       *prometheus.CounterVec
	roundingDust  prometheus.Counter
	lockWait      prometheus.Histogram
	rollbacks     *prometheus.CounterVec
}

// NewMarket builds the collectors and registers them with reg. A nil reg
// skips registration, which keeps tests free of global state.
func NewMarket(reg prometheus.Registerer) *Market {
	m := &Market{
		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auctionhouse_bids_total",
			Help: "Bids processed by result (accepted or the rejection code).",
		}, []string{"result"}),
		auctionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auctionhouse_auctions_ended_total",
			Help: "Auctions ended by outcome.",
		}, []string{"outcome"}),
		purchases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auctionhouse_sale_purchases_total",
			Help: "Accepted fixed-price purchases.",
		}),
		salesEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auctionhouse_sales_ended_total",
			Help: "Sales ended by outcome.",
		}, []string{"outcome"}),
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auctionhouse_settled_amount_total",
			Help: "Settled value by recipient class, in the smallest currency unit.",
		}, []string{"recipient"}),
		roundingDust: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auctionhouse_rounding_dust_total",
			Help: "Fee remainder lost when halving fees between multisig and staking.",
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auctionhouse_lock_wait_seconds",
			Help:    "Time spent waiting for a consignment lock.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auctionhouse_rollbacks_total",
			Help: "Operations undone after a failing side effect, by effect.",
		}, []string{"effect"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.bids,
			m.auctionsEnded,
			m.purchases,
			m.salesEnded,
			m.settled,
			m.roundingDust,
			m.lockWait,
			m.rollbacks,
		)
	}
	return m
}

func (m *Market) ObserveBid(result string) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.bids.WithLabelValues(result).Inc()
}

func (m *Market) ObserveAuctionEnded(outcome string) {
	if m == nil {
		return
	}
	m.auctionsEnded.WithLabelValues(outcome).Inc()
}

func (m *Market) ObservePurchase() {
	if m == nil {
		return
	}
	m.purchases.Inc()
}

func (m *Market) ObserveSaleEnded(outcome string) {
	if m == nil {
		return
	}
	m.salesEnded.WithLabelValues(outcome).Inc()
}

// ObserveSettled adds amount to the running total for a recipient class
// (royalty, multisig, staking, seller).
func (m *Market) ObserveSettled(recipient string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.settled.WithLabelValues(recipient).Add(toFloat(amount))
}

func (m *Market) ObserveRoundingDust(dust *big.Int) {
	if m == nil || dust == nil || dust.Sign() <= 0 {
		return
	}
	m.roundingDust.Add(toFloat(dust))
}

func (m *Market) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *Market) ObserveRollback(effect string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(effect).Inc()
}

func toFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
