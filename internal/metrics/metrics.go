// Package metrics exposes Prometheus instrumentation for the vault engine.
package metrics

import (
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
)

// Set groups the vault's Prometheus collectors on a private registry.
type Set struct {
	registry *prometheus.Registry

	EpochsSettled     prometheus.Counter
	DepositRequests   prometheus.Counter
	RedeemRequests    prometheus.Counter
	DepositClaims     prometheus.Counter
	RedeemClaims      prometheus.Counter
	LiquidityOutcomes *prometheus.CounterVec
	FeeAssets         prometheus.Counter

	IdleAssets          prometheus.Gauge
	TotalShares         prometheus.Gauge
	PendingRedeemShares prometheus.Gauge
	LastSettledEpoch    prometheus.Gauge
}

// New creates and registers the vault collectors.
func New() *Set {
	s := &Set{
		registry: prometheus.NewRegistry(),
		EpochsSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epochvault_epochs_settled_total",
			Help: "Number of epochs settled.",
		}),
		DepositRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epochvault_deposit_requests_total",
			Help: "Number of deposit requests accepted.",
		}),
		RedeemRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epochvault_redeem_requests_total",
			Help: "Number of redeem requests accepted.",
		}),
		DepositClaims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epochvault_deposit_claims_total",
			Help: "Number of deposit claims fulfilled.",
		}),
		RedeemClaims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epochvault_redeem_claims_total",
			Help: "Number of redeem claims fulfilled.",
		}),
		LiquidityOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "epochvault_liquidity_outcomes_total",
			Help: "Liquidity sourcing outcomes by result.",
		}, []string{"result"}),
		FeeAssets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epochvault_fee_assets_total",
			Help: "Cumulative fee value collected, in asset units.",
		}),
		IdleAssets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "epochvault_idle_assets",
			Help: "Idle asset balance held by the pool.",
		}),
		TotalShares: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "epochvault_total_shares",
			Help: "Circulating share supply.",
		}),
		PendingRedeemShares: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "epochvault_pending_redeem_shares",
			Help: "Shares burned for not-yet-settled redemption requests.",
		}),
		LastSettledEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "epochvault_last_settled_epoch",
			Help: "Highest settled epoch number.",
		}),
	}
	s.registry.MustRegister(
		s.EpochsSettled, s.DepositRequests, s.RedeemRequests,
		s.DepositClaims, s.RedeemClaims, s.LiquidityOutcomes, s.FeeAssets,
		s.IdleAssets, s.TotalShares, s.PendingRedeemShares, s.LastSettledEpoch,
	)
	return s
}

// Registry exposes the underlying registry for the HTTP handler.
func (s *Set) Registry() *prometheus.Registry {
	if s == nil {
		return prometheus.NewRegistry()
	}
	return s.registry
}

// Float converts an Int into the closest float64 for gauge exports. Precision
// loss is acceptable for monitoring.
func Float(v sdkmath.Int) float64 {
	if v.IsNil() {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.BigInt()).Float64()
	return f
}
