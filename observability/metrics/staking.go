package metrics

import (
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type StakingMetrics struct {
	stakes       *prometheus.CounterVec
	declines     *prometheus.CounterVec
	claims       *prometheus.CounterVec
	payouts      *prometheus.CounterVec
	activeStakes prometheus.Gauge
	reserve      prometheus.Gauge
	hops         *prometheus.CounterVec
	hopLatency   *prometheus.HistogramVec
	effectErrors *prometheus.CounterVec
}

var (
	stakingOnce     sync.Once
	stakingRegistry *StakingMetrics
)

func Staking() *StakingMetrics {
	stakingOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			stakes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_items_staked_total",
				Help: "Count of accepted stakes by lock option in days.",
			}, []string{"lock"}),
			declines: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_stakes_declined_total",
				Help: "Count of declined stake notifications by reason.",
			}, []string{"reason"}),
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_claims_total",
				Help: "Count of settled claims by outcome (rolled or released).",
			}, []string{"outcome"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_payout_units_total",
				Help: "Reward units paid out by component (common or boost).",
			}, []string{"component"}),
			activeStakes: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_active_items",
				Help: "Number of items currently held in custody.",
			}),
			reserve: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_reward_reserve",
				Help: "Reward token reserve tracked by the master.",
			}),
			hops: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_router_hops_total",
				Help: "Messages processed by actor kind and exit code.",
			}, []string{"actor", "exit_code"}),
			hopLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "staking_router_hop_seconds",
				Help:    "Time spent processing one message per actor kind.",
				Buckets: prometheus.DefBuckets,
			}, []string{"actor"}),
			effectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_effect_failures_total",
				Help: "External effects that failed after commit by kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			stakingRegistry.stakes,
			stakingRegistry.declines,
			stakingRegistry.claims,
			stakingRegistry.payouts,
			stakingRegistry.activeStakes,
			stakingRegistry.reserve,
			stakingRegistry.hops,
			stakingRegistry.hopLatency,
			stakingRegistry.effectErrors,
		)
	})
	return stakingRegistry
}

func (m *StakingMetrics) ObserveStake(lockDays uint8) {
	if m == nil {
		return
	}
	m.stakes.WithLabelValues(strconv.Itoa(int(lockDays))).Inc()
	m.activeStakes.Inc()
}

func (m *StakingMetrics) ObserveDecline(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.declines.WithLabelValues(reason).Inc()
}

func (m *StakingMetrics) ObserveClaim(released bool, common, boost *big.Int) {
	if m == nil {
		return
	}
	outcome := "rolled"
	if released {
		outcome = "released"
		m.activeStakes.Dec()
	}
	m.claims.WithLabelValues(outcome).Inc()
	m.payouts.WithLabelValues("common").Add(toFloat(common))
	m.payouts.WithLabelValues("boost").Add(toFloat(boost))
}

func (m *StakingMetrics) SetReserve(amount *big.Int) {
	if m == nil {
		return
	}
	m.reserve.Set(toFloat(amount))
}

func (m *StakingMetrics) ObserveHop(actor string, exitCode int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if actor == "" {
		actor = "unknown"
	}
	m.hops.WithLabelValues(actor, strconv.Itoa(exitCode)).Inc()
	m.hopLatency.WithLabelValues(actor).Observe(elapsed.Seconds())
}

func (m *StakingMetrics) IncEffectFailure(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.effectErrors.WithLabelValues(kind).Inc()
}

func toFloat(v *big.Int) float64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
