package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type ProtocolMetrics struct {
	entrypointFailures *prometheus.CounterVec
	touchesTotal       prometheus.Counter
	touchReward        prometheus.Gauge
	slicesDrained      prometheus.Counter
	lotsOpened         prometheus.Counter
	lotsSettled        prometheus.Counter
	bidsPlaced         *prometheus.CounterVec
	outstandingKit     prometheus.Gauge
	circulatingKit     prometheus.Gauge
}

var (
	protocolOnce     sync.Once
	protocolRegistry *ProtocolMetrics
)

func Protocol() *ProtocolMetrics {
	protocolOnce.Do(func() {
		protocolRegistry = &ProtocolMetrics{
			entrypointFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "kitchain_entrypoint_failures_total",
				Help: "Count of rejected entrypoint calls by operation.",
			}, []string{"op"}),
			touchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "kitchain_touches_total",
				Help: "Count of effective (non-idempotent) touch calls.",
			}),
			touchReward: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "kitchain_touch_reward_mukit",
				Help: "Kit reward paid by the most recent touch.",
			}),
			slicesDrained: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "kitchain_slices_drained_total",
				Help: "Count of liquidation slices drained and settled.",
			}),
			lotsOpened: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "kitchain_lots_opened_total",
				Help: "Count of liquidation lots opened for bidding.",
			}),
			lotsSettled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "kitchain_lots_settled_total",
				Help: "Count of liquidation lots closed with a winning bid.",
			}),
			bidsPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "kitchain_bids_placed_total",
				Help: "Count of accepted bids by auction subsystem.",
			}, []string{"auction"}),
			outstandingKit: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "kitchain_outstanding_kit_mukit",
				Help: "Outstanding kit owed by all burrows.",
			}),
			circulatingKit: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "kitchain_circulating_kit_mukit",
				Help: "Total kit in existence.",
			}),
		}
		prometheus.MustRegister(
			protocolRegistry.entrypointFailures,
			protocolRegistry.touchesTotal,
			protocolRegistry.touchReward,
			protocolRegistry.slicesDrained,
			protocolRegistry.lotsOpened,
			protocolRegistry.lotsSettled,
			protocolRegistry.bidsPlaced,
			protocolRegistry.outstandingKit,
			protocolRegistry.circulatingKit,
		)
	})
	return protocolRegistry
}

func (m *ProtocolMetrics) IncEntrypointFailure(op string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.entrypointFailures.WithLabelValues(op).Inc()
}

func (m *ProtocolMetrics) ObserveTouch(reward float64, slicesDrained int) {
	if m == nil {
		return
	}
	m.touchesTotal.Inc()
	m.touchReward.Set(reward)
	m.slicesDrained.Add(float64(slicesDrained))
}

func (m *ProtocolMetrics) IncLotOpened() {
	if m == nil {
		return
	}
	m.lotsOpened.Inc()
}

func (m *ProtocolMetrics) IncLotSettled() {
	if m == nil {
		return
	}
	m.lotsSettled.Inc()
}

func (m *ProtocolMetrics) IncBidPlaced(auction string) {
	if m == nil {
		return
	}
	if auction == "" {
		auction = "unknown"
	}
	m.bidsPlaced.WithLabelValues(auction).Inc()
}

func (m *ProtocolMetrics) SetKitSupply(outstanding, circulating float64) {
	if m == nil {
		return
	}
	m.outstandingKit.Set(outstanding)
	m.circulatingKit.Set(circulating)
}
