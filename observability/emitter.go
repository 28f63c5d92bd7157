package observability

import (
	"log/slog"
	"math/big"

	"kitchain/core/events"
	"kitchain/observability/metrics"
)

// Emitter turns protocol events into structured log lines and prometheus
// metrics. It is the default events.Emitter a node wires into the state.
type Emitter struct {
	log     *slog.Logger
	metrics *metrics.ProtocolMetrics
}

// NewEmitter builds an emitter on the given logger; a nil logger uses the
// process default.
func NewEmitter(log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{log: log, metrics: metrics.Protocol()}
}

// Emit implements events.Emitter.
func (e *Emitter) Emit(ev events.Event) {
	switch ev := ev.(type) {
	case events.BurrowCreated:
		e.log.Info("burrow created", "type", ev.EventType(), "burrow", uint64(ev.ID), "owner", ev.Owner.String(), "collateral", ev.Collateral.String())
	case events.BurrowDeactivated:
		e.log.Info("burrow deactivated", "type", ev.EventType(), "burrow", uint64(ev.ID), "returned", ev.Returned.String())
	case events.SliceQueued:
		e.log.Info("slice queued", "type", ev.EventType(), "burrow", uint64(ev.Burrow), "tez", ev.Tez.String(), "reward", ev.Reward.String())
	case events.SliceCancelled:
		e.log.Info("slice cancelled", "type", ev.EventType(), "burrow", uint64(ev.Burrow), "tez", ev.Tez.String())
	case events.LotOpened:
		e.metrics.IncLotOpened()
		e.log.Info("lot opened", "type", ev.EventType(), "tez", ev.Tez.String(), "startKit", ev.StartKit.String())
	case events.BidPlaced:
		e.metrics.IncBidPlaced("liquidation")
		e.log.Info("bid placed", "type", ev.EventType(), "bidder", ev.Bidder.String(), "kit", ev.Kit.String())
	case events.LotSettled:
		e.metrics.IncLotSettled()
		e.log.Info("lot settled", "type", ev.EventType(), "winner", ev.Winner.String(), "soldTez", ev.SoldTez.String(), "kit", ev.Kit.String())
	case events.CycleClosed:
		e.log.Info("cycle closed", "type", ev.EventType(), "cycle", ev.Cycle, "winner", ev.Winner.String(), "bid", ev.Bid.String())
	case events.DelegateElected:
		e.log.Info("delegate elected", "type", ev.EventType(), "cycle", ev.Cycle, "delegate", ev.Delegate.String())
	case events.Touched:
		e.metrics.ObserveTouch(approx(ev.Reward), ev.SlicesDrained)
		e.log.Debug("touched", "type", ev.EventType(), "now", ev.Now, "reward", ev.Reward.String(), "drained", ev.SlicesDrained)
	default:
		e.log.Info("protocol event", "type", ev.EventType())
	}
}

// approx converts a mukit amount to a float for gauge export; precision loss
// is acceptable here.
func approx(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
