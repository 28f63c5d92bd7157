package core

import (
	"errors"
	"math/big"

	"kitchain/core/events"
	"kitchain/core/types"
	"kitchain/native/burrow"
	"kitchain/native/liquidation"
)

// MarkForLiquidation classifies a liquidation candidate, moves the computed
// slice of collateral into the auction queue, and pays the caller the
// liquidation reward. This is the one burrow-mutating entrypoint exempt from
// the unclaimed-slice guard.
func (s *State) MarkForLiquidation(call types.CallEnv, blk types.BlockEnv, id types.BurrowID) (types.Payment, error) {
	b, err := s.burrowFor(id)
	if err != nil {
		return types.Payment{}, err
	}
	details, err := burrow.ComputeLiquidation(b, s.Params.MintingPrice(), s.Params.LiquidationPrice(), s.cfg)
	if err != nil {
		return types.Payment{}, err
	}

	leaf := s.Auctions.QueueSlice(liquidation.Slice{
		Burrow:               id,
		Tez:                  details.SliceTez,
		MinKitForUnwarranted: details.MinKitForUnwarranted,
		QueuedAt:             blk.Now,
	}, b.Youngest)
	b.Youngest = leaf
	if b.Oldest == liquidation.NullPtr {
		b.Oldest = leaf
	}

	spent := new(big.Int).Add(details.Reward, details.SliceTez)
	b.Collateral = new(big.Int).Sub(b.Collateral, spent)
	b.CollateralAtAuction = new(big.Int).Add(b.CollateralAtAuction, details.SliceTez)
	if details.Classification == burrow.Close {
		b.Active = false
	}

	s.emitter.Emit(events.SliceQueued{Burrow: id, Tez: details.SliceTez, Reward: details.Reward})
	return types.NewPayment(call.Sender, details.Reward), nil
}

// CancelLiquidationSlice reverses a still-queued slice and returns its
// collateral to the burrow. It fails once the slice's lot has started, and it
// cannot be used to escape a deserved liquidation: the burrow must be fully
// collateralized with the slice returned. Admin only.
func (s *State) CancelLiquidationSlice(blk types.BlockEnv, leaf liquidation.Ptr, ticket *burrow.PermissionTicket) error {
	if !s.Auctions.Storage.IsLeaf(leaf) {
		return liquidation.ErrUnknownSlice
	}
	if s.Auctions.Storage.RootOf(leaf) != s.Auctions.Queue {
		return liquidation.ErrSliceNotQueued
	}
	sl := *s.Auctions.Storage.SliceOf(leaf)
	b, err := s.burrowFor(sl.Burrow)
	if err != nil {
		return err
	}

	restored := *b
	restored.Collateral = new(big.Int).Add(b.Collateral, sl.Tez)
	if restored.IsOverburrowed(s.Params.MintingPrice(), s.cfg) {
		return ErrStillOverburrowed
	}
	if err := s.authorize(b, sl.Burrow, blk, ticket, burrow.RightAdmin, false); err != nil {
		return err
	}

	slice, _, _, err := s.Auctions.CancelSlice(leaf)
	if err != nil {
		return err
	}
	s.removeSliceFromBurrow(b, leaf, slice)
	b.Collateral = new(big.Int).Add(b.Collateral, slice.Tez)
	s.emitter.Emit(events.SliceCancelled{Burrow: slice.Burrow, Tez: slice.Tez})
	return nil
}

// TouchLiquidationSlice drains one slice of a completed lot and settles its
// share of the winning bid against the owning burrow.
func (s *State) TouchLiquidationSlice(blk types.BlockEnv, leaf liquidation.Ptr) error {
	drained, err := s.Auctions.DrainSlice(leaf)
	if err != nil {
		return err
	}
	s.settleDrained(leaf, drained)
	return nil
}

// TouchLiquidationSlices drains an explicit list of pointers. Unknown
// pointers fail the call; slices whose lot has not completed are skipped
// without error.
func (s *State) TouchLiquidationSlices(blk types.BlockEnv, leaves []liquidation.Ptr) error {
	for _, leaf := range leaves {
		if err := s.TouchLiquidationSlice(blk, leaf); err != nil {
			if errors.Is(err, liquidation.ErrSliceNotReady) {
				continue
			}
			return err
		}
	}
	return nil
}

// settleDrained applies the monetary outcome of one drained slice: the
// slice's pro-rata share of the winning bid repays the burrow's debt, with a
// burned penalty when the proceeds prove the liquidation warranted.
func (s *State) settleDrained(leaf liquidation.Ptr, drained *liquidation.Drained) {
	slice := drained.Slice
	outcome := drained.Outcome

	repay := new(big.Int).Mul(slice.Tez, outcome.WinningBid)
	repay.Quo(repay, outcome.SoldTez)

	penalty := big.NewInt(0)
	if repay.Cmp(slice.MinKitForUnwarranted) < 0 {
		penalty = new(big.Int).Mul(repay, new(big.Int).SetUint64(s.cfg.LiquidationPenaltyBps))
		penalty.Quo(penalty, big.NewInt(10_000))
	}
	net := new(big.Int).Sub(repay, penalty)

	if b, ok := s.Burrows[slice.Burrow]; ok {
		applied := net
		if applied.Cmp(b.Outstanding) > 0 {
			applied = new(big.Int).Set(b.Outstanding)
		}
		b.Outstanding = new(big.Int).Sub(b.Outstanding, applied)
		s.burnKitSupply(applied, new(big.Int).Add(applied, penalty))
		s.removeSliceFromBurrow(b, leaf, slice)
	}
}

// LiqPlaceBid bids kit on the open liquidation lot.
func (s *State) LiqPlaceBid(call types.CallEnv, blk types.BlockEnv, kit *big.Int) (*liquidation.BidTicket, error) {
	ticket, err := s.Auctions.PlaceBid(blk.Now, s.cfg, call.Sender, kit)
	if err != nil {
		return nil, err
	}
	s.emitter.Emit(events.BidPlaced{Bidder: call.Sender, Kit: kit})
	return ticket, nil
}

// LiqClaimWin exchanges a winning bid ticket for the lot's collateral.
func (s *State) LiqClaimWin(call types.CallEnv, ticket *liquidation.BidTicket) (types.Payment, error) {
	payout, err := s.Auctions.ClaimWin(ticket)
	if err != nil {
		return types.Payment{}, err
	}
	return types.NewPayment(call.Sender, payout), nil
}

// LiqReclaimBid refunds a losing bid ticket's kit.
func (s *State) LiqReclaimBid(ticket *liquidation.BidTicket) (*big.Int, error) {
	return s.Auctions.ReclaimBid(ticket)
}
