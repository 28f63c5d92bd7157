package core

import (
	"math/big"

	"kitchain/core/events"
	"kitchain/core/types"
	"kitchain/native/delegate"
)

// CfmmBuyKit swaps the attached tez for kit at the pool rate.
func (s *State) CfmmBuyKit(call types.CallEnv, blk types.BlockEnv, minKitOut *big.Int, deadline int64) (*big.Int, error) {
	s.Cfmm.ObserveRate(blk.Level)
	return s.Cfmm.BuyKit(call.AttachedAmount(), minKitOut, deadline, blk.Now, s.cfg)
}

// CfmmSellKit swaps kit for tez, paid out to the sender.
func (s *State) CfmmSellKit(call types.CallEnv, blk types.BlockEnv, kitIn, minTezOut *big.Int, deadline int64) (types.Payment, error) {
	s.Cfmm.ObserveRate(blk.Level)
	tezOut, err := s.Cfmm.SellKit(kitIn, minTezOut, deadline, blk.Now, s.cfg)
	if err != nil {
		return types.Payment{}, err
	}
	return types.NewPayment(call.Sender, tezOut), nil
}

// CfmmAddLiquidity deposits the attached tez plus matching kit and mints
// liquidity tokens to the sender.
func (s *State) CfmmAddLiquidity(call types.CallEnv, blk types.BlockEnv, maxKitIn, minLiquidity *big.Int, deadline int64) (liquidity, kitUsed *big.Int, err error) {
	s.Cfmm.ObserveRate(blk.Level)
	return s.Cfmm.AddLiquidity(call.AttachedAmount(), maxKitIn, minLiquidity, deadline, blk.Now)
}

// CfmmRemoveLiquidity burns liquidity tokens and pays out both reserve
// shares, the tez side as a payment.
func (s *State) CfmmRemoveLiquidity(call types.CallEnv, blk types.BlockEnv, liquidity, minTezOut, minKitOut *big.Int, deadline int64) (types.Payment, *big.Int, error) {
	s.Cfmm.ObserveRate(blk.Level)
	tezOut, kitOut, err := s.Cfmm.RemoveLiquidity(liquidity, minTezOut, minKitOut, deadline, blk.Now)
	if err != nil {
		return types.Payment{}, nil, err
	}
	return types.NewPayment(call.Sender, tezOut), kitOut, nil
}

// DelegatePlaceBid enters the attached tez into the current delegate-election
// cycle.
func (s *State) DelegatePlaceBid(call types.CallEnv, blk types.BlockEnv) (*delegate.BidTicket, error) {
	return s.Delegation.PlaceBid(call.Sender, call.AttachedAmount())
}

// DelegateClaimWin promotes the winning bidder of a past cycle to the
// protocol's active delegate.
func (s *State) DelegateClaimWin(ticket *delegate.BidTicket) error {
	if err := s.Delegation.ClaimWin(ticket); err != nil {
		return err
	}
	s.emitter.Emit(events.DelegateElected{Cycle: ticket.Cycle, Delegate: s.Delegation.Delegate})
	return nil
}

// DelegateReclaimBid refunds a losing delegate-auction deposit.
func (s *State) DelegateReclaimBid(call types.CallEnv, ticket *delegate.BidTicket) (types.Payment, error) {
	refund, err := s.Delegation.ReclaimBid(ticket)
	if err != nil {
		return types.Payment{}, err
	}
	return types.NewPayment(call.Sender, refund), nil
}
