package core

import (
	"math/big"

	"kitchain/core/events"
	"kitchain/core/types"
	"kitchain/native/params"
)

// Touch is the protocol's scheduler. It is idempotent per timestamp: touching
// twice at the same time yields a zero reward and no state change. Otherwise
// the steps run in fixed order, and the order is load-bearing: the caller
// reward is priced at the pre-advancement rate.
func (s *State) Touch(call types.CallEnv, blk types.BlockEnv, index *big.Int) (*big.Int, error) {
	if blk.Now == s.Params.LastTouched {
		return big.NewInt(0), nil
	}

	// 1. caller reward at the old rate.
	reward := params.TouchReward(blk.Now-s.Params.LastTouched, s.cfg)

	// 2. parameter advancement and fee accrual. The pool's start-of-level
	// price drives the drift feedback, so the rate is observed first.
	s.Cfmm.ObserveRate(blk.Level)
	accrual, err := s.Params.Touch(blk.Now, index, s.Cfmm.PrevBlockRate(), s.cfg)
	if err != nil {
		return nil, err
	}
	s.Params.CirculatingKit = new(big.Int).Add(s.Params.CirculatingKit, reward)

	// 3. accrued burrowing fees feed the pool's kit reserve.
	s.Cfmm.AddAccruedKit(accrual)
	s.Params.CirculatingKit = new(big.Int).Add(s.Params.CirculatingKit, accrual)

	// 4. delegate-election cycle rollover.
	if winner, rolled := s.Delegation.TouchCycle(blk.Level, s.cfg); rolled && winner != nil {
		s.emitter.Emit(events.CycleClosed{Cycle: winner.Cycle, Winner: winner.Winner, Bid: winner.Bid})
	}

	// 5. auction lifecycle: settle a lapsed lot, then maybe open the next.
	if outcome := s.Auctions.MaybeCloseLot(blk.Now, s.cfg); outcome != nil {
		s.emitter.Emit(events.LotSettled{Winner: outcome.Winner, SoldTez: outcome.SoldTez, Kit: outcome.WinningBid})
	}
	if s.Auctions.MaybeOpenLot(blk.Now, s.cfg, s.Params.LiquidationPrice()) {
		lot := s.Auctions.Current
		s.emitter.Emit(events.LotOpened{Tez: s.Auctions.Storage.TotalTez(lot.Root), StartKit: lot.MinimumBid})
	}

	// 6. bounded drain of the oldest completed slices.
	drained := 0
	for drained < s.cfg.TouchSliceCap {
		leaf, ok := s.Auctions.OldestCompletedSlice()
		if !ok {
			break
		}
		if err := s.TouchLiquidationSlice(blk, leaf); err != nil {
			break
		}
		drained++
	}

	s.emitter.Emit(events.Touched{Now: blk.Now, Reward: reward, SlicesDrained: drained})
	return reward, nil
}
