package core

import (
	"errors"
	"math/big"

	"kitchain/config"
	"kitchain/core/events"
	"kitchain/core/types"
	"kitchain/native/burrow"
	"kitchain/native/cfmm"
	"kitchain/native/delegate"
	"kitchain/native/liquidation"
	"kitchain/native/params"
)

var (
	ErrUnknownBurrow       = errors.New("core: unknown burrow id")
	ErrInsufficientPayment = errors.New("core: attached payment below the creation deposit")
	ErrUnclaimedSlices     = errors.New("core: burrow has unclaimed completed-auction slices")
	ErrStillOverburrowed   = errors.New("core: burrow would remain undercollateralized")
	ErrInvalidIndex        = errors.New("core: price index must be positive")
	ErrNoPayment           = errors.New("core: call must not carry a payment")
)

// State is the whole protocol folded into one value. Every entrypoint
// validates against it, then mutates it; a returned error means nothing was
// mutated.
type State struct {
	cfg     config.Config
	emitter events.Emitter

	Params     *params.Parameters
	Burrows    map[types.BurrowID]*burrow.Burrow
	NextBurrow types.BurrowID
	Cfmm       *cfmm.Pool
	Auctions   *liquidation.Auctions
	Delegation *delegate.Auction
}

// Initialize builds a fresh protocol state anchored at the given observed
// price index and block context.
func Initialize(cfg config.Config, index *big.Int, blk types.BlockEnv, emitter events.Emitter) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := params.New(index, blk.Now)
	if err != nil {
		return nil, ErrInvalidIndex
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &State{
		cfg:        cfg,
		emitter:    emitter,
		Params:     p,
		Burrows:    make(map[types.BurrowID]*burrow.Burrow),
		NextBurrow: 1,
		Cfmm:       cfmm.New(),
		Auctions:   liquidation.New(),
		Delegation: delegate.New(blk.Level, cfg),
	}, nil
}

// Config exposes the constants the state was initialised with.
func (s *State) Config() config.Config { return s.cfg }

func (s *State) burrowFor(id types.BurrowID) (*burrow.Burrow, error) {
	b, ok := s.Burrows[id]
	if !ok {
		return nil, ErrUnknownBurrow
	}
	return b, nil
}

// hasUnclaimedSlices walks the burrow's slice thread and reports whether any
// slice sits under a completed but not yet drained lot. Such slices freeze
// the burrow's collateral accounting until drained.
func (s *State) hasUnclaimedSlices(b *burrow.Burrow) bool {
	for leaf := b.Youngest; leaf != liquidation.NullPtr; leaf = s.Auctions.Storage.SliceOf(leaf).Older {
		root := s.Auctions.Storage.RootOf(leaf)
		if root == s.Auctions.Queue {
			continue
		}
		if s.Auctions.Storage.OutcomeOf(root) != nil {
			return true
		}
	}
	return false
}

// readyBurrow resolves a burrow and enforces the unclaimed-slice guard shared
// by every burrow-mutating entrypoint except MarkForLiquidation.
func (s *State) readyBurrow(id types.BurrowID) (*burrow.Burrow, error) {
	b, err := s.burrowFor(id)
	if err != nil {
		return nil, err
	}
	if s.hasUnclaimedSlices(b) {
		return nil, ErrUnclaimedSlices
	}
	return b, nil
}

// authorize validates a permission ticket for the operation unless the
// burrow-level allow flag already covers it. The ticket is consumed only on a
// successful validation.
func (s *State) authorize(b *burrow.Burrow, id types.BurrowID, blk types.BlockEnv, ticket *burrow.PermissionTicket, need burrow.Rights, open bool) error {
	if open {
		return nil
	}
	return burrow.ValidateTicket(ticket, blk.Self, id, b.PermissionVersion, need)
}

// removeSliceFromBurrow maintains the burrow's thread endpoints and
// collateral-at-auction mirror after a slice left the arena.
func (s *State) removeSliceFromBurrow(b *burrow.Burrow, leaf liquidation.Ptr, slice liquidation.Slice) {
	if b.Youngest == leaf {
		b.Youngest = slice.Older
	}
	if b.Oldest == leaf {
		b.Oldest = slice.Younger
	}
	b.CollateralAtAuction = new(big.Int).Sub(b.CollateralAtAuction, slice.Tez)
}

// mintKitSupply records newly created kit in both global counters.
func (s *State) mintKitSupply(amount *big.Int) {
	s.Params.OutstandingKit = new(big.Int).Add(s.Params.OutstandingKit, amount)
	s.Params.CirculatingKit = new(big.Int).Add(s.Params.CirculatingKit, amount)
}

// burnKitSupply removes burned kit from both global counters, with the
// outstanding reduction capped separately by the caller.
func (s *State) burnKitSupply(outstanding, circulating *big.Int) {
	s.Params.OutstandingKit = new(big.Int).Sub(s.Params.OutstandingKit, outstanding)
	s.Params.CirculatingKit = new(big.Int).Sub(s.Params.CirculatingKit, circulating)
}
