package events

import (
	"math/big"

	"kitchain/core/types"
)

const (
	// TypeBurrowCreated is emitted when a new burrow is opened.
	TypeBurrowCreated = "burrow.created"
	// TypeBurrowDeactivated is emitted when a burrow is wound down and its
	// collateral returned.
	TypeBurrowDeactivated = "burrow.deactivated"
	// TypeSliceQueued is emitted when collateral is marked for liquidation.
	TypeSliceQueued = "liquidation.sliceQueued"
	// TypeSliceCancelled is emitted when a queued slice is cancelled.
	TypeSliceCancelled = "liquidation.sliceCancelled"
	// TypeLotOpened is emitted when queued slices are walked into an open lot.
	TypeLotOpened = "liquidation.lotOpened"
	// TypeLotSettled is emitted when an open lot closes with a winning bid.
	TypeLotSettled = "liquidation.lotSettled"
	// TypeBidPlaced is emitted for every accepted liquidation-auction bid.
	TypeBidPlaced = "liquidation.bidPlaced"
	// TypeCycleClosed is emitted when a cycle rollover decides a winner that
	// has not claimed yet.
	TypeCycleClosed = "delegate.cycleClosed"
	// TypeDelegateElected is emitted when a decided winner claims and becomes
	// the delegate.
	TypeDelegateElected = "delegate.elected"
	// TypeTouched is emitted at the end of every effective touch.
	TypeTouched = "protocol.touched"
)

// BurrowCreated records the owner and the collateral locked at creation.
type BurrowCreated struct {
	ID         types.BurrowID
	Owner      types.Address
	Collateral *big.Int
}

func (BurrowCreated) EventType() string { return TypeBurrowCreated }

// BurrowDeactivated records where the returned collateral was sent.
type BurrowDeactivated struct {
	ID        types.BurrowID
	Recipient types.Address
	Returned  *big.Int
}

func (BurrowDeactivated) EventType() string { return TypeBurrowDeactivated }

// SliceQueued records a new liquidation slice appended to the auction queue.
type SliceQueued struct {
	Burrow types.BurrowID
	Tez    *big.Int
	Reward *big.Int
}

func (SliceQueued) EventType() string { return TypeSliceQueued }

// SliceCancelled records a queued slice returned to its burrow.
type SliceCancelled struct {
	Burrow types.BurrowID
	Tez    *big.Int
}

func (SliceCancelled) EventType() string { return TypeSliceCancelled }

// LotOpened records the collateral total of a newly opened auction lot.
type LotOpened struct {
	Tez      *big.Int
	StartKit *big.Int
}

func (LotOpened) EventType() string { return TypeLotOpened }

// BidPlaced records an accepted bid on the open lot.
type BidPlaced struct {
	Bidder types.Address
	Kit    *big.Int
}

func (BidPlaced) EventType() string { return TypeBidPlaced }

// LotSettled records the final outcome of a completed lot.
type LotSettled struct {
	Winner  types.Address
	SoldTez *big.Int
	Kit     *big.Int
}

func (LotSettled) EventType() string { return TypeLotSettled }

// CycleClosed records the winning bid decided at a cycle rollover.
type CycleClosed struct {
	Cycle  uint64
	Winner types.Address
	Bid    *big.Int
}

func (CycleClosed) EventType() string { return TypeCycleClosed }

// DelegateElected records the winner promoted to delegate by a claim.
type DelegateElected struct {
	Cycle    uint64
	Delegate types.Address
}

func (DelegateElected) EventType() string { return TypeDelegateElected }

// Touched records the reward paid and the work drained by a touch call.
type Touched struct {
	Now           int64
	Reward        *big.Int
	SlicesDrained int
}

func (Touched) EventType() string { return TypeTouched }
