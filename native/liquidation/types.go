package liquidation

import (
	"math/big"

	"kitchain/core/types"
)

// Ptr is an opaque handle into the slice arena. The zero value addresses
// nothing.
type Ptr uint64

// NullPtr is the absent handle.
const NullPtr Ptr = 0

// Slice is one burrow's collateral portion queued for sale. The younger and
// older handles thread a per-burrow doubly-linked list through the arena,
// youngest first.
type Slice struct {
	// Burrow owns the collateral and is repaid from the auction proceeds.
	Burrow types.BurrowID
	// Tez is the collateral amount in mutez.
	Tez *big.Int
	// MinKitForUnwarranted is the kit proceeds threshold below which the
	// liquidation is judged warranted and the penalty applies.
	MinKitForUnwarranted *big.Int
	// QueuedAt is the timestamp the slice entered the queue, used by the
	// lot-opening age policy.
	QueuedAt int64
	// Younger points to the slice the same burrow queued after this one.
	Younger Ptr
	// Older points to the slice the same burrow queued before this one.
	Older Ptr
}

// Outcome is the settled result recorded on a completed lot's root. It stays
// attached until every slice under the root has been drained.
type Outcome struct {
	// Winner placed the highest bid before the bid window lapsed.
	Winner types.Address
	// WinningBid is the kit paid for the whole lot, in mukit.
	WinningBid *big.Int
	// SoldTez is the lot's collateral total at close, in mutez.
	SoldTez *big.Int

	claimed bool
}

// Claimed reports whether the winner has collected the lot's collateral.
func (o *Outcome) Claimed() bool { return o != nil && o.claimed }

// BidTicket is the linear claim handed to a bidder. A losing ticket is
// reclaimed for its kit; the winning ticket is exchanged for the lot's
// collateral. Either redemption consumes the ticket.
type BidTicket struct {
	// Lot is the root handle of the lot the bid was placed on.
	Lot Ptr
	// Bidder receives the refund or the payout.
	Bidder types.Address
	// Kit is the escrowed bid amount in mukit.
	Kit *big.Int

	consumed bool
}

// Consumed reports whether the ticket has already been redeemed.
func (t *BidTicket) Consumed() bool { return t != nil && t.consumed }

// CurrentLot tracks the lot currently open for bidding.
type CurrentLot struct {
	// Root encloses the slices being sold.
	Root Ptr
	// MinimumBid is the kit floor for the first bid, derived from the lot's
	// collateral at the liquidation price when the lot opened.
	MinimumBid *big.Int
	// Leader and LeadingBid track the highest accepted bid so far; LeadingBid
	// is nil while no bid has been placed.
	Leader     types.Address
	LeadingBid *big.Int
	// LastBidAt stamps the latest accepted bid; the lot closes once the bid
	// window elapses past it.
	LastBidAt int64
	// OpenedAt stamps when the lot was opened.
	OpenedAt int64
}
