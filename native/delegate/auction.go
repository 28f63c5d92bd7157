package delegate

import (
	"errors"
	"math/big"

	"kitchain/config"
	"kitchain/core/types"
)

var (
	ErrInvalidAmount  = errors.New("delegate: bid must be positive")
	ErrBidTooLow      = errors.New("delegate: bid does not beat the current leader")
	ErrNoTicket       = errors.New("delegate: no bid ticket presented")
	ErrTicketConsumed = errors.New("delegate: bid ticket already used")
	ErrTicketLeading  = errors.New("delegate: leading bid cannot be reclaimed")
	ErrTicketWon      = errors.New("delegate: winning bid must be claimed")
	ErrTicketLost     = errors.New("delegate: losing bid can only be reclaimed")
	ErrNotDecided     = errors.New("delegate: cycle has not ended yet")
)

// BidTicket is the linear proof of a delegate-auction deposit. Reclaiming a
// losing bid or claiming a win consumes it.
type BidTicket struct {
	Cycle  uint64
	Bidder types.Address
	Tez    *big.Int

	consumed bool
}

// Consumed reports whether the ticket has been redeemed.
func (t *BidTicket) Consumed() bool { return t != nil && t.consumed }

// WinnerRecord remembers a decided cycle until the winner claims.
type WinnerRecord struct {
	Cycle  uint64
	Winner types.Address
	Bid    *big.Int
}

// Auction elects one delegate per cycle: the highest tez bid placed during a
// cycle wins, and the winner becomes the protocol's delegate for the next
// one once claimed.
type Auction struct {
	// Cycle is the cycle currently accepting bids.
	Cycle uint64
	// Leader and LeadingBid track the best bid of the open cycle.
	Leader     types.Address
	LeadingBid *big.Int
	// Delegate is the currently promoted delegate, zero before the first
	// claim.
	Delegate types.Address
	// Pending holds decided cycles whose winners have not claimed yet.
	Pending map[uint64]*WinnerRecord
}

// New starts the auction at the cycle containing the given level.
func New(level uint64, cfg config.Config) *Auction {
	return &Auction{
		Cycle:   level / cfg.CycleLengthLevels,
		Pending: make(map[uint64]*WinnerRecord),
	}
}

// PlaceBid enters a tez bid for the open cycle. Bids must strictly beat the
// current leader.
func (a *Auction) PlaceBid(bidder types.Address, tez *big.Int) (*BidTicket, error) {
	if tez == nil || tez.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if a.LeadingBid != nil && tez.Cmp(a.LeadingBid) <= 0 {
		return nil, ErrBidTooLow
	}
	a.Leader = bidder
	a.LeadingBid = new(big.Int).Set(tez)
	return &BidTicket{Cycle: a.Cycle, Bidder: bidder, Tez: new(big.Int).Set(tez)}, nil
}

// TouchCycle rolls the auction forward to the cycle containing the given
// level. Skipped cycles elect nobody; the latest decided cycle's winner is
// recorded for claiming. It reports whether a rollover happened.
func (a *Auction) TouchCycle(level uint64, cfg config.Config) (*WinnerRecord, bool) {
	cycle := level / cfg.CycleLengthLevels
	if cycle <= a.Cycle {
		return nil, false
	}

	var record *WinnerRecord
	if a.LeadingBid != nil {
		record = &WinnerRecord{Cycle: a.Cycle, Winner: a.Leader, Bid: a.LeadingBid}
		a.Pending[a.Cycle] = record
	}
	a.Cycle = cycle
	a.Leader = types.Address{}
	a.LeadingBid = nil
	return record, true
}

// ClaimWin promotes the ticket holder to delegate and consumes the ticket.
// The winning deposit stays with the protocol.
func (a *Auction) ClaimWin(t *BidTicket) error {
	if t == nil {
		return ErrNoTicket
	}
	if t.consumed {
		return ErrTicketConsumed
	}
	if t.Cycle == a.Cycle {
		return ErrNotDecided
	}
	record, ok := a.Pending[t.Cycle]
	if !ok || record.Winner != t.Bidder || record.Bid.Cmp(t.Tez) != 0 {
		return ErrTicketLost
	}
	t.consumed = true
	delete(a.Pending, t.Cycle)
	a.Delegate = t.Bidder
	return nil
}

// ReclaimBid refunds a losing deposit and consumes the ticket. Bids from the
// open cycle can be reclaimed only once they have been outbid.
func (a *Auction) ReclaimBid(t *BidTicket) (*big.Int, error) {
	if t == nil {
		return nil, ErrNoTicket
	}
	if t.consumed {
		return nil, ErrTicketConsumed
	}
	if t.Cycle == a.Cycle {
		if a.LeadingBid != nil && a.Leader == t.Bidder && a.LeadingBid.Cmp(t.Tez) == 0 {
			return nil, ErrTicketLeading
		}
	} else if record, ok := a.Pending[t.Cycle]; ok {
		if record.Winner == t.Bidder && record.Bid.Cmp(t.Tez) == 0 {
			return nil, ErrTicketWon
		}
	}
	t.consumed = true
	return new(big.Int).Set(t.Tez), nil
}
