package liquidation

import (
	"errors"
	"math/big"

	"kitchain/config"
	"kitchain/core/types"
)

var (
	ErrNoOpenLot        = errors.New("liquidation: no lot is open for bidding")
	ErrBidWindowClosed  = errors.New("liquidation: lot bidding window has closed")
	ErrBidTooLow        = errors.New("liquidation: bid does not beat the current leader")
	ErrUnknownSlice     = errors.New("liquidation: unknown slice pointer")
	ErrSliceNotQueued   = errors.New("liquidation: slice is no longer queued")
	ErrSliceNotReady    = errors.New("liquidation: slice's lot has not completed")
	ErrNoTicket         = errors.New("liquidation: no bid ticket presented")
	ErrTicketConsumed   = errors.New("liquidation: bid ticket already redeemed")
	ErrTicketLeading    = errors.New("liquidation: ticket is the current leading bid")
	ErrTicketWon        = errors.New("liquidation: winning ticket must be claimed, not reclaimed")
	ErrTicketNotWinning = errors.New("liquidation: ticket did not win its lot")
)

// Auctions is the liquidation-auction subsystem folded into the protocol
// state: the slice arena, the queue of not-yet-auctioned slices, the lot
// currently open for bidding, and the FIFO of completed lots awaiting drain.
type Auctions struct {
	Storage *Storage
	// Queue holds slices marked for liquidation but not yet walked into a
	// lot.
	Queue Ptr
	// Current is the lot open for bidding, nil when none.
	Current *CurrentLot
	// Completed lists completed lot roots oldest first; the head is the
	// drain cursor that lets bounded draining resume across calls.
	Completed []Ptr
	// PendingWins parks the outcome of a fully drained lot whose winner has
	// not collected the collateral yet.
	PendingWins map[Ptr]*Outcome
}

// New returns an empty auction subsystem.
func New() *Auctions {
	st := NewStorage()
	return &Auctions{
		Storage:     st,
		Queue:       st.NewRoot(),
		PendingWins: make(map[Ptr]*Outcome),
	}
}

// QueueSlice appends a slice to the auction queue and threads it behind the
// burrow's previous youngest slice. It returns the new leaf handle.
func (a *Auctions) QueueSlice(slice Slice, prevYoungest Ptr) Ptr {
	slice.Younger = NullPtr
	slice.Older = prevYoungest
	leaf := a.Storage.Push(a.Queue, slice)
	if prevYoungest != NullPtr {
		a.Storage.SliceOf(prevYoungest).Younger = leaf
	}
	return leaf
}

// unlink splices the leaf out of its burrow's younger/older thread and
// returns the two neighbors so the caller can fix the burrow's endpoints.
func (a *Auctions) unlink(leaf Ptr) (younger, older Ptr) {
	s := a.Storage.SliceOf(leaf)
	younger, older = s.Younger, s.Older
	if younger != NullPtr {
		a.Storage.SliceOf(younger).Older = older
	}
	if older != NullPtr {
		a.Storage.SliceOf(older).Younger = younger
	}
	s.Younger, s.Older = NullPtr, NullPtr
	return younger, older
}

// CancelSlice reverses a queued slice: it is removed from the queue and its
// collateral belongs to the burrow again. Slices already enclosed by an open
// or completed lot cannot be cancelled. The caller is responsible for the
// burrow-health guard.
func (a *Auctions) CancelSlice(leaf Ptr) (Slice, Ptr, Ptr, error) {
	if !a.Storage.IsLeaf(leaf) {
		return Slice{}, NullPtr, NullPtr, ErrUnknownSlice
	}
	if a.Storage.RootOf(leaf) != a.Queue {
		return Slice{}, NullPtr, NullPtr, ErrSliceNotQueued
	}
	slice := *a.Storage.SliceOf(leaf)
	younger, older := a.unlink(leaf)
	a.Storage.Remove(leaf)
	return slice, younger, older, nil
}

// QueuedTez is the collateral currently waiting in the queue.
func (a *Auctions) QueuedTez() *big.Int {
	return a.Storage.TotalTez(a.Queue)
}

// MaybeOpenLot walks queued slices into a new lot when the opening policy
// holds: enough collateral accumulated, or the oldest slice has waited past
// the age cap. The minimum bid is the lot's collateral valued at the given
// liquidation price, ceiling-rounded for safety. At most one lot is open at
// a time.
func (a *Auctions) MaybeOpenLot(now int64, cfg config.Config, liquidationPrice *big.Rat) bool {
	if a.Current != nil {
		return false
	}
	front, ok := a.Storage.Front(a.Queue)
	if !ok {
		return false
	}
	threshold := big.NewInt(cfg.LotThresholdMutez)
	aged := a.Storage.SliceOf(front).QueuedAt+cfg.LotMaxAgeSeconds <= now
	if a.QueuedTez().Cmp(threshold) < 0 && !aged {
		return false
	}

	root := a.Storage.NewRoot()
	lotTez := big.NewInt(0)
	for lotTez.Cmp(threshold) < 0 {
		leaf, ok := a.Storage.MoveFront(a.Queue, root)
		if !ok {
			break
		}
		lotTez.Add(lotTez, a.Storage.SliceOf(leaf).Tez)
	}

	minimumBid := ceilRat(new(big.Rat).SetFrac(lotTez, big.NewInt(1)), liquidationPrice)
	a.Current = &CurrentLot{
		Root:       root,
		MinimumBid: minimumBid,
		OpenedAt:   now,
	}
	return true
}

// PlaceBid records a bid on the open lot. Bids must meet the minimum and
// strictly exceed the current leader; an equal bid is rejected. The returned
// ticket is the bidder's linear claim on the outcome.
func (a *Auctions) PlaceBid(now int64, cfg config.Config, bidder types.Address, kit *big.Int) (*BidTicket, error) {
	lot := a.Current
	if lot == nil {
		return nil, ErrNoOpenLot
	}
	if lot.LeadingBid != nil && now >= lot.LastBidAt+cfg.BidWindowSeconds {
		return nil, ErrBidWindowClosed
	}
	if kit == nil || kit.Cmp(lot.MinimumBid) < 0 {
		return nil, ErrBidTooLow
	}
	if lot.LeadingBid != nil && kit.Cmp(lot.LeadingBid) <= 0 {
		return nil, ErrBidTooLow
	}
	lot.Leader = bidder
	lot.LeadingBid = new(big.Int).Set(kit)
	lot.LastBidAt = now
	return &BidTicket{Lot: lot.Root, Bidder: bidder, Kit: new(big.Int).Set(kit)}, nil
}

// MaybeCloseLot completes the open lot once the bid window has lapsed past
// the leading bid. A lot without bids stays open. The recorded outcome stays
// on the root until every slice is drained.
func (a *Auctions) MaybeCloseLot(now int64, cfg config.Config) *Outcome {
	lot := a.Current
	if lot == nil || lot.LeadingBid == nil {
		return nil
	}
	if now < lot.LastBidAt+cfg.BidWindowSeconds {
		return nil
	}
	outcome := &Outcome{
		Winner:     lot.Leader,
		WinningBid: new(big.Int).Set(lot.LeadingBid),
		SoldTez:    a.Storage.TotalTez(lot.Root),
	}
	a.Storage.SetOutcome(lot.Root, outcome)
	a.Completed = append(a.Completed, lot.Root)
	a.Current = nil
	return outcome
}

// Drained reports what settling one slice removed from the arena.
type Drained struct {
	Slice   Slice
	Outcome *Outcome
	Younger Ptr
	Older   Ptr
	// LotDrained is set when this was the lot's last slice and the root was
	// forgotten.
	LotDrained bool
}

// DrainSlice removes one slice of a completed lot from the arena, relinking
// its younger/older neighbors. Slices still queued or under the open lot are
// not ready; unknown handles are an error. The monetary settlement is the
// caller's concern.
func (a *Auctions) DrainSlice(leaf Ptr) (*Drained, error) {
	if !a.Storage.IsLeaf(leaf) {
		return nil, ErrUnknownSlice
	}
	root := a.Storage.RootOf(leaf)
	if root == a.Queue {
		return nil, ErrSliceNotReady
	}
	outcome := a.Storage.OutcomeOf(root)
	if outcome == nil {
		return nil, ErrSliceNotReady
	}
	slice := *a.Storage.SliceOf(leaf)
	younger, older := a.unlink(leaf)
	a.Storage.Remove(leaf)

	drained := &Drained{Slice: slice, Outcome: outcome, Younger: younger, Older: older}
	if a.Storage.EmptyRoot(root) {
		a.forgetLot(root, outcome)
		drained.LotDrained = true
	}
	return drained, nil
}

// OldestCompletedSlice returns the drain cursor: the front slice of the
// oldest completed lot.
func (a *Auctions) OldestCompletedSlice() (Ptr, bool) {
	if len(a.Completed) == 0 {
		return NullPtr, false
	}
	return a.Storage.Front(a.Completed[0])
}

// forgetLot drops a fully drained root, parking the outcome when the winner
// has not collected the collateral yet.
func (a *Auctions) forgetLot(root Ptr, outcome *Outcome) {
	for i, r := range a.Completed {
		if r == root {
			a.Completed = append(a.Completed[:i], a.Completed[i+1:]...)
			break
		}
	}
	a.Storage.DropRoot(root)
	if outcome.WinningBid != nil && !outcome.claimed {
		a.PendingWins[root] = outcome
	}
}

// ReclaimBid refunds a losing bid ticket. The leading bid of the open lot and
// the winning bid of a completed lot cannot be reclaimed.
func (a *Auctions) ReclaimBid(ticket *BidTicket) (*big.Int, error) {
	if ticket == nil {
		return nil, ErrNoTicket
	}
	if ticket.consumed {
		return nil, ErrTicketConsumed
	}
	if lot := a.Current; lot != nil && lot.Root == ticket.Lot &&
		lot.LeadingBid != nil && lot.Leader == ticket.Bidder && lot.LeadingBid.Cmp(ticket.Kit) == 0 {
		return nil, ErrTicketLeading
	}
	if outcome := a.lotOutcome(ticket.Lot); outcome != nil &&
		outcome.Winner == ticket.Bidder && outcome.WinningBid.Cmp(ticket.Kit) == 0 {
		return nil, ErrTicketWon
	}
	ticket.consumed = true
	return new(big.Int).Set(ticket.Kit), nil
}

// ClaimWin exchanges the winning ticket for the lot's collateral. The payout
// is the outcome's sold tez; draining the slices is independent of the claim.
func (a *Auctions) ClaimWin(ticket *BidTicket) (*big.Int, error) {
	if ticket == nil {
		return nil, ErrNoTicket
	}
	if ticket.consumed {
		return nil, ErrTicketConsumed
	}
	outcome := a.lotOutcome(ticket.Lot)
	if outcome == nil || outcome.Winner != ticket.Bidder || outcome.WinningBid.Cmp(ticket.Kit) != 0 {
		return nil, ErrTicketNotWinning
	}
	if outcome.claimed {
		return nil, ErrTicketConsumed
	}
	outcome.claimed = true
	delete(a.PendingWins, ticket.Lot)
	ticket.consumed = true
	return new(big.Int).Set(outcome.SoldTez), nil
}

// lotOutcome resolves a lot handle to its outcome whether the root is still
// in the arena or already drained.
func (a *Auctions) lotOutcome(lot Ptr) *Outcome {
	if parked, ok := a.PendingWins[lot]; ok {
		return parked
	}
	if !a.Storage.Has(lot) {
		return nil
	}
	return a.Storage.OutcomeOf(lot)
}

// ceilRat divides tez by a mutez-per-kit price and rounds the kit result up.
func ceilRat(tez, price *big.Rat) *big.Int {
	if price.Sign() <= 0 {
		return big.NewInt(0)
	}
	kit := new(big.Rat).Quo(tez, price)
	out := new(big.Int).Quo(kit.Num(), kit.Denom())
	if new(big.Int).Rem(kit.Num(), kit.Denom()).Sign() != 0 {
		out.Add(out, big.NewInt(1))
	}
	return out
}
