package delegate

import (
	"errors"
	"math/big"
	"testing"

	"kitchain/config"
	"kitchain/core/types"
)

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func TestBidsMustStrictlyIncrease(t *testing.T) {
	cfg := config.Default()
	a := New(0, cfg)

	if _, err := a.PlaceBid(addr(1), big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero bid accepted: %v", err)
	}
	if _, err := a.PlaceBid(addr(1), big.NewInt(100)); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if _, err := a.PlaceBid(addr(2), big.NewInt(100)); !errors.Is(err, ErrBidTooLow) {
		t.Fatalf("equal bid accepted: %v", err)
	}
	if _, err := a.PlaceBid(addr(2), big.NewInt(101)); err != nil {
		t.Fatalf("higher bid rejected: %v", err)
	}
}

func TestCycleRollover(t *testing.T) {
	cfg := config.Default()
	a := New(0, cfg)

	winner, err := a.PlaceBid(addr(1), big.NewInt(500))
	if err != nil {
		t.Fatalf("bid: %v", err)
	}

	if _, rolled := a.TouchCycle(cfg.CycleLengthLevels-1, cfg); rolled {
		t.Fatalf("cycle rolled early")
	}
	record, rolled := a.TouchCycle(cfg.CycleLengthLevels, cfg)
	if !rolled || record == nil {
		t.Fatalf("cycle did not roll")
	}
	if record.Winner != addr(1) || record.Bid.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected record: %+v", record)
	}
	if a.Cycle != 1 || a.LeadingBid != nil {
		t.Fatalf("open cycle not reset")
	}

	if err := a.ClaimWin(winner); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if a.Delegate != addr(1) {
		t.Fatalf("winner not promoted")
	}
	if err := a.ClaimWin(winner); !errors.Is(err, ErrTicketConsumed) {
		t.Fatalf("double claim allowed: %v", err)
	}
}

func TestEmptyCycleElectsNobody(t *testing.T) {
	cfg := config.Default()
	a := New(0, cfg)
	record, rolled := a.TouchCycle(cfg.CycleLengthLevels*3, cfg)
	if !rolled || record != nil {
		t.Fatalf("empty rollover produced a record: %+v", record)
	}
	if a.Cycle != 3 {
		t.Fatalf("cycle %d", a.Cycle)
	}
}

func TestReclaimBidLifecycle(t *testing.T) {
	cfg := config.Default()
	a := New(0, cfg)

	loser, err := a.PlaceBid(addr(1), big.NewInt(100))
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	if _, err := a.ReclaimBid(loser); !errors.Is(err, ErrTicketLeading) {
		t.Fatalf("leading bid reclaimed: %v", err)
	}

	winner, err := a.PlaceBid(addr(2), big.NewInt(200))
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	refund, err := a.ReclaimBid(loser)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if refund.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("refund %s", refund)
	}
	if _, err := a.ReclaimBid(loser); !errors.Is(err, ErrTicketConsumed) {
		t.Fatalf("double reclaim allowed: %v", err)
	}

	if err := a.ClaimWin(winner); !errors.Is(err, ErrNotDecided) {
		t.Fatalf("open-cycle claim allowed: %v", err)
	}
	a.TouchCycle(cfg.CycleLengthLevels, cfg)
	if _, err := a.ReclaimBid(winner); !errors.Is(err, ErrTicketWon) {
		t.Fatalf("winning bid reclaimed: %v", err)
	}
	if err := a.ClaimWin(winner); err != nil {
		t.Fatalf("claim: %v", err)
	}
}
