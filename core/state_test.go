package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"kitchain/config"
	"kitchain/core/events"
	"kitchain/core/types"
	"kitchain/native/burrow"
	"kitchain/native/liquidation"
	"kitchain/native/params"
)

var self = types.Address{0: 0xc0}

func protoConfig() config.Config {
	cfg := config.Default()
	cfg.LotMaxAgeSeconds = 100
	cfg.BidWindowSeconds = 20
	return cfg
}

func blockAt(now int64, level uint64) types.BlockEnv {
	return types.BlockEnv{Now: now, Level: level, Self: self}
}

func callFrom(b byte, amount int64) types.CallEnv {
	var a types.Address
	a[19] = b
	return types.CallEnv{Sender: a, Amount: big.NewInt(amount)}
}

func newTestState(t *testing.T, index int64) *State {
	t.Helper()
	s, err := Initialize(protoConfig(), big.NewInt(index), blockAt(0, 0), nil)
	require.NoError(t, err)
	return s
}

// permit consumes the admin ticket to mint a single-use admin-rights ticket
// for the next operation and hands back the replacement admin ticket.
func permit(t *testing.T, s *State, blk types.BlockEnv, id types.BurrowID, admin *burrow.PermissionTicket) (use, next *burrow.PermissionTicket) {
	t.Helper()
	use, next, err := s.MakePermission(blk, id, burrow.RightAdmin, admin)
	require.NoError(t, err)
	return use, next
}

func TestWithdrawScenario(t *testing.T) {
	s := newTestState(t, 1)
	blk := blockAt(0, 0)
	id, admin, err := s.CreateBurrow(callFrom(1, 10_000_000), blk)
	require.NoError(t, err)

	use, admin := permit(t, s, blk, id, admin)
	require.NoError(t, s.MintKit(callFrom(1, 0), blk, id, big.NewInt(1_000_000), use))
	require.NoError(t, s.CheckInvariants())

	// 10M collateral, 1M deposit, 2M covering the minted kit.
	recipient := callFrom(9, 0).Sender
	use, admin = permit(t, s, blk, id, admin)
	_, err = s.WithdrawTez(callFrom(1, 0), blk, id, big.NewInt(7_000_001), recipient, use)
	require.ErrorIs(t, err, burrow.ErrOverburrowed)

	use, _ = permit(t, s, blk, id, admin)
	payment, err := s.WithdrawTez(callFrom(1, 0), blk, id, big.NewInt(7_000_000), recipient, use)
	require.NoError(t, err)
	require.Equal(t, recipient, payment.Destination)
	require.Zero(t, payment.Amount.Cmp(big.NewInt(7_000_000)))
	require.NoError(t, s.CheckInvariants())
}

func TestKitConservation(t *testing.T) {
	s := newTestState(t, 1)
	blk := blockAt(0, 0)
	id, admin, err := s.CreateBurrow(callFrom(1, 10_000_000), blk)
	require.NoError(t, err)

	use, admin := permit(t, s, blk, id, admin)
	require.NoError(t, s.MintKit(callFrom(1, 0), blk, id, big.NewInt(3_000_000), use))
	require.Zero(t, s.Params.CirculatingKit.Cmp(big.NewInt(3_000_000)))
	require.Zero(t, s.Params.OutstandingKit.Cmp(big.NewInt(3_000_000)))

	use, _ = permit(t, s, blk, id, admin)
	burned, err := s.BurnKit(callFrom(1, 0), blk, id, big.NewInt(5_000_000), use)
	require.NoError(t, err)
	require.Zero(t, burned.Cmp(big.NewInt(3_000_000)))
	require.Zero(t, s.Params.CirculatingKit.Sign())
	require.Zero(t, s.Params.OutstandingKit.Sign())
	require.NoError(t, s.CheckInvariants())
}

func TestTicketSingleUseAndVersionBump(t *testing.T) {
	s := newTestState(t, 1)
	blk := blockAt(0, 0)
	id, admin, err := s.CreateBurrow(callFrom(1, 5_000_000), blk)
	require.NoError(t, err)

	use, admin := permit(t, s, blk, id, admin)
	require.NoError(t, s.DepositTez(callFrom(1, 1_000), blk, id, use))
	require.ErrorIs(t, s.DepositTez(callFrom(1, 1_000), blk, id, use), burrow.ErrTicketConsumed)

	// A ticket minted before the version bump is void afterwards.
	stale, admin := permit(t, s, blk, id, admin)
	admin, err = s.InvalidateAllPermissions(blk, id, admin)
	require.NoError(t, err)
	require.ErrorIs(t, s.DepositTez(callFrom(1, 1_000), blk, id, stale), burrow.ErrStaleTicket)

	// The refreshed admin ticket works at the new version.
	use, _ = permit(t, s, blk, id, admin)
	require.NoError(t, s.DepositTez(callFrom(1, 1_000), blk, id, use))
}

func TestOpenDepositsSkipTickets(t *testing.T) {
	s := newTestState(t, 1)
	blk := blockAt(0, 0)
	id, admin, err := s.CreateBurrow(callFrom(1, 5_000_000), blk)
	require.NoError(t, err)

	require.ErrorIs(t, s.DepositTez(callFrom(2, 1_000), blk, id, nil), burrow.ErrNoTicket)
	require.NoError(t, s.SetAllowAllTezDeposits(blk, id, true, admin))
	require.NoError(t, s.DepositTez(callFrom(2, 1_000), blk, id, nil))
}

func TestIdempotentTouch(t *testing.T) {
	s := newTestState(t, 1_000)

	reward, err := s.Touch(callFrom(1, 0), blockAt(60, 1), big.NewInt(1_000))
	require.NoError(t, err)
	// One minute at the low rate.
	require.Zero(t, reward.Cmp(big.NewInt(100_000)))

	before, beforeDigest, err := s.Checkpoint()
	require.NoError(t, err)
	require.NotEmpty(t, before)

	reward, err = s.Touch(callFrom(2, 0), blockAt(60, 1), big.NewInt(9_999))
	require.NoError(t, err)
	require.Zero(t, reward.Sign())

	_, afterDigest, err := s.Checkpoint()
	require.NoError(t, err)
	require.Equal(t, beforeDigest, afterDigest)
}

type captureEmitter struct {
	seen []events.Event
}

func (c *captureEmitter) Emit(ev events.Event) { c.seen = append(c.seen, ev) }

func TestTouchDriftFollowsPoolPrice(t *testing.T) {
	s := newTestState(t, 1_000)

	// Seed the pool at 1200 mutez per kit, 20% above the q*index target.
	_, _, err := s.CfmmAddLiquidity(callFrom(1, 12_000_000), blockAt(10, 1), big.NewInt(10_000), nil, 60)
	require.NoError(t, err)

	// The next level's touch sees the seeded reserves as the market price.
	_, err = s.Touch(callFrom(2, 0), blockAt(70, 2), big.NewInt(1_000))
	require.NoError(t, err)
	require.Negative(t, s.Params.DriftDerivative.Sign())
	require.Negative(t, s.Params.Drift.Sign())
	require.True(t, s.Params.Q.Cmp(params.Ray()) < 0, "the kit premium must push q down")
}

func TestTouchRecordsCycleWinner(t *testing.T) {
	cfg := protoConfig()
	cfg.CycleLengthLevels = 4
	rec := &captureEmitter{}
	s, err := Initialize(cfg, big.NewInt(1_000), blockAt(0, 0), rec)
	require.NoError(t, err)

	_, err = s.DelegatePlaceBid(callFrom(4, 5_000_000), blockAt(10, 1))
	require.NoError(t, err)

	// Crossing the cycle boundary decides the winner before any claim.
	_, err = s.Touch(callFrom(1, 0), blockAt(60, 4), big.NewInt(1_000))
	require.NoError(t, err)

	var closed *events.CycleClosed
	for _, ev := range rec.seen {
		if c, ok := ev.(events.CycleClosed); ok {
			closed = &c
		}
	}
	require.NotNil(t, closed, "cycle rollover must announce the winner")
	require.Equal(t, uint64(0), closed.Cycle)
	require.Equal(t, callFrom(4, 0).Sender, closed.Winner)
	require.Zero(t, closed.Bid.Cmp(big.NewInt(5_000_000)))
}

// liquidatableBurrow builds a burrow minted to the edge at index 1000, then
// advances the protected index far enough to make it a liquidation candidate.
func liquidatableBurrow(t *testing.T, kit int64) (*State, types.BurrowID, *burrow.PermissionTicket) {
	t.Helper()
	s := newTestState(t, 1_000)
	blk := blockAt(0, 0)
	id, admin, err := s.CreateBurrow(callFrom(1, 10_000_000), blk)
	require.NoError(t, err)

	use, admin := permit(t, s, blk, id, admin)
	require.NoError(t, s.MintKit(callFrom(1, 0), blk, id, big.NewInt(kit), use))

	// 7000 seconds at 5 bps per minute move the protected index to ~1058.
	_, err = s.Touch(callFrom(3, 0), blockAt(7_000, 10), big.NewInt(1_100))
	require.NoError(t, err)
	return s, id, admin
}

func TestMarkForLiquidationPartial(t *testing.T) {
	s, id, _ := liquidatableBurrow(t, 4_500)
	blk := blockAt(7_000, 10)

	payment, err := s.MarkForLiquidation(callFrom(5, 0), blk, id)
	require.NoError(t, err)
	// Creation deposit plus 0.1% of the 10M collateral.
	require.Zero(t, payment.Amount.Cmp(big.NewInt(1_010_000)))

	b := s.Burrows[id]
	require.True(t, b.Active, "partial liquidation must keep the burrow alive")
	require.True(t, b.HasSlices())
	require.Positive(t, b.CollateralAtAuction.Sign())
	require.True(t, b.CollateralAtAuction.Cmp(big.NewInt(7_990_000)) < 0,
		"partial slice must leave collateral behind")
	require.NoError(t, s.CheckInvariants())

	// Not a candidate twice in a row once the slice restored the ratio.
	_, err = s.MarkForLiquidation(callFrom(5, 0), blk, id)
	require.ErrorIs(t, err, burrow.ErrNotLiquidationCandidate)
}

func TestAuctionLifecycleThroughTouch(t *testing.T) {
	s, id, _ := liquidatableBurrow(t, 4_500)
	_, err := s.MarkForLiquidation(callFrom(5, 0), blockAt(7_000, 10), id)
	require.NoError(t, err)
	outstandingBefore := new(big.Int).Set(s.Burrows[id].Outstanding)

	// The aged slice forces a lot open.
	_, err = s.Touch(callFrom(3, 0), blockAt(7_101, 11), big.NewInt(1_100))
	require.NoError(t, err)
	require.NotNil(t, s.Auctions.Current)

	bid := new(big.Int).Set(s.Auctions.Current.MinimumBid)
	ticket, err := s.LiqPlaceBid(callFrom(7, 0), blockAt(7_101, 11), bid)
	require.NoError(t, err)

	// Equal bids are rejected; the sequence must strictly increase.
	_, err = s.LiqPlaceBid(callFrom(8, 0), blockAt(7_102, 11), bid)
	require.ErrorIs(t, err, liquidation.ErrBidTooLow)

	// Past the bid window the touch closes the lot and drains its slice.
	_, err = s.Touch(callFrom(3, 0), blockAt(7_121, 12), big.NewInt(1_100))
	require.NoError(t, err)
	require.Nil(t, s.Auctions.Current)
	require.Empty(t, s.Auctions.Completed)

	b := s.Burrows[id]
	require.False(t, b.HasSlices())
	require.Zero(t, b.CollateralAtAuction.Sign())
	require.True(t, b.Outstanding.Cmp(outstandingBefore) < 0, "proceeds must repay debt")
	require.NoError(t, s.CheckInvariants())

	// The winner collects the lot's collateral.
	payout, err := s.LiqClaimWin(callFrom(7, 0), ticket)
	require.NoError(t, err)
	require.Positive(t, payout.Amount.Sign())
}

func TestUnclaimedSlicesBlockBurrowOps(t *testing.T) {
	s, id, admin := liquidatableBurrow(t, 4_500)
	_, err := s.MarkForLiquidation(callFrom(5, 0), blockAt(7_000, 10), id)
	require.NoError(t, err)

	_, err = s.Touch(callFrom(3, 0), blockAt(7_101, 11), big.NewInt(1_100))
	require.NoError(t, err)
	bid := new(big.Int).Set(s.Auctions.Current.MinimumBid)
	_, err = s.LiqPlaceBid(callFrom(7, 0), blockAt(7_101, 11), bid)
	require.NoError(t, err)

	// Close the lot without draining: the burrow is now frozen.
	require.NotNil(t, s.Auctions.MaybeCloseLot(7_121, s.Config()))
	err = s.DepositTez(callFrom(1, 1_000), blockAt(7_121, 12), id, nil)
	require.ErrorIs(t, err, ErrUnclaimedSlices)
	_, _, err = s.MakePermission(blockAt(7_121, 12), id, burrow.RightAdmin, admin)
	require.ErrorIs(t, err, ErrUnclaimedSlices)

	// Draining the slice unfreezes it.
	leaf := s.Burrows[id].Youngest
	require.NoError(t, s.TouchLiquidationSlices(blockAt(7_121, 12), []liquidation.Ptr{leaf}))
	require.NoError(t, s.CheckInvariants())
	_, _, err = s.MakePermission(blockAt(7_121, 12), id, burrow.RightAdmin, admin)
	require.NoError(t, err)
}

func TestCancellationGuard(t *testing.T) {
	s, id, admin := liquidatableBurrow(t, 4_495)
	blk := blockAt(7_000, 10)
	_, err := s.MarkForLiquidation(callFrom(5, 0), blk, id)
	require.NoError(t, err)
	leaf := s.Burrows[id].Youngest

	// The burrow is still undercollateralized: cancellation would escape a
	// deserved liquidation.
	use, admin := permit(t, s, blk, id, admin)
	require.ErrorIs(t, s.CancelLiquidationSlice(blk, leaf, use), ErrStillOverburrowed)

	// Fresh collateral makes the position healthy again; now the queued
	// slice can be reversed.
	use, admin = permit(t, s, blk, id, admin)
	require.NoError(t, s.DepositTez(callFrom(1, 2_000_000), blk, id, use))
	use, _ = permit(t, s, blk, id, admin)
	require.NoError(t, s.CancelLiquidationSlice(blk, leaf, use))

	b := s.Burrows[id]
	require.False(t, b.HasSlices())
	require.Zero(t, b.CollateralAtAuction.Sign())
	require.Zero(t, s.Auctions.QueuedTez().Sign())
	require.NoError(t, s.CheckInvariants())
}

func TestCheckpointRoundTrip(t *testing.T) {
	s, id, _ := liquidatableBurrow(t, 4_500)
	_, err := s.MarkForLiquidation(callFrom(5, 0), blockAt(7_000, 10), id)
	require.NoError(t, err)
	_, err = s.Touch(callFrom(3, 0), blockAt(7_101, 11), big.NewInt(1_100))
	require.NoError(t, err)
	bid := new(big.Int).Set(s.Auctions.Current.MinimumBid)
	_, err = s.LiqPlaceBid(callFrom(7, 0), blockAt(7_101, 11), bid)
	require.NoError(t, err)

	encoded, digest, err := s.Checkpoint()
	require.NoError(t, err)

	restored, err := Restore(s.Config(), encoded, nil)
	require.NoError(t, err)
	require.NoError(t, restored.CheckInvariants())

	// Identical states encode to identical bytes.
	reencoded, redigest, err := restored.Checkpoint()
	require.NoError(t, err)
	require.Equal(t, digest, redigest)
	require.Equal(t, encoded, reencoded)

	// The restored state keeps functioning mid-auction.
	higher := new(big.Int).Add(bid, big.NewInt(1))
	_, err = restored.LiqPlaceBid(callFrom(8, 0), blockAt(7_105, 11), higher)
	require.NoError(t, err)
}

func TestCreateBurrowRequiresDeposit(t *testing.T) {
	s := newTestState(t, 1)
	_, _, err := s.CreateBurrow(callFrom(1, 999_999), blockAt(0, 0))
	require.ErrorIs(t, err, ErrInsufficientPayment)
}
