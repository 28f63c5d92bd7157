package burrow

import (
	"errors"
	"math/big"

	"kitchain/config"
	"kitchain/core/types"
	"kitchain/native/liquidation"
)

var (
	ErrInvalidAmount       = errors.New("burrow: amount must be positive")
	ErrInactive            = errors.New("burrow: burrow is not active")
	ErrAlreadyActive       = errors.New("burrow: burrow is already active")
	ErrInsufficientFunds   = errors.New("burrow: insufficient collateral")
	ErrOverburrowed        = errors.New("burrow: operation would leave the burrow undercollateralized")
	ErrOutstandingDebt     = errors.New("burrow: outstanding kit must be burned first")
	ErrCollateralAtAuction = errors.New("burrow: collateral is still at auction")
)

// Burrow is a single collateralized position. It is never physically deleted;
// deactivation clears the balances and keeps the permission history.
type Burrow struct {
	// Active is false before activation and after deactivation or a close
	// liquidation.
	Active bool
	// Delegate is the staking delegate set for the burrow's collateral.
	Delegate types.Address
	// Collateral is the tez held by the burrow in mutez, including the
	// creation deposit.
	Collateral *big.Int
	// Outstanding is the minted kit not yet burned, in mukit, including
	// accrued burrowing fees.
	Outstanding *big.Int
	// CollateralAtAuction mirrors the tez enclosed by the burrow's live
	// liquidation slices.
	CollateralAtAuction *big.Int
	// PermissionVersion invalidates every outstanding ticket when bumped.
	PermissionVersion uint64
	// AllowAllTezDeposits permits ticketless deposits when set.
	AllowAllTezDeposits bool
	// AllowAllKitBurns permits ticketless burns when set.
	AllowAllKitBurns bool
	// FeeIndexSnapshot is the burrow fee index the outstanding total was
	// last reconciled against.
	FeeIndexSnapshot *big.Int
	// Youngest and Oldest bound the burrow's slice thread in the auction
	// arena; both are null when no collateral is at auction.
	Youngest liquidation.Ptr
	Oldest   liquidation.Ptr
	// LastTouched stamps the latest fee reconciliation.
	LastTouched int64
}

// New opens an active burrow holding the given tez (creation deposit
// included) and anchored at the current burrow fee index.
func New(collateral, feeIndex *big.Int, now int64) *Burrow {
	return &Burrow{
		Active:              true,
		Collateral:          new(big.Int).Set(collateral),
		Outstanding:         big.NewInt(0),
		CollateralAtAuction: big.NewInt(0),
		FeeIndexSnapshot:    new(big.Int).Set(feeIndex),
		LastTouched:         now,
	}
}

// HasSlices reports whether any collateral is currently at auction.
func (b *Burrow) HasSlices() bool { return b.Youngest != liquidation.NullPtr }

// DepositTez adds collateral.
func (b *Burrow) DepositTez(amount *big.Int) error {
	if !b.Active {
		return ErrInactive
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.Collateral = new(big.Int).Add(b.Collateral, amount)
	return nil
}

// WithdrawTez releases collateral provided the creation deposit stays intact
// and the position remains above the minting ratio.
func (b *Burrow) WithdrawTez(amount *big.Int, mintingPrice *big.Rat, cfg config.Config) error {
	if !b.Active {
		return ErrInactive
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	remaining := new(big.Int).Sub(b.Collateral, amount)
	if remaining.Cmp(big.NewInt(cfg.CreationDepositMutez)) < 0 {
		return ErrInsufficientFunds
	}
	if !covers(remaining, big.NewInt(cfg.CreationDepositMutez), b.Outstanding, mintingPrice, cfg.MintingRatioBps) {
		return ErrOverburrowed
	}
	b.Collateral = remaining
	return nil
}

// MintKit increases the outstanding debt provided the collateral covers the
// projected total at the minting ratio.
func (b *Burrow) MintKit(amount *big.Int, mintingPrice *big.Rat, cfg config.Config) error {
	if !b.Active {
		return ErrInactive
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	projected := new(big.Int).Add(b.Outstanding, amount)
	if !covers(b.Collateral, big.NewInt(cfg.CreationDepositMutez), projected, mintingPrice, cfg.MintingRatioBps) {
		return ErrOverburrowed
	}
	b.Outstanding = projected
	return nil
}

// BurnKit reduces the outstanding debt and returns the amount actually
// burned, capped at the debt.
func (b *Burrow) BurnKit(amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	burned := new(big.Int).Set(amount)
	if burned.Cmp(b.Outstanding) > 0 {
		burned = new(big.Int).Set(b.Outstanding)
	}
	b.Outstanding = new(big.Int).Sub(b.Outstanding, burned)
	return burned, nil
}

// IsOverburrowed reports whether the position sits below the minting ratio
// at the given price.
func (b *Burrow) IsOverburrowed(mintingPrice *big.Rat, cfg config.Config) bool {
	return !covers(b.Collateral, big.NewInt(cfg.CreationDepositMutez), b.Outstanding, mintingPrice, cfg.MintingRatioBps)
}

// IsLiquidatable reports whether the position sits below the liquidation
// ratio at the protected price and is therefore a liquidation candidate.
// Collateral already at auction counts toward coverage at the liquidation
// price, so pending slices do not trigger repeat liquidations.
func (b *Burrow) IsLiquidatable(liquidationPrice *big.Rat, cfg config.Config) bool {
	if !b.Active || b.Outstanding.Sign() == 0 {
		return false
	}
	available := new(big.Int).Sub(b.Collateral, big.NewInt(cfg.CreationDepositMutez))
	if available.Sign() < 0 {
		return true
	}
	// required = ceil(ratio * (outstanding*price - at_auction)), in mutez.
	required := new(big.Rat).SetInt(b.Outstanding)
	required.Mul(required, liquidationPrice)
	required.Sub(required, new(big.Rat).SetInt(b.CollateralAtAuction))
	required.Mul(required, new(big.Rat).SetFrac(new(big.Int).SetUint64(cfg.LiquidationRatioBps), big.NewInt(10_000)))
	if required.Sign() <= 0 {
		return false
	}
	return available.Cmp(ceilRat(required)) < 0
}

// TouchFee reconciles the outstanding total against the current burrow fee
// index and returns the newly materialised fee kit. Rounding is upward so
// fees are never undercharged.
func (b *Burrow) TouchFee(feeIndex *big.Int, now int64) *big.Int {
	defer func() {
		b.FeeIndexSnapshot = new(big.Int).Set(feeIndex)
		b.LastTouched = now
	}()
	if b.Outstanding.Sign() == 0 || feeIndex.Cmp(b.FeeIndexSnapshot) <= 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(b.Outstanding, feeIndex)
	scaled.Add(scaled, new(big.Int).Sub(b.FeeIndexSnapshot, big.NewInt(1)))
	scaled.Quo(scaled, b.FeeIndexSnapshot)
	delta := new(big.Int).Sub(scaled, b.Outstanding)
	b.Outstanding = scaled
	return delta
}

// Deactivate winds the burrow down and returns the tez owed back. It fails
// while debt is outstanding, collateral is at auction, or the position is
// undercollateralized.
func (b *Burrow) Deactivate(mintingPrice *big.Rat, cfg config.Config) (*big.Int, error) {
	if !b.Active {
		return nil, ErrInactive
	}
	if b.Outstanding.Sign() > 0 {
		return nil, ErrOutstandingDebt
	}
	if b.CollateralAtAuction.Sign() > 0 || b.HasSlices() {
		return nil, ErrCollateralAtAuction
	}
	if b.IsOverburrowed(mintingPrice, cfg) {
		return nil, ErrOverburrowed
	}
	returned := b.Collateral
	b.Collateral = big.NewInt(0)
	b.Active = false
	return returned, nil
}

// Activate re-opens an inactive burrow with a fresh deposit.
func (b *Burrow) Activate(payment *big.Int, cfg config.Config) error {
	if b.Active {
		return ErrAlreadyActive
	}
	if payment == nil || payment.Cmp(big.NewInt(cfg.CreationDepositMutez)) < 0 {
		return ErrInsufficientFunds
	}
	b.Collateral = new(big.Int).Add(b.Collateral, payment)
	b.Active = true
	return nil
}

// covers reports whether collateral minus the reserved deposit values the
// outstanding kit at the given ratio. The kit side is ceiling-rounded so the
// guard errs against the burrow.
func covers(collateral, reserved, outstanding *big.Int, price *big.Rat, ratioBps uint64) bool {
	if outstanding.Sign() == 0 {
		return collateral.Cmp(reserved) >= 0
	}
	available := new(big.Int).Sub(collateral, reserved)
	if available.Sign() < 0 {
		return false
	}
	// required = ceil(outstanding * price * ratio / 10000), in mutez.
	required := new(big.Rat).SetInt(outstanding)
	required.Mul(required, price)
	required.Mul(required, new(big.Rat).SetFrac(new(big.Int).SetUint64(ratioBps), big.NewInt(10_000)))
	need := new(big.Int).Quo(required.Num(), required.Denom())
	if new(big.Int).Rem(required.Num(), required.Denom()).Sign() != 0 {
		need.Add(need, big.NewInt(1))
	}
	return available.Cmp(need) >= 0
}
