package core

import (
	"math/big"

	"kitchain/core/events"
	"kitchain/core/types"
	"kitchain/native/burrow"
)

// CreateBurrow opens a new position funded by the attached payment and mints
// the initial admin ticket. The payment must cover the creation deposit.
func (s *State) CreateBurrow(call types.CallEnv, blk types.BlockEnv) (types.BurrowID, *burrow.PermissionTicket, error) {
	payment := call.AttachedAmount()
	if payment.Cmp(big.NewInt(s.cfg.CreationDepositMutez)) < 0 {
		return 0, nil, ErrInsufficientPayment
	}
	id := s.NextBurrow
	s.NextBurrow++
	s.Burrows[id] = burrow.New(payment, s.Params.BurrowFeeIndex, blk.Now)
	ticket := burrow.MintTicket(blk.Self, burrow.RightAdmin, id, 0)
	s.emitter.Emit(events.BurrowCreated{ID: id, Owner: call.Sender, Collateral: payment})
	return id, ticket, nil
}

// TouchBurrow reconciles the burrow's outstanding kit against the global
// burrow fee index and returns the fee kit materialised.
func (s *State) TouchBurrow(blk types.BlockEnv, id types.BurrowID) (*big.Int, error) {
	b, err := s.readyBurrow(id)
	if err != nil {
		return nil, err
	}
	delta := b.TouchFee(s.Params.BurrowFeeIndex, blk.Now)
	s.Params.OutstandingKit = new(big.Int).Add(s.Params.OutstandingKit, delta)
	s.Params.CirculatingKit = new(big.Int).Add(s.Params.CirculatingKit, delta)
	return delta, nil
}

// DepositTez adds the attached payment to the burrow's collateral. Ticketless
// deposits are allowed when the burrow opted into open deposits.
func (s *State) DepositTez(call types.CallEnv, blk types.BlockEnv, id types.BurrowID, ticket *burrow.PermissionTicket) error {
	b, err := s.readyBurrow(id)
	if err != nil {
		return err
	}
	probe := *b
	if err := probe.DepositTez(call.AttachedAmount()); err != nil {
		return err
	}
	if err := s.authorize(b, id, blk, ticket, burrow.RightDepositTez, b.AllowAllTezDeposits); err != nil {
		return err
	}
	*b = probe
	return nil
}

// WithdrawTez releases collateral to the given recipient, provided the
// position stays above the minting ratio and the creation deposit stays
// intact.
func (s *State) WithdrawTez(call types.CallEnv, blk types.BlockEnv, id types.BurrowID, amount *big.Int, recipient types.Address, ticket *burrow.PermissionTicket) (types.Payment, error) {
	if call.AttachedAmount().Sign() != 0 {
		return types.Payment{}, ErrNoPayment
	}
	b, err := s.readyBurrow(id)
	if err != nil {
		return types.Payment{}, err
	}
	probe := *b
	if err := probe.WithdrawTez(amount, s.Params.MintingPrice(), s.cfg); err != nil {
		return types.Payment{}, err
	}
	if err := s.authorize(b, id, blk, ticket, burrow.RightWithdrawTez, false); err != nil {
		return types.Payment{}, err
	}
	*b = probe
	return types.NewPayment(recipient, amount), nil
}

// MintKit creates new kit against the burrow's collateral.
func (s *State) MintKit(call types.CallEnv, blk types.BlockEnv, id types.BurrowID, amount *big.Int, ticket *burrow.PermissionTicket) error {
	if call.AttachedAmount().Sign() != 0 {
		return ErrNoPayment
	}
	b, err := s.readyBurrow(id)
	if err != nil {
		return err
	}
	probe := *b
	if err := probe.MintKit(amount, s.Params.MintingPrice(), s.cfg); err != nil {
		return err
	}
	if err := s.authorize(b, id, blk, ticket, burrow.RightMintKit, false); err != nil {
		return err
	}
	*b = probe
	s.mintKitSupply(amount)
	return nil
}

// BurnKit repays outstanding kit, capped at the debt; the surplus stays with
// the caller. Ticketless burns are allowed when the burrow opted in.
func (s *State) BurnKit(call types.CallEnv, blk types.BlockEnv, id types.BurrowID, amount *big.Int, ticket *burrow.PermissionTicket) (*big.Int, error) {
	if call.AttachedAmount().Sign() != 0 {
		return nil, ErrNoPayment
	}
	b, err := s.readyBurrow(id)
	if err != nil {
		return nil, err
	}
	probe := *b
	burned, err := probe.BurnKit(amount)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(b, id, blk, ticket, burrow.RightBurnKit, b.AllowAllKitBurns); err != nil {
		return nil, err
	}
	*b = probe
	s.burnKitSupply(burned, burned)
	return burned, nil
}

// SetBurrowDelegate points the burrow's collateral at a staking delegate.
func (s *State) SetBurrowDelegate(blk types.BlockEnv, id types.BurrowID, delegate types.Address, ticket *burrow.PermissionTicket) error {
	b, err := s.readyBurrow(id)
	if err != nil {
		return err
	}
	if !b.Active {
		return burrow.ErrInactive
	}
	if err := s.authorize(b, id, blk, ticket, burrow.RightSetDelegate, false); err != nil {
		return err
	}
	b.Delegate = delegate
	return nil
}

// SetAllowAllTezDeposits toggles ticketless deposits. Admin only.
func (s *State) SetAllowAllTezDeposits(blk types.BlockEnv, id types.BurrowID, allow bool, ticket *burrow.PermissionTicket) error {
	b, err := s.readyBurrow(id)
	if err != nil {
		return err
	}
	if err := s.authorize(b, id, blk, ticket, burrow.RightAdmin, false); err != nil {
		return err
	}
	b.AllowAllTezDeposits = allow
	return nil
}

// SetAllowAllKitBurns toggles ticketless burns. Admin only.
func (s *State) SetAllowAllKitBurns(blk types.BlockEnv, id types.BurrowID, allow bool, ticket *burrow.PermissionTicket) error {
	b, err := s.readyBurrow(id)
	if err != nil {
		return err
	}
	if err := s.authorize(b, id, blk, ticket, burrow.RightAdmin, false); err != nil {
		return err
	}
	b.AllowAllKitBurns = allow
	return nil
}

// ActivateBurrow re-opens a deactivated burrow with the attached payment as a
// fresh deposit. Admin only.
func (s *State) ActivateBurrow(call types.CallEnv, blk types.BlockEnv, id types.BurrowID, ticket *burrow.PermissionTicket) error {
	b, err := s.readyBurrow(id)
	if err != nil {
		return err
	}
	probe := *b
	if err := probe.Activate(call.AttachedAmount(), s.cfg); err != nil {
		return err
	}
	if err := s.authorize(b, id, blk, ticket, burrow.RightAdmin, false); err != nil {
		return err
	}
	*b = probe
	return nil
}

// DeactivateBurrow winds the burrow down and pays the collateral to the given
// recipient. Admin only; fails while debt is outstanding or collateral sits
// at auction.
func (s *State) DeactivateBurrow(call types.CallEnv, blk types.BlockEnv, id types.BurrowID, recipient types.Address, ticket *burrow.PermissionTicket) (types.Payment, error) {
	b, err := s.readyBurrow(id)
	if err != nil {
		return types.Payment{}, err
	}
	probe := *b
	returned, err := probe.Deactivate(s.Params.MintingPrice(), s.cfg)
	if err != nil {
		return types.Payment{}, err
	}
	if err := s.authorize(b, id, blk, ticket, burrow.RightAdmin, false); err != nil {
		return types.Payment{}, err
	}
	*b = probe
	s.emitter.Emit(events.BurrowDeactivated{ID: id, Recipient: recipient, Returned: returned})
	return types.NewPayment(recipient, returned), nil
}

// MakePermission consumes an admin ticket and mints a ticket carrying the
// requested rights at the burrow's current version, together with a
// replacement admin ticket. Without the replacement the permission chain
// would dead-end after the first mint.
func (s *State) MakePermission(blk types.BlockEnv, id types.BurrowID, rights burrow.Rights, ticket *burrow.PermissionTicket) (minted, admin *burrow.PermissionTicket, err error) {
	b, err := s.readyBurrow(id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authorize(b, id, blk, ticket, burrow.RightAdmin, false); err != nil {
		return nil, nil, err
	}
	minted = burrow.MintTicket(blk.Self, rights, id, b.PermissionVersion)
	admin = burrow.MintTicket(blk.Self, burrow.RightAdmin, id, b.PermissionVersion)
	return minted, admin, nil
}

// InvalidateAllPermissions bumps the burrow's permission version, voiding
// every outstanding ticket, and mints one fresh admin ticket.
func (s *State) InvalidateAllPermissions(blk types.BlockEnv, id types.BurrowID, ticket *burrow.PermissionTicket) (*burrow.PermissionTicket, error) {
	b, err := s.readyBurrow(id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(b, id, blk, ticket, burrow.RightAdmin, false); err != nil {
		return nil, err
	}
	b.PermissionVersion++
	return burrow.MintTicket(blk.Self, burrow.RightAdmin, id, b.PermissionVersion), nil
}
