package burrow

import (
	"errors"
	"math/big"

	"kitchain/core/types"
)

var (
	ErrNoTicket           = errors.New("burrow: no permission ticket presented")
	ErrTicketConsumed     = errors.New("burrow: permission ticket already used")
	ErrForeignTicket      = errors.New("burrow: ticket was not issued by this contract")
	ErrTicketValue        = errors.New("burrow: ticket must carry a zero amount")
	ErrStaleTicket        = errors.New("burrow: ticket version has been invalidated")
	ErrWrongBurrow        = errors.New("burrow: ticket addresses a different burrow")
	ErrInsufficientRights = errors.New("burrow: ticket rights do not cover the operation")
)

// Rights is the small enumerated permission set carried by a ticket. Admin
// implies every other right.
type Rights uint8

const (
	RightAdmin Rights = 1 << iota
	RightDepositTez
	RightWithdrawTez
	RightMintKit
	RightBurnKit
	RightSetDelegate
)

// Allows reports whether the held rights cover the needed ones.
func (r Rights) Allows(need Rights) bool {
	if r&RightAdmin != 0 {
		return true
	}
	return r&need == need
}

// PermissionTicket is the linear capability proof for burrow operations: the
// issuer must be the contract itself, the carried amount must be zero, and
// the payload binds a rights set to one burrow at one permission version.
// Validation consumes the ticket; a fresh one must be minted explicitly.
type PermissionTicket struct {
	Issuer  types.Address
	Amount  *big.Int
	Rights  Rights
	Burrow  types.BurrowID
	Version uint64

	consumed bool
}

// MintTicket issues a fresh ticket bound to the burrow's current permission
// version.
func MintTicket(issuer types.Address, rights Rights, id types.BurrowID, version uint64) *PermissionTicket {
	return &PermissionTicket{
		Issuer:  issuer,
		Amount:  big.NewInt(0),
		Rights:  rights,
		Burrow:  id,
		Version: version,
	}
}

// Consumed reports whether the ticket has already authorized an operation.
func (t *PermissionTicket) Consumed() bool { return t != nil && t.consumed }

// ValidateTicket checks a presented ticket against the contract identity and
// the burrow's current version, and consumes it on success. A consumed
// ticket never validates again.
func ValidateTicket(t *PermissionTicket, self types.Address, id types.BurrowID, version uint64, need Rights) error {
	if t == nil {
		return ErrNoTicket
	}
	if t.consumed {
		return ErrTicketConsumed
	}
	if t.Issuer != self {
		return ErrForeignTicket
	}
	if t.Amount != nil && t.Amount.Sign() != 0 {
		return ErrTicketValue
	}
	if t.Burrow != id {
		return ErrWrongBurrow
	}
	if t.Version != version {
		return ErrStaleTicket
	}
	if !t.Rights.Allows(need) {
		return ErrInsufficientRights
	}
	t.consumed = true
	return nil
}
