package types

import (
	"encoding/hex"
	"math/big"
)

// Address identifies a participant on the host chain. The core never
// interprets the bytes beyond equality checks and event formatting.
type Address [20]byte

// AddressFromBytes copies up to twenty bytes into an Address. Shorter inputs
// are left-padded with zeroes.
func AddressFromBytes(b []byte) Address {
	var addr Address
	if len(b) > len(addr) {
		b = b[len(b)-len(addr):]
	}
	copy(addr[len(addr)-len(b):], b)
	return addr
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, len(a))
	copy(out, a[:])
	return out
}

// IsZero reports whether the address is the all-zero placeholder.
func (a Address) IsZero() bool {
	for _, b := range a {
		if b != 0 {
			return false
		}
	}
	return true
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// BurrowID identifies a single collateralized position. IDs are allocated
// monotonically by the state and never reused.
type BurrowID uint64

// CallEnv carries the caller-supplied portion of an external call: who sent
// it and how much native currency (mutez) travelled with it.
type CallEnv struct {
	Sender Address
	Amount *big.Int
}

// AttachedAmount returns the payment attached to the call, normalising nil
// to zero.
func (c CallEnv) AttachedAmount() *big.Int {
	if c.Amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(c.Amount)
}

// BlockEnv carries the execution context the host chain exposes to the
// contract: the timestamp and level of the current block plus the contract's
// own identity, used as the issuer of every permission ticket.
type BlockEnv struct {
	Now   int64
	Level uint64
	Self  Address
}

// Payment describes native currency owed back to a caller-specified
// destination at the end of a successful call. The environment performs the
// actual transfer; the core only records the obligation.
type Payment struct {
	Destination Address
	Amount      *big.Int
}

// NewPayment builds a payment descriptor, normalising a nil amount to zero.
func NewPayment(dest Address, amount *big.Int) Payment {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return Payment{Destination: dest, Amount: new(big.Int).Set(amount)}
}
