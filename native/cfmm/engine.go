package cfmm

import (
	"errors"
	"math/big"

	"kitchain/config"
)

var (
	ErrInvalidAmount         = errors.New("cfmm: amount must be positive")
	ErrDeadlinePassed        = errors.New("cfmm: deadline has passed")
	ErrEmptyPool             = errors.New("cfmm: pool has no liquidity")
	ErrSlippage              = errors.New("cfmm: quote breaches the slippage bound")
	ErrInsufficientLiquidity = errors.New("cfmm: not enough liquidity tokens")
	ErrPoolDrained           = errors.New("cfmm: operation would empty a reserve")
)

// Pool is the tez/kit constant-product market maker. Reserves are mutez and
// mukit; liquidity tokens are an internal unit minted pro rata against the
// tez side.
type Pool struct {
	Tez            *big.Int
	Kit            *big.Int
	TotalLiquidity *big.Int

	// RateTez/RateKit snapshot the reserves as they stood at the start of
	// RateLevel, giving a same-block-manipulation-resistant exchange rate.
	RateTez   *big.Int
	RateKit   *big.Int
	RateLevel uint64
}

// New returns an empty pool. The first AddLiquidity call seeds both reserves
// and fixes the initial exchange rate.
func New() *Pool {
	return &Pool{
		Tez:            big.NewInt(0),
		Kit:            big.NewInt(0),
		TotalLiquidity: big.NewInt(0),
		RateTez:        big.NewInt(0),
		RateKit:        big.NewInt(0),
	}
}

// ObserveRate records the reserve ratio on the first pool access of a new
// level, before the access mutates the reserves.
func (p *Pool) ObserveRate(level uint64) {
	if level <= p.RateLevel {
		return
	}
	p.RateTez = new(big.Int).Set(p.Tez)
	p.RateKit = new(big.Int).Set(p.Kit)
	p.RateLevel = level
}

// PrevBlockRate is the mutez-per-mukit rate snapshotted at the start of the
// last level that touched the pool. It is nil while no snapshot with
// liquidity exists.
func (p *Pool) PrevBlockRate() *big.Rat {
	if p.RateKit.Sign() == 0 || p.RateTez.Sign() == 0 {
		return nil
	}
	return new(big.Rat).SetFrac(p.RateTez, p.RateKit)
}

// TezPerKit is the pool's spot price in mutez per mukit. It is nil while the
// pool is empty.
func (p *Pool) TezPerKit() *big.Rat {
	if p.Kit.Sign() == 0 || p.Tez.Sign() == 0 {
		return nil
	}
	return new(big.Rat).SetFrac(p.Tez, p.Kit)
}

// BuyKit swaps tez for kit. The fee is charged on the tez paid in; the kit
// out is floor-rounded so the product never decreases.
func (p *Pool) BuyKit(tezIn, minKitOut *big.Int, deadline, now int64, cfg config.Config) (*big.Int, error) {
	if err := p.checkSwap(tezIn, deadline, now); err != nil {
		return nil, err
	}
	kitOut := quote(tezIn, p.Tez, p.Kit, cfg.CfmmFeeBps)
	if kitOut.Sign() <= 0 || kitOut.Cmp(p.Kit) >= 0 {
		return nil, ErrPoolDrained
	}
	if minKitOut != nil && kitOut.Cmp(minKitOut) < 0 {
		return nil, ErrSlippage
	}
	p.Tez = new(big.Int).Add(p.Tez, tezIn)
	p.Kit = new(big.Int).Sub(p.Kit, kitOut)
	return kitOut, nil
}

// SellKit swaps kit for tez. The fee is charged on the kit paid in.
func (p *Pool) SellKit(kitIn, minTezOut *big.Int, deadline, now int64, cfg config.Config) (*big.Int, error) {
	if err := p.checkSwap(kitIn, deadline, now); err != nil {
		return nil, err
	}
	tezOut := quote(kitIn, p.Kit, p.Tez, cfg.CfmmFeeBps)
	if tezOut.Sign() <= 0 || tezOut.Cmp(p.Tez) >= 0 {
		return nil, ErrPoolDrained
	}
	if minTezOut != nil && tezOut.Cmp(minTezOut) < 0 {
		return nil, ErrSlippage
	}
	p.Kit = new(big.Int).Add(p.Kit, kitIn)
	p.Tez = new(big.Int).Sub(p.Tez, tezOut)
	return tezOut, nil
}

// AddLiquidity deposits tez plus the matching kit and mints liquidity tokens.
// The kit actually drawn and the tokens minted are returned; kit is rounded
// up and tokens down so existing holders are never diluted.
func (p *Pool) AddLiquidity(tezIn, maxKitIn, minLiquidity *big.Int, deadline, now int64) (liquidity, kitUsed *big.Int, err error) {
	if now > deadline {
		return nil, nil, ErrDeadlinePassed
	}
	if tezIn == nil || tezIn.Sign() <= 0 || maxKitIn == nil || maxKitIn.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	if p.TotalLiquidity.Sign() == 0 {
		liquidity = new(big.Int).Set(tezIn)
		kitUsed = new(big.Int).Set(maxKitIn)
	} else {
		// kitUsed = ceil(tezIn * kit / tez)
		kitUsed = new(big.Int).Mul(tezIn, p.Kit)
		kitUsed.Add(kitUsed, new(big.Int).Sub(p.Tez, big.NewInt(1)))
		kitUsed.Quo(kitUsed, p.Tez)
		if kitUsed.Cmp(maxKitIn) > 0 {
			return nil, nil, ErrSlippage
		}
		// liquidity = floor(tezIn * total / tez)
		liquidity = new(big.Int).Mul(tezIn, p.TotalLiquidity)
		liquidity.Quo(liquidity, p.Tez)
	}
	if liquidity.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if minLiquidity != nil && liquidity.Cmp(minLiquidity) < 0 {
		return nil, nil, ErrSlippage
	}

	p.Tez = new(big.Int).Add(p.Tez, tezIn)
	p.Kit = new(big.Int).Add(p.Kit, kitUsed)
	p.TotalLiquidity = new(big.Int).Add(p.TotalLiquidity, liquidity)
	return liquidity, kitUsed, nil
}

// RemoveLiquidity burns liquidity tokens and pays out both reserves pro rata,
// floor-rounded on both sides.
func (p *Pool) RemoveLiquidity(liquidity, minTezOut, minKitOut *big.Int, deadline, now int64) (tezOut, kitOut *big.Int, err error) {
	if now > deadline {
		return nil, nil, ErrDeadlinePassed
	}
	if liquidity == nil || liquidity.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if p.TotalLiquidity.Sign() == 0 {
		return nil, nil, ErrEmptyPool
	}
	if liquidity.Cmp(p.TotalLiquidity) > 0 {
		return nil, nil, ErrInsufficientLiquidity
	}

	tezOut = new(big.Int).Mul(liquidity, p.Tez)
	tezOut.Quo(tezOut, p.TotalLiquidity)
	kitOut = new(big.Int).Mul(liquidity, p.Kit)
	kitOut.Quo(kitOut, p.TotalLiquidity)
	if minTezOut != nil && tezOut.Cmp(minTezOut) < 0 {
		return nil, nil, ErrSlippage
	}
	if minKitOut != nil && kitOut.Cmp(minKitOut) < 0 {
		return nil, nil, ErrSlippage
	}

	p.Tez = new(big.Int).Sub(p.Tez, tezOut)
	p.Kit = new(big.Int).Sub(p.Kit, kitOut)
	p.TotalLiquidity = new(big.Int).Sub(p.TotalLiquidity, liquidity)
	return tezOut, kitOut, nil
}

// AddAccruedKit feeds burrowing fees into the kit reserve without moving tez.
// Only the touch driver calls it; a zero accrual is a no-op.
func (p *Pool) AddAccruedKit(kit *big.Int) {
	if kit == nil || kit.Sign() <= 0 {
		return
	}
	p.Kit = new(big.Int).Add(p.Kit, kit)
}

func (p *Pool) checkSwap(in *big.Int, deadline, now int64) error {
	if now > deadline {
		return ErrDeadlinePassed
	}
	if in == nil || in.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if p.Tez.Sign() == 0 || p.Kit.Sign() == 0 {
		return ErrEmptyPool
	}
	return nil
}

// quote prices an input against the constant product with the fee taken from
// the input side:
//
//	out = reserveOut * in*(10000-fee) / (reserveIn*10000 + in*(10000-fee))
func quote(in, reserveIn, reserveOut *big.Int, feeBps uint64) *big.Int {
	inNet := new(big.Int).Mul(in, new(big.Int).SetUint64(10_000-feeBps))
	num := new(big.Int).Mul(reserveOut, inNet)
	den := new(big.Int).Mul(reserveIn, big.NewInt(10_000))
	den.Add(den, inNet)
	return num.Quo(num, den)
}
