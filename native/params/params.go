package params

import (
	"errors"
	"math/big"

	"kitchain/config"
)

var (
	errNilIndex      = errors.New("params: price index must be positive")
	errTimeRegressed = errors.New("params: touch timestamp precedes last touch")
)

// ray is the fixed-point scale used for the q factor, the fee index and the
// drift rates.
var ray = big.NewInt(1_000_000_000_000_000_000)

const (
	secondsPerYear = 31_536_000

	// Drift acceleration brackets, ray-scaled per second squared. The low
	// value corresponds to 0.01 cNp/day^2, the high value to 0.05 cNp/day^2.
	lowAcceleration  = 13_396
	highAcceleration = 66_980

	// Deviation brackets between the pool's market price and the target
	// price, in basis points. Inside the low bracket the drift derivative
	// decays to zero.
	lowDeviationBps  = 50
	highDeviationBps = 500
)

// Parameters is the global accounting singleton: the price/drift model, the
// burrow fee index, and the kit counters every operation reconciles against.
type Parameters struct {
	// Q is the ray-scaled premium factor applied to both price indices.
	Q *big.Int
	// Index is the observed price in mutez per kit target unit, as supplied
	// by the caller of the last touch.
	Index *big.Int
	// ProtectedIndex trails Index under a rate clamp so that a manipulated
	// oracle reading cannot instantly reprice liquidations.
	ProtectedIndex *big.Int
	// Drift is the ray-scaled per-second rate applied to Q.
	Drift *big.Int
	// DriftDerivative is the ray-scaled per-second^2 adjustment to Drift.
	DriftDerivative *big.Int
	// BurrowFeeIndex compounds the burrowing fee charged on outstanding kit.
	BurrowFeeIndex *big.Int
	// OutstandingKit is the sum of all live burrows' minted kit, in mukit.
	OutstandingKit *big.Int
	// CirculatingKit is the total kit in existence, in mukit.
	CirculatingKit *big.Int
	// LastTouched is the timestamp of the last effective touch.
	LastTouched int64
}

// New returns freshly initialised parameters anchored at the given observed
// index and timestamp.
func New(index *big.Int, now int64) (*Parameters, error) {
	if index == nil || index.Sign() <= 0 {
		return nil, errNilIndex
	}
	return &Parameters{
		Q:               new(big.Int).Set(ray),
		Index:           new(big.Int).Set(index),
		ProtectedIndex:  new(big.Int).Set(index),
		Drift:           big.NewInt(0),
		DriftDerivative: big.NewInt(0),
		BurrowFeeIndex:  new(big.Int).Set(ray),
		OutstandingKit:  big.NewInt(0),
		CirculatingKit:  big.NewInt(0),
		LastTouched:     now,
	}, nil
}

// MintingPrice is the mutez-per-kit price used for minting and withdrawal
// guards: q * index.
func (p *Parameters) MintingPrice() *big.Rat {
	return new(big.Rat).SetFrac(new(big.Int).Mul(p.Q, p.Index), ray)
}

// LiquidationPrice is the mutez-per-kit price used for liquidation decisions:
// q * protected_index.
func (p *Parameters) LiquidationPrice() *big.Rat {
	return new(big.Rat).SetFrac(new(big.Int).Mul(p.Q, p.ProtectedIndex), ray)
}

// TouchReward computes the caller reward for a touch after `elapsed` seconds,
// using the two-bracket accrual: the low rate applies up to the bracket
// duration, the high rate beyond it. Both legs are ceiling-rounded so a
// non-zero wait always pays at least one mukit.
func TouchReward(elapsed int64, cfg config.Config) *big.Int {
	if elapsed <= 0 {
		return big.NewInt(0)
	}
	lowSeconds := elapsed
	if lowSeconds > cfg.TouchRewardBracketSeconds {
		lowSeconds = cfg.TouchRewardBracketSeconds
	}
	highSeconds := elapsed - lowSeconds
	reward := ceilDiv(new(big.Int).Mul(big.NewInt(lowSeconds), big.NewInt(cfg.TouchLowRewardMukitPerMinute)), sixty)
	if highSeconds > 0 {
		high := ceilDiv(new(big.Int).Mul(big.NewInt(highSeconds), big.NewInt(cfg.TouchHighRewardMukitPerMinute)), sixty)
		reward.Add(reward, high)
	}
	return reward
}

var sixty = big.NewInt(60)

// Touch advances the price/drift model to `now` against the caller-supplied
// observed index and the pool's start-of-level market price, and returns the
// kit accrued to the liquidity pool by the burrowing fee since the previous
// touch. A nil market price (empty pool) leaves the drift derivative at zero.
// Callers must have handled the idempotence check already; a regressed
// timestamp is an error.
func (p *Parameters) Touch(now int64, index *big.Int, marketPrice *big.Rat, cfg config.Config) (*big.Int, error) {
	if index == nil || index.Sign() <= 0 {
		return nil, errNilIndex
	}
	if now < p.LastTouched {
		return nil, errTimeRegressed
	}
	elapsed := now - p.LastTouched
	if elapsed == 0 {
		return big.NewInt(0), nil
	}

	p.Index = new(big.Int).Set(index)
	p.advanceProtectedIndex(elapsed, cfg)
	p.advanceDrift(elapsed, marketPrice)
	accrual := p.accrueBurrowFee(elapsed, cfg)
	p.LastTouched = now
	return accrual, nil
}

// advanceProtectedIndex moves the protected index toward the observed index,
// clamped to the configured basis points per minute.
func (p *Parameters) advanceProtectedIndex(elapsed int64, cfg config.Config) {
	diff := new(big.Int).Sub(p.Index, p.ProtectedIndex)
	if diff.Sign() == 0 {
		return
	}
	maxMove := new(big.Int).Mul(p.ProtectedIndex, new(big.Int).SetUint64(cfg.ProtectedIndexMaxDriftBpsPerMinute))
	maxMove.Mul(maxMove, big.NewInt(elapsed))
	maxMove.Quo(maxMove, big.NewInt(10_000*60))
	if maxMove.Sign() == 0 {
		maxMove = big.NewInt(1)
	}
	if diff.CmpAbs(maxMove) <= 0 {
		p.ProtectedIndex = new(big.Int).Set(p.Index)
		return
	}
	if diff.Sign() > 0 {
		p.ProtectedIndex = new(big.Int).Add(p.ProtectedIndex, maxMove)
	} else {
		p.ProtectedIndex = new(big.Int).Sub(p.ProtectedIndex, maxMove)
	}
}

// advanceDrift updates the drift derivative from the deviation between the
// market price and the target price q*index, integrates it into the drift,
// and applies the drift to q. A market price above the target accelerates q
// downward so minting gets cheaper and supply expands against the premium.
func (p *Parameters) advanceDrift(elapsed int64, marketPrice *big.Rat) {
	accel := big.NewInt(0)
	if marketPrice != nil {
		switch dev := priceDeviationBps(marketPrice, p.MintingPrice()); {
		case dev > -lowDeviationBps && dev < lowDeviationBps:
		case dev >= highDeviationBps:
			accel = big.NewInt(-highAcceleration)
		case dev >= lowDeviationBps:
			accel = big.NewInt(-lowAcceleration)
		case dev <= -highDeviationBps:
			accel = big.NewInt(highAcceleration)
		default:
			accel = big.NewInt(lowAcceleration)
		}
	}
	p.DriftDerivative = new(big.Int).Set(accel)

	dt := big.NewInt(elapsed)
	// q' = q * (1 + drift*dt + accel*dt^2/2), all ray-scaled.
	delta := new(big.Int).Mul(p.Drift, dt)
	half := new(big.Int).Mul(accel, new(big.Int).Mul(dt, dt))
	half.Quo(half, big.NewInt(2))
	delta.Add(delta, half)
	factor := new(big.Int).Add(ray, delta)
	if factor.Sign() <= 0 {
		factor = big.NewInt(1)
	}
	p.Q = new(big.Int).Quo(new(big.Int).Mul(p.Q, factor), ray)
	if p.Q.Sign() <= 0 {
		p.Q = big.NewInt(1)
	}
	p.Drift = new(big.Int).Add(p.Drift, new(big.Int).Mul(accel, dt))
}

// accrueBurrowFee compounds the fee index and returns the kit the pool earned
// on the outstanding total over the elapsed time.
func (p *Parameters) accrueBurrowFee(elapsed int64, cfg config.Config) *big.Int {
	growth := new(big.Int).Mul(p.BurrowFeeIndex, new(big.Int).SetUint64(cfg.BurrowFeeAnnualBps))
	growth.Mul(growth, big.NewInt(elapsed))
	growth.Quo(growth, big.NewInt(10_000*secondsPerYear))
	if growth.Sign() == 0 {
		return big.NewInt(0)
	}
	oldIndex := new(big.Int).Set(p.BurrowFeeIndex)
	p.BurrowFeeIndex = new(big.Int).Add(p.BurrowFeeIndex, growth)

	if p.OutstandingKit.Sign() == 0 {
		return big.NewInt(0)
	}
	accrual := new(big.Int).Mul(p.OutstandingKit, growth)
	accrual.Quo(accrual, oldIndex)
	return accrual
}

// priceDeviationBps returns (market-target)/target in basis points, truncated
// toward zero and saturated to int64 range.
func priceDeviationBps(market, target *big.Rat) int64 {
	if target.Sign() <= 0 {
		return 0
	}
	diff := new(big.Rat).Sub(market, target)
	diff.Quo(diff, target)
	diff.Mul(diff, new(big.Rat).SetInt64(10_000))
	out := new(big.Int).Quo(diff.Num(), diff.Denom())
	if !out.IsInt64() {
		if out.Sign() > 0 {
			return 1 << 40
		}
		return -(1 << 40)
	}
	return out.Int64()
}

// Ray exposes the fixed-point scale for callers that reconcile against the
// fee index.
func Ray() *big.Int { return new(big.Int).Set(ray) }

func ceilDiv(num, den *big.Int) *big.Int {
	if den.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Add(num, new(big.Int).Sub(den, big.NewInt(1)))
	return out.Quo(out, den)
}

