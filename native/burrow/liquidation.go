package burrow

import (
	"errors"
	"math/big"

	"kitchain/config"
)

// ErrNotLiquidationCandidate distinguishes an unnecessary liquidation request
// from the other classifications.
var ErrNotLiquidationCandidate = errors.New("burrow: not a liquidation candidate")

// Classification names the outcome of a liquidation request.
type Classification uint8

const (
	// Partial sends a computed portion of the collateral to auction; the
	// burrow keeps operating.
	Partial Classification = iota + 1
	// Complete sends everything above the creation deposit to auction.
	Complete
	// Close sends all remaining collateral to auction and deactivates the
	// burrow.
	Close
)

func (c Classification) String() string {
	switch c {
	case Partial:
		return "partial"
	case Complete:
		return "complete"
	case Close:
		return "close"
	default:
		return "unknown"
	}
}

// LiquidationDetails is the computed plan for one mark-for-liquidation call.
type LiquidationDetails struct {
	Classification Classification
	// SliceTez is the collateral sent to auction, in mutez.
	SliceTez *big.Int
	// Reward is the tez paid to the caller, in mutez.
	Reward *big.Int
	// MinKitForUnwarranted is the proceeds threshold recorded on the slice:
	// repayments below it mean the liquidation was warranted and the
	// penalty applies.
	MinKitForUnwarranted *big.Int
}

// ComputeLiquidation classifies a liquidation request against the current
// prices. The slice amount is chosen so that selling it at the liquidation
// price restores the burrow to the target (minting) ratio exactly:
//
//	slice = ceil( p_liq * (f*k*p_mint - c) / (f*p_mint - p_liq) )
//
// with f the minting ratio, k the outstanding kit and c the collateral above
// the creation deposit after the reward. Rounding is upward so the burrow is
// never left marginally liquidatable.
func ComputeLiquidation(b *Burrow, mintingPrice, liquidationPrice *big.Rat, cfg config.Config) (*LiquidationDetails, error) {
	if !b.Active {
		return nil, ErrInactive
	}
	if b.Outstanding.Sign() == 0 || !b.IsLiquidatable(liquidationPrice, cfg) {
		return nil, ErrNotLiquidationCandidate
	}

	deposit := big.NewInt(cfg.CreationDepositMutez)

	reward := new(big.Int).Mul(b.Collateral, new(big.Int).SetUint64(cfg.LiquidationRewardBps))
	reward.Quo(reward, big.NewInt(10_000))
	reward.Add(reward, deposit)
	if reward.Cmp(b.Collateral) > 0 {
		reward = new(big.Int).Set(b.Collateral)
	}

	afterReward := new(big.Int).Sub(b.Collateral, reward)
	details := &LiquidationDetails{Reward: reward}

	if afterReward.Cmp(deposit) <= 0 {
		details.Classification = Close
		details.SliceTez = afterReward
		details.MinKitForUnwarranted = ceilRatQuo(afterReward, liquidationPrice)
		return details, nil
	}

	effective := new(big.Int).Sub(afterReward, deposit)
	ratio := new(big.Rat).SetFrac(new(big.Int).SetUint64(cfg.MintingRatioBps), big.NewInt(10_000))
	fpm := new(big.Rat).Mul(ratio, mintingPrice)

	// denominator: f*p_mint - p_liq
	den := new(big.Rat).Sub(fpm, liquidationPrice)
	if den.Sign() <= 0 {
		details.Classification = Complete
		details.SliceTez = effective
		details.MinKitForUnwarranted = ceilRatQuo(effective, liquidationPrice)
		return details, nil
	}

	// numerator: p_liq * (f*k*p_mint - c) - f*p_mint*at_auction, crediting
	// the kit the pending slices are expected to fetch.
	num := new(big.Rat).Mul(fpm, new(big.Rat).SetInt(b.Outstanding))
	num.Sub(num, new(big.Rat).SetInt(effective))
	num.Mul(num, liquidationPrice)
	num.Sub(num, new(big.Rat).Mul(fpm, new(big.Rat).SetInt(b.CollateralAtAuction)))

	slice := ceilRat(new(big.Rat).Quo(num, den))
	if slice.Sign() <= 0 {
		slice = big.NewInt(1)
	}
	if slice.Cmp(effective) < 0 {
		details.Classification = Partial
		details.SliceTez = slice
	} else {
		details.Classification = Complete
		details.SliceTez = effective
	}
	details.MinKitForUnwarranted = ceilRatQuo(details.SliceTez, liquidationPrice)
	return details, nil
}

// ceilRatQuo divides tez by a mutez-per-kit price and rounds the kit up.
func ceilRatQuo(tez *big.Int, price *big.Rat) *big.Int {
	if price.Sign() <= 0 {
		return big.NewInt(0)
	}
	return ceilRat(new(big.Rat).Quo(new(big.Rat).SetInt(tez), price))
}

func ceilRat(r *big.Rat) *big.Int {
	out := new(big.Int).Quo(r.Num(), r.Denom())
	if new(big.Int).Rem(r.Num(), r.Denom()).Sign() != 0 && r.Sign() > 0 {
		out.Add(out, big.NewInt(1))
	}
	return out
}
