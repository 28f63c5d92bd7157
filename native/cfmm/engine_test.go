package cfmm

import (
	"errors"
	"math/big"
	"testing"

	"kitchain/config"
)

func seededPool(t *testing.T) *Pool {
	t.Helper()
	p := New()
	if _, _, err := p.AddLiquidity(big.NewInt(1_000_000), big.NewInt(1_000_000), nil, 10, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return p
}

func TestBuyKitQuote(t *testing.T) {
	cfg := config.Default()
	p := seededPool(t)

	out, err := p.BuyKit(big.NewInt(100_000), big.NewInt(90_743), 10, 0, cfg)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	// 0.2% fee on the input, floor-rounded output.
	if out.Cmp(big.NewInt(90_743)) != 0 {
		t.Fatalf("kit out %s", out)
	}
	if p.Tez.Cmp(big.NewInt(1_100_000)) != 0 || p.Kit.Cmp(big.NewInt(909_257)) != 0 {
		t.Fatalf("reserves %s/%s", p.Tez, p.Kit)
	}

	// The product never decreases across a swap.
	product := new(big.Int).Mul(p.Tez, p.Kit)
	if product.Cmp(big.NewInt(1_000_000_000_000)) < 0 {
		t.Fatalf("product shrank: %s", product)
	}
}

func TestSellKitQuote(t *testing.T) {
	cfg := config.Default()
	p := seededPool(t)

	out, err := p.SellKit(big.NewInt(50_000), nil, 10, 0, cfg)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if out.Cmp(big.NewInt(47_528)) != 0 {
		t.Fatalf("tez out %s", out)
	}
	if p.Kit.Cmp(big.NewInt(1_050_000)) != 0 || p.Tez.Cmp(big.NewInt(952_472)) != 0 {
		t.Fatalf("reserves %s/%s", p.Tez, p.Kit)
	}
}

func TestSwapGuards(t *testing.T) {
	cfg := config.Default()
	p := seededPool(t)

	if _, err := p.BuyKit(big.NewInt(100), nil, 5, 6, cfg); !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("late swap accepted: %v", err)
	}
	if _, err := p.BuyKit(big.NewInt(0), nil, 10, 0, cfg); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero swap accepted: %v", err)
	}
	if _, err := p.BuyKit(big.NewInt(100_000), big.NewInt(90_744), 10, 0, cfg); !errors.Is(err, ErrSlippage) {
		t.Fatalf("slippage bound ignored: %v", err)
	}

	empty := New()
	if _, err := empty.SellKit(big.NewInt(100), nil, 10, 0, cfg); !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("empty pool quoted: %v", err)
	}
}

func TestAddLiquidityProRata(t *testing.T) {
	p := seededPool(t)

	liq, kit, err := p.AddLiquidity(big.NewInt(250_000), big.NewInt(250_000), nil, 10, 0)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if liq.Cmp(big.NewInt(250_000)) != 0 || kit.Cmp(big.NewInt(250_000)) != 0 {
		t.Fatalf("minted %s for %s kit", liq, kit)
	}
	if p.TotalLiquidity.Cmp(big.NewInt(1_250_000)) != 0 {
		t.Fatalf("total liquidity %s", p.TotalLiquidity)
	}

	if _, _, err := p.AddLiquidity(big.NewInt(250_000), big.NewInt(249_999), nil, 10, 0); !errors.Is(err, ErrSlippage) {
		t.Fatalf("max-kit bound ignored: %v", err)
	}
}

func TestRemoveLiquidity(t *testing.T) {
	p := seededPool(t)

	tez, kit, err := p.RemoveLiquidity(big.NewInt(125_000), nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if tez.Cmp(big.NewInt(125_000)) != 0 || kit.Cmp(big.NewInt(125_000)) != 0 {
		t.Fatalf("payout %s/%s", tez, kit)
	}

	if _, _, err := p.RemoveLiquidity(big.NewInt(1_000_000), nil, nil, 10, 0); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("overdrawn removal allowed: %v", err)
	}
}

func TestObserveRateSnapshotsPerLevel(t *testing.T) {
	cfg := config.Default()
	p := seededPool(t)

	if p.PrevBlockRate() != nil {
		t.Fatalf("rate before any snapshot: %s", p.PrevBlockRate())
	}

	p.ObserveRate(7)
	if _, err := p.BuyKit(big.NewInt(100_000), nil, 10, 0, cfg); err != nil {
		t.Fatalf("buy: %v", err)
	}
	// A second observation within the level keeps the start-of-level rate.
	p.ObserveRate(7)
	if p.PrevBlockRate().Cmp(big.NewRat(1, 1)) != 0 {
		t.Fatalf("rate %s", p.PrevBlockRate())
	}

	p.ObserveRate(8)
	if p.PrevBlockRate().Cmp(new(big.Rat).SetFrac(p.Tez, p.Kit)) != 0 {
		t.Fatalf("rate %s not refreshed at the new level", p.PrevBlockRate())
	}
	if p.RateLevel != 8 {
		t.Fatalf("rate level %d", p.RateLevel)
	}
}

func TestAddAccruedKitMovesOnlyKit(t *testing.T) {
	p := seededPool(t)
	p.AddAccruedKit(big.NewInt(5_000))
	if p.Kit.Cmp(big.NewInt(1_005_000)) != 0 {
		t.Fatalf("kit reserve %s", p.Kit)
	}
	if p.Tez.Cmp(big.NewInt(1_000_000)) != 0 || p.TotalLiquidity.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("tez or liquidity moved")
	}

	// Fee accrual lowers the kit price for later buyers.
	if p.TezPerKit().Cmp(big.NewRat(1_000_000, 1_005_000)) != 0 {
		t.Fatalf("spot price %s", p.TezPerKit())
	}
}
