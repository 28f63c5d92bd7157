package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config carries the tunable protocol constants. Ratios and fees are
// expressed in basis points, amounts in mutez/mukit, durations in seconds.
// The defaults reproduce the reference deployment; operators may override
// individual values through a TOML file at genesis.
type Config struct {
	// CreationDepositMutez is the tez retained when a burrow is created and
	// returned when it is deactivated.
	CreationDepositMutez int64 `toml:"CreationDepositMutez"`
	// MintingRatioBps is the minimum collateral-to-debt ratio required to
	// mint kit or withdraw tez.
	MintingRatioBps uint64 `toml:"MintingRatioBps"`
	// LiquidationRatioBps is the ratio below which a burrow becomes a
	// liquidation candidate.
	LiquidationRatioBps uint64 `toml:"LiquidationRatioBps"`
	// LiquidationRewardBps is the share of burrow collateral paid to the
	// caller of MarkForLiquidation, on top of the creation deposit.
	LiquidationRewardBps uint64 `toml:"LiquidationRewardBps"`
	// LiquidationPenaltyBps is the share of auction proceeds burned when a
	// liquidation turns out to have been warranted.
	LiquidationPenaltyBps uint64 `toml:"LiquidationPenaltyBps"`

	// CfmmFeeBps is the trading fee retained by the liquidity pool.
	CfmmFeeBps uint64 `toml:"CfmmFeeBps"`

	// LotThresholdMutez is the queued collateral total that triggers a new
	// auction lot regardless of slice age.
	LotThresholdMutez int64 `toml:"LotThresholdMutez"`
	// LotMaxAgeSeconds opens a lot once the oldest queued slice has waited
	// this long even if the threshold is unmet.
	LotMaxAgeSeconds int64 `toml:"LotMaxAgeSeconds"`
	// BidWindowSeconds is how long an open lot stays biddable after the
	// latest accepted bid.
	BidWindowSeconds int64 `toml:"BidWindowSeconds"`
	// TouchSliceCap bounds the completed slices drained per touch call.
	TouchSliceCap int `toml:"TouchSliceCap"`

	// CycleLengthLevels is the delegate-election cycle length.
	CycleLengthLevels uint64 `toml:"CycleLengthLevels"`

	// TouchLowRewardMukitPerMinute accrues while the protocol has been
	// untouched for at most TouchRewardBracketSeconds.
	TouchLowRewardMukitPerMinute int64 `toml:"TouchLowRewardMukitPerMinute"`
	// TouchHighRewardMukitPerMinute accrues beyond the bracket.
	TouchHighRewardMukitPerMinute int64 `toml:"TouchHighRewardMukitPerMinute"`
	// TouchRewardBracketSeconds separates the two reward rates.
	TouchRewardBracketSeconds int64 `toml:"TouchRewardBracketSeconds"`

	// BurrowFeeAnnualBps is the yearly fee charged on outstanding kit and
	// fed to the liquidity pool during touch.
	BurrowFeeAnnualBps uint64 `toml:"BurrowFeeAnnualBps"`
	// ProtectedIndexMaxDriftBpsPerMinute clamps how fast the protected
	// price index follows the observed index.
	ProtectedIndexMaxDriftBpsPerMinute uint64 `toml:"ProtectedIndexMaxDriftBpsPerMinute"`
}

// Default returns the reference protocol constants.
func Default() Config {
	return Config{
		CreationDepositMutez:               1_000_000,
		MintingRatioBps:                    20_000,
		LiquidationRatioBps:                19_000,
		LiquidationRewardBps:               10,
		LiquidationPenaltyBps:              1_000,
		CfmmFeeBps:                         20,
		LotThresholdMutez:                  10_000_000_000,
		LotMaxAgeSeconds:                   86_400,
		BidWindowSeconds:                   1_200,
		TouchSliceCap:                      8,
		CycleLengthLevels:                  4_096,
		TouchLowRewardMukitPerMinute:       100_000,
		TouchHighRewardMukitPerMinute:      1_000_000,
		TouchRewardBracketSeconds:          600,
		BurrowFeeAnnualBps:                 50,
		ProtectedIndexMaxDriftBpsPerMinute: 5,
	}
}

// Load reads a TOML file and overlays it on the defaults. A missing file
// yields the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config file %s contains unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would break protocol invariants.
func (c Config) Validate() error {
	if c.CreationDepositMutez <= 0 {
		return fmt.Errorf("config: creation deposit must be positive")
	}
	if c.MintingRatioBps < 10_000 {
		return fmt.Errorf("config: minting ratio must be at least 100%%")
	}
	if c.LiquidationRatioBps < 10_000 || c.LiquidationRatioBps > c.MintingRatioBps {
		return fmt.Errorf("config: liquidation ratio must sit between 100%% and the minting ratio")
	}
	if c.LiquidationRewardBps >= 10_000 || c.LiquidationPenaltyBps >= 10_000 || c.CfmmFeeBps >= 10_000 {
		return fmt.Errorf("config: basis point shares must stay below 100%%")
	}
	if c.LotThresholdMutez <= 0 || c.LotMaxAgeSeconds <= 0 || c.BidWindowSeconds <= 0 {
		return fmt.Errorf("config: lot policy values must be positive")
	}
	if c.TouchSliceCap <= 0 {
		return fmt.Errorf("config: touch slice cap must be positive")
	}
	if c.CycleLengthLevels == 0 {
		return fmt.Errorf("config: cycle length must be positive")
	}
	if c.TouchRewardBracketSeconds <= 0 {
		return fmt.Errorf("config: touch reward bracket must be positive")
	}
	if c.TouchLowRewardMukitPerMinute < 0 || c.TouchHighRewardMukitPerMinute < c.TouchLowRewardMukitPerMinute {
		return fmt.Errorf("config: touch reward rates must be non-negative and ordered")
	}
	return nil
}
