package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOverridesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocol.toml")
	body := "TouchSliceCap = 4\nLotMaxAgeSeconds = 3600\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TouchSliceCap != 4 || cfg.LotMaxAgeSeconds != 3600 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.CreationDepositMutez != Default().CreationDepositMutez {
		t.Fatalf("untouched field lost its default")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocol.toml")
	if err := os.WriteFile(path, []byte("NotAKnob = 1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestValidateRejectsInvertedRatios(t *testing.T) {
	cfg := Default()
	cfg.LiquidationRatioBps = cfg.MintingRatioBps + 1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected ratio ordering error")
	}
}
