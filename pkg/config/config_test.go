package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Chain.BaseURL == "" {
		t.Fatalf("expected a non-empty default base URL")
	}
	if cfg.Sync.GapFillThreshold <= 0 || cfg.Sync.GapFillThreshold > 1 {
		t.Fatalf("expected gap-fill threshold in (0,1], got %v", cfg.Sync.GapFillThreshold)
	}
	if cfg.OptimizationLevel != OptimizationAggressive {
		t.Fatalf("expected default optimization level aggressive, got %q", cfg.OptimizationLevel)
	}
}

func TestApplyOptimizationLevelConservativeCapsValues(t *testing.T) {
	cfg := Default()
	cfg.OptimizationLevel = OptimizationConservative
	cfg.Sync.MaxBlocksPerSync = 10_000
	cfg.Sync.BatchSize = 1_000
	cfg.Chain.MaxConcurrent = 64

	ApplyOptimizationLevel(&cfg)

	if cfg.Sync.MaxBlocksPerSync != 500 {
		t.Fatalf("expected conservative cap 500, got %d", cfg.Sync.MaxBlocksPerSync)
	}
	if cfg.Sync.BatchSize != 20 {
		t.Fatalf("expected conservative cap 20, got %d", cfg.Sync.BatchSize)
	}
	if cfg.Chain.MaxConcurrent != 4 {
		t.Fatalf("expected conservative cap 4, got %d", cfg.Chain.MaxConcurrent)
	}
}

func TestApplyOptimizationLevelMaximumRaisesFloors(t *testing.T) {
	cfg := Default()
	cfg.OptimizationLevel = OptimizationMaximum
	cfg.Sync.MaxBlocksPerSync = 10
	cfg.Sync.BatchSize = 5
	cfg.Chain.MaxConcurrent = 1

	ApplyOptimizationLevel(&cfg)

	if cfg.Sync.MaxBlocksPerSync != 5000 {
		t.Fatalf("expected maximum floor 5000, got %d", cfg.Sync.MaxBlocksPerSync)
	}
	if cfg.Sync.BatchSize != 100 {
		t.Fatalf("expected maximum floor 100, got %d", cfg.Sync.BatchSize)
	}
	if cfg.Chain.MaxConcurrent != 16 {
		t.Fatalf("expected maximum floor 16, got %d", cfg.Chain.MaxConcurrent)
	}
}

func TestApplyOptimizationLevelAggressiveLeavesValuesAlone(t *testing.T) {
	cfg := Default()
	cfg.OptimizationLevel = OptimizationAggressive
	cfg.Sync.MaxBlocksPerSync = 777
	ApplyOptimizationLevel(&cfg)
	if cfg.Sync.MaxBlocksPerSync != 777 {
		t.Fatalf("expected aggressive level to leave values unchanged, got %d", cfg.Sync.MaxBlocksPerSync)
	}
}

func TestApplyEnvOverridesLayersOverDefaults(t *testing.T) {
	keys := map[string]string{
		"FLUXIDX_CHAIN_BASE_URL":     "https://example.test/api",
		"FLUXIDX_SYNC_BATCH_SIZE":    "123",
		"FLUXIDX_WATCHED_ADDRESSES":  " addr1 , addr2 ,addr3",
		"FLUXIDX_SYNC_INTERVAL":      "90s",
		"FLUXIDX_OPTIMIZATION_LEVEL": "conservative",
	}
	for k, v := range keys {
		t.Setenv(k, v)
	}

	cfg := Default()
	applyEnvOverrides(&cfg)

	if cfg.Chain.BaseURL != "https://example.test/api" {
		t.Fatalf("expected env override of base URL, got %q", cfg.Chain.BaseURL)
	}
	if cfg.Sync.BatchSize != 123 {
		t.Fatalf("expected env override of batch size, got %d", cfg.Sync.BatchSize)
	}
	if cfg.Sync.Interval != 90*time.Second {
		t.Fatalf("expected env override of interval, got %v", cfg.Sync.Interval)
	}
	if len(cfg.Sync.WatchedAddresses) != 3 || cfg.Sync.WatchedAddresses[1] != "addr2" {
		t.Fatalf("expected parsed/trimmed watched addresses, got %v", cfg.Sync.WatchedAddresses)
	}
	if cfg.OptimizationLevel != "conservative" {
		t.Fatalf("expected env override of optimization level, got %q", cfg.OptimizationLevel)
	}
}

func TestLoadFromEnvAppliesOptimizationFloorAfterEnvLayering(t *testing.T) {
	os.Unsetenv("FLUXIDX_ENV")
	t.Setenv("FLUXIDX_OPTIMIZATION_LEVEL", "maximum")
	t.Setenv("FLUXIDX_SYNC_BATCH_SIZE", "1")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load from env: %v", err)
	}
	// Load applies env overrides first, then ApplyOptimizationLevel, so an
	// explicit override below the selected preset's floor is raised to it.
	if cfg.Sync.BatchSize != 100 {
		t.Fatalf("expected the maximum preset's floor to win, got %d", cfg.Sync.BatchSize)
	}
}

func TestLoadFromEnvOverrideWithinBoundIsKept(t *testing.T) {
	os.Unsetenv("FLUXIDX_ENV")
	t.Setenv("FLUXIDX_OPTIMIZATION_LEVEL", "maximum")
	t.Setenv("FLUXIDX_SYNC_BATCH_SIZE", "250")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load from env: %v", err)
	}
	if cfg.Sync.BatchSize != 250 {
		t.Fatalf("expected an override already above the floor to be kept, got %d", cfg.Sync.BatchSize)
	}
}
