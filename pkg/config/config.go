// Package config provides a reusable loader for the indexer's configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/2ndtlmining/fluxrevenue-go/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Optimization level presets, overriding the batching/concurrency knobs
// below with a single operator-facing choice.
const (
	OptimizationConservative = "conservative"
	OptimizationAggressive   = "aggressive"
	OptimizationMaximum      = "maximum"
)

// Config represents the indexer's unified configuration. It mirrors the
// structure of an optional YAML file under cmd/config plus environment
// overrides, following the same load order as a node's network config.
type Config struct {
	Chain struct {
		BaseURL       string        `mapstructure:"base_url" json:"base_url"`
		StatsHost     string        `mapstructure:"stats_host" json:"stats_host"`
		ConnTimeout   time.Duration `mapstructure:"conn_timeout" json:"conn_timeout"`
		RequestDelay  time.Duration `mapstructure:"request_delay" json:"request_delay"`
		MaxConcurrent int           `mapstructure:"max_concurrent" json:"max_concurrent"`
	} `mapstructure:"chain" json:"chain"`

	Sync struct {
		WatchedAddresses []string      `mapstructure:"watched_addresses" json:"watched_addresses"`
		Interval         time.Duration `mapstructure:"interval" json:"interval"`
		MaxBlocksPerSync int           `mapstructure:"max_blocks_per_sync" json:"max_blocks_per_sync"`
		BatchSize        int           `mapstructure:"batch_size" json:"batch_size"`
		ParallelBatches  int           `mapstructure:"parallel_batches" json:"parallel_batches"`
		GapFillThreshold float64       `mapstructure:"gap_fill_threshold" json:"gap_fill_threshold"`
	} `mapstructure:"sync" json:"sync"`

	Retention struct {
		RetentionDays int `mapstructure:"retention_days" json:"retention_days"`
		BlocksPerDay  int `mapstructure:"blocks_per_day" json:"blocks_per_day"`
	} `mapstructure:"retention" json:"retention"`

	Cache struct {
		AddressCacheSize int           `mapstructure:"address_cache_size" json:"address_cache_size"`
		BlockCacheSize   int           `mapstructure:"block_cache_size" json:"block_cache_size"`
		NodeStatsTTL     time.Duration `mapstructure:"node_stats_ttl" json:"node_stats_ttl"`
		ArcaneStatsTTL   time.Duration `mapstructure:"arcane_stats_ttl" json:"arcane_stats_ttl"`
		UtilizationTTL   time.Duration `mapstructure:"utilization_ttl" json:"utilization_ttl"`
		CombinedTTL      time.Duration `mapstructure:"combined_ttl" json:"combined_ttl"`
		RunningAppsTTL   time.Duration `mapstructure:"running_apps_ttl" json:"running_apps_ttl"`
	} `mapstructure:"cache" json:"cache"`

	Storage struct {
		DBPath    string  `mapstructure:"db_path" json:"db_path"`
		MaxSizeGB float64 `mapstructure:"max_size_gb" json:"max_size_gb"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`

	OptimizationLevel string `mapstructure:"optimization_level" json:"optimization_level"`
}

// Default returns the baseline configuration used before any config file or
// environment override is applied.
func Default() Config {
	var cfg Config
	cfg.Chain.BaseURL = "https://explorer.runonflux.io/api"
	cfg.Chain.StatsHost = "https://stats.runonflux.io"
	cfg.Chain.ConnTimeout = 10 * time.Second
	cfg.Chain.MaxConcurrent = 8

	cfg.Sync.Interval = 60 * time.Second
	cfg.Sync.MaxBlocksPerSync = 2000
	cfg.Sync.BatchSize = 50
	cfg.Sync.ParallelBatches = 4
	cfg.Sync.GapFillThreshold = 0.95

	cfg.Retention.RetentionDays = 90
	cfg.Retention.BlocksPerDay = 720

	cfg.Cache.AddressCacheSize = 10_000
	cfg.Cache.BlockCacheSize = 2_000
	cfg.Cache.NodeStatsTTL = 5 * time.Minute
	cfg.Cache.ArcaneStatsTTL = 10 * time.Minute
	cfg.Cache.UtilizationTTL = 3 * time.Minute
	cfg.Cache.CombinedTTL = 5 * time.Minute
	cfg.Cache.RunningAppsTTL = 2 * time.Minute

	cfg.Storage.DBPath = "./data/fluxrevenue.db"
	cfg.Storage.MaxSizeGB = 20

	cfg.Logging.Level = "info"
	cfg.OptimizationLevel = OptimizationAggressive
	return cfg
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration plus
// environment-variable overrides are applied. A missing default config file
// is not an error: the indexer is expected to run from environment variables
// alone in most deployments. A missing env-specific file is an error.
func Load(env string) (*Config, error) {
	cfg := Default()

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err == nil {
		if err := viper.Unmarshal(&cfg); err != nil {
			return nil, utils.Wrap(err, "unmarshal config")
		}
	} else if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
		if err := viper.Unmarshal(&cfg); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("unmarshal %s config", env))
		}
	}

	applyEnvOverrides(&cfg)
	ApplyOptimizationLevel(&cfg)

	AppConfig = cfg
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the FLUXIDX_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("FLUXIDX_ENV", ""))
}

// ApplyOptimizationLevel overrides the batching/concurrency knobs according
// to cfg.OptimizationLevel, a single operator-facing choice. Values are
// floors/ceilings rather than hard resets, so a more specific file or
// environment override set before this call still wins within the preset's
// bound.
func ApplyOptimizationLevel(cfg *Config) {
	switch cfg.OptimizationLevel {
	case OptimizationConservative:
		cfg.Sync.MaxBlocksPerSync = minInt(cfg.Sync.MaxBlocksPerSync, 500)
		cfg.Sync.BatchSize = minInt(cfg.Sync.BatchSize, 20)
		cfg.Sync.ParallelBatches = minInt(cfg.Sync.ParallelBatches, 2)
		cfg.Chain.MaxConcurrent = minInt(cfg.Chain.MaxConcurrent, 4)
	case OptimizationMaximum:
		cfg.Sync.MaxBlocksPerSync = maxInt(cfg.Sync.MaxBlocksPerSync, 5000)
		cfg.Sync.BatchSize = maxInt(cfg.Sync.BatchSize, 100)
		cfg.Sync.ParallelBatches = maxInt(cfg.Sync.ParallelBatches, 8)
		cfg.Chain.MaxConcurrent = maxInt(cfg.Chain.MaxConcurrent, 16)
	default:
		// OptimizationAggressive (and any unrecognized value) keeps
		// whatever Default/file/env already produced.
	}
}

// applyEnvOverrides layers FLUXIDX_* environment variables over cfg,
// following pkg/utils/env.go's EnvOrDefault* convention.
func applyEnvOverrides(cfg *Config) {
	cfg.Chain.BaseURL = utils.EnvOrDefault("FLUXIDX_CHAIN_BASE_URL", cfg.Chain.BaseURL)
	cfg.Chain.StatsHost = utils.EnvOrDefault("FLUXIDX_CHAIN_STATS_HOST", cfg.Chain.StatsHost)
	cfg.Chain.ConnTimeout = utils.EnvOrDefaultDuration("FLUXIDX_CHAIN_CONN_TIMEOUT", cfg.Chain.ConnTimeout)
	cfg.Chain.RequestDelay = utils.EnvOrDefaultDuration("FLUXIDX_CHAIN_REQUEST_DELAY", cfg.Chain.RequestDelay)
	cfg.Chain.MaxConcurrent = utils.EnvOrDefaultInt("FLUXIDX_CHAIN_MAX_CONCURRENT", cfg.Chain.MaxConcurrent)

	cfg.Sync.Interval = utils.EnvOrDefaultDuration("FLUXIDX_SYNC_INTERVAL", cfg.Sync.Interval)
	cfg.Sync.MaxBlocksPerSync = utils.EnvOrDefaultInt("FLUXIDX_SYNC_MAX_BLOCKS", cfg.Sync.MaxBlocksPerSync)
	cfg.Sync.BatchSize = utils.EnvOrDefaultInt("FLUXIDX_SYNC_BATCH_SIZE", cfg.Sync.BatchSize)
	cfg.Sync.ParallelBatches = utils.EnvOrDefaultInt("FLUXIDX_SYNC_PARALLEL_BATCHES", cfg.Sync.ParallelBatches)
	cfg.Sync.GapFillThreshold = utils.EnvOrDefaultFloat64("FLUXIDX_SYNC_GAP_FILL_THRESHOLD", cfg.Sync.GapFillThreshold)
	if addrs := utils.EnvOrDefault("FLUXIDX_WATCHED_ADDRESSES", ""); addrs != "" {
		cfg.Sync.WatchedAddresses = splitAndTrim(addrs)
	}

	cfg.Retention.RetentionDays = utils.EnvOrDefaultInt("FLUXIDX_RETENTION_DAYS", cfg.Retention.RetentionDays)
	cfg.Retention.BlocksPerDay = utils.EnvOrDefaultInt("FLUXIDX_BLOCKS_PER_DAY", cfg.Retention.BlocksPerDay)

	cfg.Cache.AddressCacheSize = utils.EnvOrDefaultInt("FLUXIDX_CACHE_ADDRESS_SIZE", cfg.Cache.AddressCacheSize)
	cfg.Cache.BlockCacheSize = utils.EnvOrDefaultInt("FLUXIDX_CACHE_BLOCK_SIZE", cfg.Cache.BlockCacheSize)
	cfg.Cache.NodeStatsTTL = utils.EnvOrDefaultDuration("FLUXIDX_CACHE_NODE_STATS_TTL", cfg.Cache.NodeStatsTTL)
	cfg.Cache.ArcaneStatsTTL = utils.EnvOrDefaultDuration("FLUXIDX_CACHE_ARCANE_STATS_TTL", cfg.Cache.ArcaneStatsTTL)
	cfg.Cache.UtilizationTTL = utils.EnvOrDefaultDuration("FLUXIDX_CACHE_UTILIZATION_TTL", cfg.Cache.UtilizationTTL)
	cfg.Cache.CombinedTTL = utils.EnvOrDefaultDuration("FLUXIDX_CACHE_COMBINED_TTL", cfg.Cache.CombinedTTL)
	cfg.Cache.RunningAppsTTL = utils.EnvOrDefaultDuration("FLUXIDX_CACHE_RUNNING_APPS_TTL", cfg.Cache.RunningAppsTTL)

	cfg.Storage.DBPath = utils.EnvOrDefault("FLUXIDX_DB_PATH", cfg.Storage.DBPath)
	cfg.Storage.MaxSizeGB = utils.EnvOrDefaultFloat64("FLUXIDX_DB_MAX_SIZE_GB", cfg.Storage.MaxSizeGB)

	cfg.Logging.Level = utils.EnvOrDefault("FLUXIDX_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.File = utils.EnvOrDefault("FLUXIDX_LOG_FILE", cfg.Logging.File)

	cfg.OptimizationLevel = utils.EnvOrDefault("FLUXIDX_OPTIMIZATION_LEVEL", cfg.OptimizationLevel)
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
