package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"dfs/pkg/utils"
)

// Config holds the whole-system tunables for the decentralized filesystem.
// Prices are in tokens; the chunk size applies uniformly per file.
type Config struct {
	DefaultReplication     int    `json:"default_replication"`
	ChunkSize              int64  `json:"chunk_size"`
	StoragePricePerGBMonth uint64 `json:"storage_price_per_gb_month"`
	BandwidthPricePerGB    uint64 `json:"bandwidth_price_per_gb"`
	MinStorageDurationHrs  uint64 `json:"min_storage_duration_hours"`
	MaxStorageDurationHrs  uint64 `json:"max_storage_duration_hours"`
	AssemblyWorkers        int    `json:"assembly_workers"`
	SweepIntervalSecs      int    `json:"sweep_interval_secs"`
	TreasuryAccount        string `json:"treasury_account"`
}

func Default() *Config {
	return &Config{
		DefaultReplication:     3,
		ChunkSize:              4 * 1024 * 1024,
		StoragePricePerGBMonth: 10,
		BandwidthPricePerGB:    1,
		MinStorageDurationHrs:  24,
		MaxStorageDurationHrs:  8760,
		AssemblyWorkers:        8,
		SweepIntervalSecs:      60,
		TreasuryAccount:        "network_treasury",
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv builds a config from DFS_* environment variables, falling
// back to defaults. DFS_CHUNK_SIZE accepts human-friendly sizes ("4MiB").
func LoadFromEnv() *Config {
	cfg := Default()

	cfg.DefaultReplication = getEnvInt("DFS_REPLICATION", cfg.DefaultReplication)
	cfg.AssemblyWorkers = getEnvInt("DFS_ASSEMBLY_WORKERS", cfg.AssemblyWorkers)
	cfg.SweepIntervalSecs = getEnvInt("DFS_SWEEP_INTERVAL_SECS", cfg.SweepIntervalSecs)
	cfg.TreasuryAccount = getEnv("DFS_TREASURY_ACCOUNT", cfg.TreasuryAccount)

	if v := os.Getenv("DFS_CHUNK_SIZE"); v != "" {
		if size, err := utils.ParseDataSize(v); err == nil && size > 0 {
			cfg.ChunkSize = size
		}
	}
	if v := os.Getenv("DFS_STORAGE_PRICE_PER_GB_MONTH"); v != "" {
		if price, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.StoragePricePerGBMonth = price
		}
	}
	if v := os.Getenv("DFS_BANDWIDTH_PRICE_PER_GB"); v != "" {
		if price, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.BandwidthPricePerGB = price
		}
	}

	return cfg
}

func (c *Config) Validate() error {
	if c.DefaultReplication < 1 {
		return fmt.Errorf("default_replication must be at least 1, got %d", c.DefaultReplication)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.AssemblyWorkers < 1 {
		return fmt.Errorf("assembly_workers must be at least 1, got %d", c.AssemblyWorkers)
	}
	if c.MinStorageDurationHrs > c.MaxStorageDurationHrs {
		return fmt.Errorf("min_storage_duration_hours %d exceeds max %d",
			c.MinStorageDurationHrs, c.MaxStorageDurationHrs)
	}
	if c.TreasuryAccount == "" {
		return fmt.Errorf("treasury_account must not be empty")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
