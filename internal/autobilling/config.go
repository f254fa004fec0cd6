package autobilling

import (
	"time"

	"github.com/jvcardoso/proteamcare-billing/internal/config"
)

// Config controls batch sizing and run serialization.
type Config struct {
	CronSpec    string
	BatchSize   int
	WorkerCount int
	RunTimeout  time.Duration
	RunLockTTL  time.Duration
}

func DefaultConfig() Config {
	return Config{
		CronSpec:    "0 6 * * *",
		BatchSize:   100,
		WorkerCount: 8,
		RunTimeout:  10 * time.Minute,
		RunLockTTL:  10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.CronSpec == "" {
		c.CronSpec = defaults.CronSpec
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = defaults.WorkerCount
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.RunLockTTL <= 0 {
		c.RunLockTTL = defaults.RunLockTTL
	}
	return c
}

// FromApp maps application configuration onto runner configuration.
func FromApp(cfg config.Config) Config {
	return Config{
		CronSpec:    cfg.Billing.CronSpec,
		BatchSize:   cfg.Billing.BatchSize,
		WorkerCount: cfg.Billing.WorkerCount,
		RunLockTTL:  cfg.Billing.RunLockTTL,
	}.withDefaults()
}
