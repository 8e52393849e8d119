package scheduler

import (
	"time"

	"github.com/pinksky/orderflow/internal/config"
)

// Config controls housekeeping intervals and batch sizes.
type Config struct {
	Enabled           bool
	RunInterval       time.Duration
	BatchSize         int
	CheckoutTTL       time.Duration
	StalePaymentAfter time.Duration
	JobTimeout        time.Duration
	EnabledJobs       []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RunInterval:       5 * time.Minute,
		BatchSize:         50,
		CheckoutTTL:       30 * time.Minute,
		StalePaymentAfter: 24 * time.Hour,
		JobTimeout:        time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:           cfg.Housekeeping.Enabled,
		RunInterval:       cfg.Housekeeping.Interval,
		BatchSize:         cfg.Housekeeping.BatchSize,
		CheckoutTTL:       cfg.CheckoutTTL,
		StalePaymentAfter: cfg.Housekeeping.StalePaymentAfter,
		EnabledJobs:       cfg.Housekeeping.Jobs,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.CheckoutTTL <= 0 {
		c.CheckoutTTL = defaults.CheckoutTTL
	}
	if c.StalePaymentAfter <= 0 {
		c.StalePaymentAfter = defaults.StalePaymentAfter
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
