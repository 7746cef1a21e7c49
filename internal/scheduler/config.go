package scheduler

import (
	"time"

	"github.com/Wollie333/vilo-sub003/internal/config"
)

// Config controls the job runner loops.
type Config struct {
	BatchSize      int
	JobTimeout     time.Duration
	DailyInterval  time.Duration
	HourlyInterval time.Duration
	Enabled        bool
}

func DefaultConfig() Config {
	return Config{
		BatchSize:      200,
		JobTimeout:     5 * time.Minute,
		DailyInterval:  24 * time.Hour,
		HourlyInterval: time.Hour,
		Enabled:        true,
	}
}

// FromAppConfig derives the scheduler config from process configuration.
func FromAppConfig(cfg config.Config) Config {
	c := DefaultConfig()
	c.DailyInterval = cfg.DailyInterval
	c.HourlyInterval = cfg.HourlyInterval
	c.Enabled = cfg.SchedulerEnabled
	return c.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.DailyInterval <= 0 {
		c.DailyInterval = defaults.DailyInterval
	}
	if c.HourlyInterval <= 0 {
		c.HourlyInterval = defaults.HourlyInterval
	}
	return c
}
