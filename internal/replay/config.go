package replay

import (
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/grouparchive/internal/store"
)

// Defaults for the steady-state throttle and the rate-limit back-off.
const (
	DefaultProgressEvery     = 100
	DefaultPeriodicCooldown  = 30 * time.Second
	DefaultRateLimitCooldown = 5 * time.Minute
)

// Config is everything a replay run needs, passed in explicitly.
type Config struct {
	Credential   string
	Channel      string
	Store        *store.DB
	StartOrdinal int

	ProgressEvery     int
	PeriodicCooldown  time.Duration
	RateLimitCooldown time.Duration
}

func (c *Config) applyDefaults() {
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = DefaultProgressEvery
	}
	if c.PeriodicCooldown <= 0 {
		c.PeriodicCooldown = DefaultPeriodicCooldown
	}
	if c.RateLimitCooldown <= 0 {
		c.RateLimitCooldown = DefaultRateLimitCooldown
	}
}

// Validate checks the fields that have no sensible default.
func (c Config) Validate() error {
	var errs []error
	if c.Credential == "" {
		errs = append(errs, errors.New("missing destination credential"))
	}
	if c.Channel == "" {
		errs = append(errs, errors.New("missing destination channel"))
	}
	if c.Store == nil {
		errs = append(errs, errors.New("missing snapshot store"))
	}
	if c.StartOrdinal < 0 {
		errs = append(errs, fmt.Errorf("negative start ordinal %d", c.StartOrdinal))
	}
	return errors.Join(errs...)
}
