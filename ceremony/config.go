package ceremony

import (
	"errors"
	"fmt"
	"time"
)

// Config fixes the shape of a ceremony at construction.
type Config struct {
	// Capacity is the maximum number of participant slots.
	Capacity int

	// ScheduledStart is the earliest instant the ceremony may leave WAITING.
	ScheduledStart time.Time

	// DemoRoleIndices marks roster positions shown with the demo "you" role.
	// Presentation only, the protocol ignores it.
	DemoRoleIndices []int

	// TurnTimeout invalidates a RUNNING participant that has not submitted in time.
	// Zero disables the watchdog.
	TurnTimeout time.Duration

	// Retry bounds how hard the coordinator tries to persist a transition.
	Retry RetryPolicy
}

// RetryPolicy configures the exponential backoff around transcript store writes.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// DefaultRetryPolicy retries three times over roughly a second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		MaxRetries:      3,
	}
}

// Validate checks the configuration and fills in retry defaults.
func (c *Config) Validate() error {
	if c.Capacity <= 0 {
		return errors.New("capacity must be positive")
	}
	if c.ScheduledStart.IsZero() {
		return errors.New("scheduled start is required")
	}
	if c.TurnTimeout < 0 {
		return errors.New("turn timeout must not be negative")
	}
	for _, idx := range c.DemoRoleIndices {
		if idx < 0 || idx >= c.Capacity {
			return fmt.Errorf("demo role index %d outside roster of %d", idx, c.Capacity)
		}
	}
	if c.Retry == (RetryPolicy{}) {
		c.Retry = DefaultRetryPolicy()
	}
	if c.Retry.InitialInterval <= 0 {
		c.Retry.InitialInterval = DefaultRetryPolicy().InitialInterval
	}
	if c.Retry.MaxInterval < c.Retry.InitialInterval {
		c.Retry.MaxInterval = c.Retry.InitialInterval
	}
	return nil
}
