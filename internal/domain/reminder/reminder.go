package reminder

import (
	"context"
	"time"
)

// Level is a reminder threshold index, 1 through 3.
type Level int

const (
	Level1 Level = 1
	Level2 Level = 2
	Level3 Level = 3
)

// DefaultWindow is how long after a threshold a reminder may still fire.
const DefaultWindow = 5 * time.Minute

// Config is the active reminder configuration.
type Config struct {
	Enabled    bool
	Thresholds [3]time.Duration // ascending: T1 < T2 < T3
	Window     time.Duration
	Channels   []string
}

// MatchLevel returns the highest level whose window [Tk, Tk+window) contains elapsed.
func (c *Config) MatchLevel(elapsed time.Duration) (Level, bool) {
	window := c.Window
	if window <= 0 {
		window = DefaultWindow
	}
	for i := len(c.Thresholds) - 1; i >= 0; i-- {
		t := c.Thresholds[i]
		if t <= 0 {
			continue
		}
		if elapsed >= t && elapsed < t+window {
			return Level(i + 1), true
		}
	}
	return 0, false
}

// Validate checks that thresholds are positive and strictly ascending.
func (c *Config) Validate() error {
	for i, t := range c.Thresholds {
		if t <= 0 {
			return errInvalidThresholds
		}
		if i > 0 && t <= c.Thresholds[i-1] {
			return errInvalidThresholds
		}
	}
	return nil
}

// SendRecord marks a level as sent for one run of a work item.
// (WorkItemID, Level, RunStartedAt) is unique.
type SendRecord struct {
	WorkItemID   int64
	Level        Level
	RunStartedAt time.Time
	SentAt       time.Time
}

// Repository stores send records. Claim inserts a record and reports false when one already
// exists; Release removes a claim whose dispatch failed.
type Repository interface {
	Claim(ctx context.Context, rec *SendRecord) (bool, error)
	Release(ctx context.Context, rec *SendRecord) error
}

// ConfigRepository reads the active reminder configuration.
type ConfigRepository interface {
	// GetReminderConfig returns nil and no error when nothing is configured.
	GetReminderConfig(ctx context.Context) (*Config, error)
}
