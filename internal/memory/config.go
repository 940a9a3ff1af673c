package memory

import "time"

// Config bounds every conversation window.
type Config struct {
	MaxTurns         int
	MaxWords         int
	MinTurns         int
	SessionTimeout   time.Duration
	RefreshThreshold time.Duration
	HydrateLimit     int
}

// DefaultConfig returns the production window limits.
func DefaultConfig() Config {
	return Config{
		MaxTurns:         10,
		MaxWords:         1500,
		MinTurns:         2,
		SessionTimeout:   30 * time.Minute,
		RefreshThreshold: 10 * time.Minute,
		HydrateLimit:     10,
	}
}

// withDefaults fills zero values so a partially populated Config is usable.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxTurns <= 0 {
		c.MaxTurns = def.MaxTurns
	}
	if c.MaxWords <= 0 {
		c.MaxWords = def.MaxWords
	}
	if c.MinTurns <= 0 {
		c.MinTurns = def.MinTurns
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = def.SessionTimeout
	}
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = def.RefreshThreshold
	}
	if c.HydrateLimit <= 0 {
		c.HydrateLimit = def.HydrateLimit
	}
	return c
}
