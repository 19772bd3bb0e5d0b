package world

import (
	"time"

	"warfront.gg/internal/sim/tuning"
)

type Config struct {
	ID string

	// TickInterval drives the siege contest and channeling rituals.
	TickInterval time.Duration
	// SweepInterval drives war expiry and the upkeep check.
	SweepInterval time.Duration

	CommandsPerSecond float64
	ChannelDuration   time.Duration
	SiegeDuration     time.Duration

	// StarterMarkers is the number of siege markers a joining participant carries.
	StarterMarkers int
	Spawn          [3]int

	TaskQueue int
}

func ConfigFrom(id string, t tuning.Tuning) Config {
	cfg := Config{
		ID:                id,
		TickInterval:      t.Siege.TickInterval.D(),
		SweepInterval:     t.War.SweepInterval.D(),
		CommandsPerSecond: t.RateLimits.CommandsPerSecond,
		ChannelDuration:   t.Siege.ChannelDuration.D(),
		SiegeDuration:     t.Siege.Duration.D(),
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = "overworld"
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.StarterMarkers <= 0 {
		c.StarterMarkers = 1
	}
	if c.Spawn == [3]int{} {
		c.Spawn = [3]int{0, 64, 0}
	}
	if c.TaskQueue <= 0 {
		c.TaskQueue = 4096
	}
}
