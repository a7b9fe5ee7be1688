// Package config loads the ceremony server configuration from a TOML file.
//
// Example:
//
//	[ceremony]
//	capacity = 50
//	start_delay = "5s"
//	store_path = "../store"
//	artifact_stores = ["s3://bucket/ceremony?region=eu-west-1"]
//	you_indices = [0, 3]
//	turn_timeout = "15m"
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultCapacity   = 50
	DefaultStartDelay = 5 * time.Second
	DefaultStorePath  = "../store"
)

// Ceremony describes the ceremony a server hosts.
type Ceremony struct {
	Capacity int

	// StartTime, when set, is the absolute scheduled start. Otherwise the ceremony
	// starts StartDelay after boot.
	StartTime  time.Time
	StartDelay time.Duration

	StorePath      string
	ArtifactStores []string
	YouIndices     []int
	TurnTimeout    time.Duration
}

// Default mirrors the demo deployment: 50 participants starting five seconds after boot.
func Default() Ceremony {
	return Ceremony{
		Capacity:   DefaultCapacity,
		StartDelay: DefaultStartDelay,
		StorePath:  DefaultStorePath,
	}
}

type fileConfig struct {
	Ceremony ceremonySection `toml:"ceremony"`
}

type ceremonySection struct {
	Capacity       int       `toml:"capacity"`
	StartTime      time.Time `toml:"start_time"`
	StartDelay     string    `toml:"start_delay"`
	StorePath      string    `toml:"store_path"`
	ArtifactStores []string  `toml:"artifact_stores"`
	YouIndices     []int     `toml:"you_indices"`
	TurnTimeout    string    `toml:"turn_timeout"`
}

// Load reads path and overlays the keys it defines on Default.
func Load(path string) (Ceremony, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Ceremony{}, fmt.Errorf("load ceremony config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Ceremony{}, fmt.Errorf("load ceremony config: unknown key %q", undecoded[0].String())
	}

	sec := raw.Ceremony
	if meta.IsDefined("ceremony", "capacity") {
		cfg.Capacity = sec.Capacity
	}
	if meta.IsDefined("ceremony", "start_time") {
		cfg.StartTime = sec.StartTime
	}
	if meta.IsDefined("ceremony", "start_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(sec.StartDelay))
		if err != nil {
			return Ceremony{}, fmt.Errorf("load ceremony config: start_delay: %w", err)
		}
		cfg.StartDelay = d
	}
	if meta.IsDefined("ceremony", "store_path") {
		cfg.StorePath = strings.TrimSpace(sec.StorePath)
	}
	if meta.IsDefined("ceremony", "artifact_stores") {
		cfg.ArtifactStores = sec.ArtifactStores
	}
	if meta.IsDefined("ceremony", "you_indices") {
		cfg.YouIndices = sec.YouIndices
	}
	if meta.IsDefined("ceremony", "turn_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(sec.TurnTimeout))
		if err != nil {
			return Ceremony{}, fmt.Errorf("load ceremony config: turn_timeout: %w", err)
		}
		cfg.TurnTimeout = d
	}

	if err := cfg.Validate(); err != nil {
		return Ceremony{}, fmt.Errorf("load ceremony config: %w", err)
	}
	return cfg, nil
}

// Validate checks the values a ceremony cannot be created without.
func (c Ceremony) Validate() error {
	if c.Capacity <= 0 {
		return errors.New("capacity must be positive")
	}
	if c.StartTime.IsZero() && c.StartDelay < 0 {
		return errors.New("start_delay must not be negative")
	}
	if c.StorePath == "" {
		return errors.New("store_path is required")
	}
	if c.TurnTimeout < 0 {
		return errors.New("turn_timeout must not be negative")
	}
	for _, idx := range c.YouIndices {
		if idx < 0 || idx >= c.Capacity {
			return fmt.Errorf("you_indices: %d outside roster of %d", idx, c.Capacity)
		}
	}
	return nil
}

// ScheduledStart resolves the start instant relative to now.
func (c Ceremony) ScheduledStart(now time.Time) time.Time {
	if !c.StartTime.IsZero() {
		return c.StartTime
	}
	return now.Add(c.StartDelay)
}

// ParseIndices parses a comma separated list of roster positions such as "0,3,7".
// Blank entries are ignored.
func ParseIndices(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid index %q: %w", part, err)
		}
		out = append(out, idx)
	}
	return out, nil
}
