// Package pricing resolves (model, provider, token counts, timestamp)
// tuples to monetary cost using tiered per-1M-token rates.
package pricing

import (
	"fmt"
	"time"
)

// Rates holds USD rates per 1M tokens.
type Rates struct {
	Input      float64 `yaml:"input"`
	Output     float64 `yaml:"output"`
	Cached     float64 `yaml:"cached"`
	CacheWrite float64 `yaml:"cache_write"`
}

// HappyHour overrides the base rates inside a UTC time-of-day window.
// When Finish's time-of-day is earlier than Start's, the window wraps past
// midnight (e.g. 16:30-00:30).
type HappyHour struct {
	Start  string `yaml:"start"`
	Finish string `yaml:"finish"`
	Rates  Rates  `yaml:"rates"`
}

// Dynamic overrides the rates once prompt+response tokens exceed the
// threshold (long-context surcharge pricing).
type Dynamic struct {
	TokenThreshold int   `yaml:"token_threshold"`
	Rates          Rates `yaml:"rates"`
}

// Config is the pricing rule set for one provider/model pair.
type Config struct {
	Rates     Rates      `yaml:"rates"`
	HappyHour *HappyHour `yaml:"happy_hour,omitempty"`
	Dynamic   *Dynamic   `yaml:"dynamic,omitempty"`
}

// Validate checks the happy-hour window format eagerly so malformed tables
// fail at load time, not at cost time.
func (c Config) Validate() error {
	if c.HappyHour != nil {
		if _, err := parseClock(c.HappyHour.Start); err != nil {
			return fmt.Errorf("happy hour start: %w", err)
		}
		if _, err := parseClock(c.HappyHour.Finish); err != nil {
			return fmt.Errorf("happy hour finish: %w", err)
		}
	}
	if c.Dynamic != nil && c.Dynamic.TokenThreshold <= 0 {
		return fmt.Errorf("dynamic pricing threshold must be positive, got %d", c.Dynamic.TokenThreshold)
	}
	return nil
}

// Resolve returns the effective rates for a completion observed at the
// given UTC instant with the given token volume. Happy hour applies first,
// then dynamic pricing on top of the result.
func (c Config) Resolve(at time.Time, promptTokens, responseTokens int) Rates {
	rates := c.Rates
	if c.HappyHour != nil && c.HappyHour.contains(at.UTC()) {
		rates = c.HappyHour.Rates
	}
	if c.Dynamic != nil && promptTokens+responseTokens > c.Dynamic.TokenThreshold {
		rates = c.Dynamic.Rates
	}
	return rates
}

// Cost computes the USD cost of one completion.
func (c Config) Cost(at time.Time, promptTokens, responseTokens, cachedTokens, cacheWriteTokens int) float64 {
	r := c.Resolve(at, promptTokens, responseTokens)
	return (r.Input*float64(promptTokens) +
		r.Output*float64(responseTokens) +
		r.Cached*float64(cachedTokens) +
		r.CacheWrite*float64(cacheWriteTokens)) * 1e-6
}

func (h *HappyHour) contains(at time.Time) bool {
	start, err := parseClock(h.Start)
	if err != nil {
		return false
	}
	finish, err := parseClock(h.Finish)
	if err != nil {
		return false
	}
	minute := at.Hour()*60 + at.Minute()
	if finish < start {
		// Overnight window: inside if after start or before finish.
		return minute >= start || minute <= finish
	}
	return minute >= start && minute <= finish
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return hh*60 + mm, nil
}
