package clock

import (
	"fmt"
	"time"
)

// Phase classifies a wall-clock instant within the trading day.
type Phase int

const (
	PreMarket Phase = iota
	Regular
	PostMarket
	Closed
)

func (p Phase) String() string {
	switch p {
	case PreMarket:
		return "pre_market"
	case Regular:
		return "regular"
	case PostMarket:
		return "post_market"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds the session boundaries as exchange-local time-of-day strings
// in "HH:MM:SS" form.
type Config struct {
	Timezone       string `yaml:"timezone"`         // IANA name, e.g. America/New_York
	PreMarketStart string `yaml:"pre_market_start"` // default 04:00:00
	MarketOpen     string `yaml:"market_open"`      // default 09:30:00
	MarketClose    string `yaml:"market_close"`     // default 16:00:00
	ForceClose     string `yaml:"force_close"`      // default 15:45:00
	PostMarketEnd  string `yaml:"post_market_end"`  // default 20:00:00
}

// DefaultConfig returns US equity session boundaries.
func DefaultConfig() Config {
	return Config{
		Timezone:       "America/New_York",
		PreMarketStart: "04:00:00",
		MarketOpen:     "09:30:00",
		MarketClose:    "16:00:00",
		ForceClose:     "15:45:00",
		PostMarketEnd:  "20:00:00",
	}
}

// Clock answers session-phase queries against fixed configured boundaries.
// It carries no mutable state; every query is a pure function of its input
// time, normalized into the configured exchange zone.
type Clock struct {
	loc        *time.Location
	preStart   int // seconds since midnight, exchange-local
	open       int
	close      int
	forceClose int
	postEnd    int
}

// New validates the configured boundaries and builds a Clock. Boundary
// ordering preStart <= open <= forceClose <= close <= postEnd is enforced.
func New(cfg Config) (*Clock, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	c := &Clock{loc: loc}
	fields := []struct {
		name  string
		value string
		dst   *int
	}{
		{"pre_market_start", cfg.PreMarketStart, &c.preStart},
		{"market_open", cfg.MarketOpen, &c.open},
		{"market_close", cfg.MarketClose, &c.close},
		{"force_close", cfg.ForceClose, &c.forceClose},
		{"post_market_end", cfg.PostMarketEnd, &c.postEnd},
	}
	for _, f := range fields {
		sec, err := parseTimeOfDay(f.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", f.name, f.value, err)
		}
		*f.dst = sec
	}

	if c.preStart > c.open || c.open > c.forceClose || c.forceClose > c.close || c.close > c.postEnd {
		return nil, fmt.Errorf("session boundaries out of order: pre=%s open=%s force=%s close=%s post=%s",
			cfg.PreMarketStart, cfg.MarketOpen, cfg.ForceClose, cfg.MarketClose, cfg.PostMarketEnd)
	}
	return c, nil
}

func parseTimeOfDay(s string) (int, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*3600 + t.Minute()*60 + t.Second(), nil
}

// secondOfDay normalizes now into the exchange zone and returns the number
// of seconds elapsed since local midnight.
func (c *Clock) secondOfDay(now time.Time) int {
	local := now.In(c.loc)
	return local.Hour()*3600 + local.Minute()*60 + local.Second()
}

// IsTradingTime reports whether now falls within [open, close]. Both
// boundaries are inclusive.
func (c *Clock) IsTradingTime(now time.Time) bool {
	sod := c.secondOfDay(now)
	return sod >= c.open && sod <= c.close
}

// ShouldForceClose reports whether the force-close window has been reached.
// The boundary itself is inside the window.
func (c *Clock) ShouldForceClose(now time.Time) bool {
	return c.secondOfDay(now) >= c.forceClose
}

// Phase classifies now into the four session phases.
func (c *Clock) Phase(now time.Time) Phase {
	sod := c.secondOfDay(now)
	switch {
	case sod >= c.open && sod <= c.close:
		return Regular
	case sod >= c.preStart && sod < c.open:
		return PreMarket
	case sod > c.close && sod <= c.postEnd:
		return PostMarket
	default:
		return Closed
	}
}

// NextSessionOpen returns the next open boundary strictly after now: today's
// open if now precedes it, otherwise tomorrow's.
func (c *Clock) NextSessionOpen(now time.Time) time.Time {
	local := now.In(c.loc)
	open := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc).
		Add(time.Duration(c.open) * time.Second)
	if c.secondOfDay(now) >= c.open {
		open = open.AddDate(0, 0, 1)
	}
	return open
}

// TimeUntilForceClose returns how long until today's force-close boundary,
// zero if it has already passed.
func (c *Clock) TimeUntilForceClose(now time.Time) time.Duration {
	remaining := time.Duration(c.forceClose-c.secondOfDay(now)) * time.Second
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Location exposes the exchange time zone for callers that need to
// normalize timestamps.
func (c *Clock) Location() *time.Location {
	return c.loc
}
