package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClock(t *testing.T) *Clock {
	t.Helper()
	c, err := New(DefaultConfig())
	require.NoError(t, err)
	return c
}

// at builds an exchange-local timestamp on a fixed trading day.
func at(t *testing.T, c *Clock, hms string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", "2025-03-10 "+hms, c.Location())
	require.NoError(t, err)
	return ts
}

func TestIsTradingTime_BoundariesInclusive(t *testing.T) {
	c := newTestClock(t)

	tests := []struct {
		name string
		hms  string
		want bool
	}{
		{"before open", "09:29:59", false},
		{"exactly open", "09:30:00", true},
		{"mid session", "12:00:00", true},
		{"exactly close", "16:00:00", true},
		{"after close", "16:00:01", false},
		{"overnight", "02:00:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsTradingTime(at(t, c, tt.hms)))
		})
	}
}

func TestShouldForceClose_Boundary(t *testing.T) {
	c := newTestClock(t)

	assert.False(t, c.ShouldForceClose(at(t, c, "15:44:59")))
	assert.True(t, c.ShouldForceClose(at(t, c, "15:45:00")))
	assert.True(t, c.ShouldForceClose(at(t, c, "15:50:00")))
}

func TestShouldForceClose_NormalizesZone(t *testing.T) {
	c := newTestClock(t)

	// 19:45 UTC on 2025-03-10 is 15:45 in New York (EDT).
	utc := time.Date(2025, 3, 10, 19, 45, 0, 0, time.UTC)
	assert.True(t, c.ShouldForceClose(utc))
	assert.False(t, c.ShouldForceClose(utc.Add(-time.Second)))
}

func TestPhase(t *testing.T) {
	c := newTestClock(t)

	assert.Equal(t, Closed, c.Phase(at(t, c, "03:00:00")))
	assert.Equal(t, PreMarket, c.Phase(at(t, c, "08:00:00")))
	assert.Equal(t, Regular, c.Phase(at(t, c, "09:30:00")))
	assert.Equal(t, Regular, c.Phase(at(t, c, "16:00:00")))
	assert.Equal(t, PostMarket, c.Phase(at(t, c, "17:30:00")))
	assert.Equal(t, Closed, c.Phase(at(t, c, "21:00:00")))
}

func TestNextSessionOpen(t *testing.T) {
	c := newTestClock(t)

	before := at(t, c, "08:00:00")
	open := c.NextSessionOpen(before)
	assert.Equal(t, at(t, c, "09:30:00"), open)

	// At the open boundary, the next open is tomorrow's.
	atOpen := at(t, c, "09:30:00")
	assert.Equal(t, atOpen.AddDate(0, 0, 1), c.NextSessionOpen(atOpen))

	afternoon := at(t, c, "14:00:00")
	assert.Equal(t, at(t, c, "09:30:00").AddDate(0, 0, 1), c.NextSessionOpen(afternoon))
}

func TestTimeUntilForceClose(t *testing.T) {
	c := newTestClock(t)

	assert.Equal(t, 15*time.Minute, c.TimeUntilForceClose(at(t, c, "15:30:00")))
	assert.Equal(t, time.Duration(0), c.TimeUntilForceClose(at(t, c, "15:50:00")))
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ForceClose = "16:30:00" // after market close
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.MarketOpen = "930"
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Timezone = "Mars/Olympus"
	_, err = New(cfg)
	assert.Error(t, err)
}
