package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeWellFormed(t *testing.T) {
	s := NormalizeJSON(`[
		{"weekdays": ["monday", "tuesday"], "open": "08:00", "close": "18:00"},
		{"weekdays": ["saturday"], "open": "08:00", "close": "12:00"}
	]`)

	mon := s.Hours(time.Monday)
	require.False(t, mon.Closed())
	assert.Equal(t, "08:00", mon.Open.String())
	assert.Equal(t, "18:00", mon.Close.String())

	sat := s.Hours(time.Saturday)
	require.False(t, sat.Closed())
	assert.Equal(t, "12:00", sat.Close.String())

	assert.True(t, s.Hours(time.Sunday).Closed())
	assert.True(t, s.Hours(time.Wednesday).Closed())
}

func TestNormalizeNeverFails(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{not json`},
		{"weekdays not an array", `[{"weekdays": "monday", "open": "08:00", "close": "18:00"}]`},
		{"missing open", `[{"weekdays": ["monday"], "close": "18:00"}]`},
		{"unparseable close", `[{"weekdays": ["monday"], "open": "08:00", "close": "six pm"}]`},
		{"numeric open", `[{"weekdays": ["monday"], "open": 8, "close": "18:00"}]`},
		{"unknown weekday", `[{"weekdays": ["someday"], "open": "08:00", "close": "18:00"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NormalizeJSON(tt.raw)
			for wd := time.Sunday; wd <= time.Saturday; wd++ {
				assert.True(t, s.Hours(wd).Closed(), "weekday %s should be closed", wd)
			}
		})
	}
}

func TestNormalizeMixedValidAndInvalidEntries(t *testing.T) {
	s := NormalizeJSON(`[
		{"weekdays": ["monday", 5, "friday"], "open": "09:00", "close": "17:00"},
		{"weekdays": null, "open": "08:00", "close": "12:00"}
	]`)

	assert.False(t, s.Hours(time.Monday).Closed())
	assert.False(t, s.Hours(time.Friday).Closed())
	assert.True(t, s.Hours(time.Tuesday).Closed())
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("08:30")
	require.NoError(t, err)
	assert.Equal(t, ClockTime(8*60+30), c)
	assert.Equal(t, "08:30", c.String())

	_, err = ParseClock("25:00")
	assert.Error(t, err)

	_, err = ParseClock("8am")
	assert.Error(t, err)
}
