package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func at(hour, min, sec int) time.Time {
	return time.Date(2024, time.March, 10, hour, min, sec, 0, time.UTC)
}

func TestIsWindowOpen_AllHours(t *testing.T) {
	for h := 0; h < 24; h++ {
		want := h == 8 || h == 20
		assert.Equal(t, want, IsWindowOpen(at(h, 30, 0)), "hour %d", h)
	}
}

func TestIsWindowOpen_Boundaries(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		open bool
	}{
		{"BeforeMorning", at(7, 59, 59), false},
		{"MorningStart", at(8, 0, 0), true},
		{"MorningLastSecond", at(8, 59, 59), true},
		{"MorningEnd", at(9, 0, 0), false},
		{"EveningStart", at(20, 0, 0), true},
		{"EveningLastSecond", at(20, 59, 59), true},
		{"EveningEnd", at(21, 0, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.open, IsWindowOpen(tt.now))
		})
	}
}

func TestProperty_OpenOnlyAtWindowHours(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := rapid.IntRange(0, 23).Draw(t, "hour")
		m := rapid.IntRange(0, 59).Draw(t, "minute")
		s := rapid.IntRange(0, 59).Draw(t, "second")

		got := IsWindowOpen(at(h, m, s))
		if got != (h == 8 || h == 20) {
			t.Fatalf("IsWindowOpen at %02d:%02d:%02d = %v", h, m, s, got)
		}
	})
}

func TestTimeToNextWindow(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{"EarlyMorning", at(6, 30, 0), 90 * time.Minute},
		{"Midnight", at(0, 0, 0), 8 * time.Hour},
		{"DuringMorningWindow", at(8, 0, 0), 12 * time.Hour},
		{"Afternoon", at(14, 15, 0), 5*time.Hour + 45*time.Minute},
		{"DuringEveningWindow", at(20, 10, 0), 11*time.Hour + 50*time.Minute},
		{"LateNight", at(23, 0, 0), 9 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeToNextWindow(tt.now))
		})
	}
}

func TestPolicy_UsesLocation(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	p, err := NewPolicy(ist)
	require.NoError(t, err)

	// 02:30 UTC is 08:00 IST
	assert.True(t, p.IsOpen(time.Date(2024, time.March, 10, 2, 30, 0, 0, time.UTC)))
	// 08:30 UTC is 14:00 IST
	assert.False(t, p.IsOpen(time.Date(2024, time.March, 10, 8, 30, 0, 0, time.UTC)))

	next := p.NextOpening(time.Date(2024, time.March, 10, 8, 30, 0, 0, time.UTC))
	assert.Equal(t, 20, next.Hour())
	assert.Equal(t, ist, next.Location())
}

func TestNewPolicy_Validation(t *testing.T) {
	_, err := NewPolicy(nil, 25)
	assert.Error(t, err)

	_, err = NewPolicy(nil, 8, 8)
	assert.Error(t, err)

	p, err := NewPolicy(nil, 20, 6)
	require.NoError(t, err)
	assert.Equal(t, []int{6, 20}, p.Hours())
}

func TestPolicy_Status(t *testing.T) {
	p, err := NewPolicy(nil)
	require.NoError(t, err)

	open := p.Status(at(20, 15, 0))
	assert.True(t, open.Open)
	require.NotNil(t, open.ClosesAt)
	assert.Equal(t, at(21, 0, 0), *open.ClosesAt)
	assert.Equal(t, "11h 45m", open.Countdown)

	closed := p.Status(at(10, 0, 0))
	assert.False(t, closed.Open)
	assert.Nil(t, closed.ClosesAt)
	assert.Equal(t, at(20, 0, 0), closed.NextOpening)
}

func TestFormatCountdown(t *testing.T) {
	assert.Equal(t, "0h 0m", FormatCountdown(-time.Minute))
	assert.Equal(t, "2h 5m", FormatCountdown(2*time.Hour+5*time.Minute+59*time.Second))
}
