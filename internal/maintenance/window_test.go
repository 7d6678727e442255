package maintenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	operatorerrors "github.com/dc-tec/stream-operator/internal/errors"
)

func TestContains(t *testing.T) {
	// Sundays between 00:00 and 01:59, plus every day at 12:30.
	w, err := Parse([]string{"* 0-1 * * SUN", "30 12 * * *"})
	require.NoError(t, err)
	require.Equal(t, 2, w.Len())

	sunday := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Sunday, sunday.Weekday())

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "start of sunday window", now: sunday, want: true},
		{name: "inside sunday window", now: sunday.Add(90*time.Minute + 42*time.Second), want: true},
		{name: "after sunday window", now: sunday.Add(2 * time.Hour), want: false},
		{name: "monday night", now: sunday.Add(24*time.Hour + 30*time.Minute), want: false},
		{name: "daily window minute", now: sunday.Add(36*time.Hour + 30*time.Minute + 59*time.Second), want: true},
		{name: "minute after daily window", now: sunday.Add(36*time.Hour + 31*time.Minute), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Contains(tt.now))
		})
	}
}

func TestNoWindowsAlwaysInside(t *testing.T) {
	w, err := Parse(nil)
	require.NoError(t, err)
	assert.True(t, w.Contains(time.Now()))
	assert.True(t, Windows{}.Contains(time.Now()))
	assert.True(t, w.Next(time.Now()).IsZero())
	assert.Equal(t, "always", w.String())
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse([]string{"* * * * SUN", "not a cron"})
	require.Error(t, err)
	assert.True(t, operatorerrors.IsConfiguration(err))

	// Quartz-style seconds fields are not accepted.
	_, err = Parse([]string{"0 * 0-1 ? * SUN"})
	assert.Error(t, err)
}

func TestNext(t *testing.T) {
	w, err := Parse([]string{"0 3 * * *", "0 1 * * *"})
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 0, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 1, 1, 0, 0, 0, time.UTC), w.Next(now))
	assert.Equal(t, "0 3 * * *; 0 1 * * *", w.String())
}
