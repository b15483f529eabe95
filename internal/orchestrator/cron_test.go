package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDue(t *testing.T) {
	after := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		expr string
		want time.Time
	}{
		{"every minute", "* * * * *", time.Date(2025, 6, 1, 12, 31, 0, 0, time.UTC)},
		{"hourly on the hour", "0 * * * *", time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)},
		{"daily at midnight", "0 0 * * *", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)},
		{"every five minutes", "*/5 * * * *", time.Date(2025, 6, 1, 12, 35, 0, 0, time.UTC)},
		{"first of the month", "0 0 1 * *", time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NextDue(tc.expr, after)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNextDue_Invalid(t *testing.T) {
	for _, expr := range []string{"", "not a cron", "* * *", "61 * * * *"} {
		_, err := NextDue(expr, time.Now())
		assert.Error(t, err, "expr %q", expr)
	}
}

func TestDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	t.Run("nil watermark is due immediately", func(t *testing.T) {
		due, err := Due("0 0 * * *", nil, now)
		require.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("elapsed fire time is due", func(t *testing.T) {
		last := now.Add(-2 * time.Minute)
		due, err := Due("* * * * *", &last, now)
		require.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("future fire time is not due", func(t *testing.T) {
		last := now.Add(-time.Minute)
		due, err := Due("0 0 * * *", &last, now)
		require.NoError(t, err)
		assert.False(t, due)
	})

	t.Run("bad expression errors", func(t *testing.T) {
		last := now.Add(-time.Hour)
		_, err := Due("bogus", &last, now)
		assert.Error(t, err)
	})

	t.Run("bad expression errors even with nil watermark", func(t *testing.T) {
		due, err := Due("not a cron expression", nil, now)
		assert.Error(t, err)
		assert.False(t, due)
	})
}
