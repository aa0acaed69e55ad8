package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepreport/internal/models"
)

func TestNormalizeCron(t *testing.T) {
	t.Run("Should prepend seconds to maintenance schedules", func(t *testing.T) {
		tests := map[string]struct {
			input    string
			expected string
		}{
			"resume every 5 minutes":  {"*/5 * * * *", "0 */5 * * * *"},
			"cleanup nightly at 3":    {"0 3 * * *", "0 0 3 * * *"},
			"cleanup on sundays":      {"30 4 * * 0", "0 30 4 * * 0"},
			"business hours resume":   {"*/10 9-17 * * 1-5", "0 */10 9-17 * * 1-5"},
			"twice a day":             {"0 6,18 * * *", "0 0 6,18 * * *"},
			"first day of each month": {"0 0 1 * *", "0 0 0 1 * *"},
		}

		for name, tt := range tests {
			t.Run(name, func(t *testing.T) {
				result, err := normalizeCron(tt.input)
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			})
		}
	})

	t.Run("Should keep a valid 6-field expression", func(t *testing.T) {
		for _, input := range []string{"0 */5 * * * *", "15 0 3 * * 1"} {
			result, err := normalizeCron(input)
			require.NoError(t, err)
			assert.Equal(t, input, result)
		}
	})

	t.Run("Should trim surrounding whitespace", func(t *testing.T) {
		result, err := normalizeCron("  */5 * * * *\n")
		require.NoError(t, err)
		assert.Equal(t, "0 */5 * * * *", result)
	})

	t.Run("Should reject malformed expressions", func(t *testing.T) {
		for _, input := range []string{"", "*", "0 3 * *", "0 0 3 * * * 2026", "61 3 * * *", "0 3 * * mon-xyz"} {
			_, err := normalizeCron(input)
			assert.Error(t, err, input)
		}
	})
}

func TestCronSpec(t *testing.T) {
	t.Run("Should leave UTC jobs unprefixed", func(t *testing.T) {
		assert.Equal(t, "0 0 3 * * *", cronSpec(&models.ScheduledJob{Cron: "0 0 3 * * *", Timezone: "UTC"}))
		assert.Equal(t, "0 0 3 * * *", cronSpec(&models.ScheduledJob{Cron: "0 0 3 * * *"}))
	})

	t.Run("Should prefix other timezones", func(t *testing.T) {
		spec := cronSpec(&models.ScheduledJob{Cron: "0 0 3 * * *", Timezone: "America/New_York"})
		assert.Equal(t, "CRON_TZ=America/New_York 0 0 3 * * *", spec)

		_, err := cronParser.Parse(spec)
		assert.NoError(t, err)
	})
}

func TestPayload(t *testing.T) {
	t.Run("Should encode structs and pass strings through", func(t *testing.T) {
		encoded, err := encodePayload(CleanupPayload{OlderThanHours: 48})
		require.NoError(t, err)
		assert.JSONEq(t, `{"older_than_hours":48}`, encoded)

		encoded, err = encodePayload(`{"older_than_hours":1}`)
		require.NoError(t, err)
		assert.Equal(t, `{"older_than_hours":1}`, encoded)

		encoded, err = encodePayload(nil)
		require.NoError(t, err)
		assert.Empty(t, encoded)
	})

	t.Run("Should fall back to the default retention", func(t *testing.T) {
		assert.Equal(t, defaultRetention, CleanupPayload{}.retention())
		assert.Equal(t, 48*time.Hour, CleanupPayload{OlderThanHours: 48}.retention())
	})
}

func TestToJobListResponse(t *testing.T) {
	t.Run("Should format run times as RFC3339", func(t *testing.T) {
		last := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
		job := &models.ScheduledJob{
			ID:        "job-1",
			Name:      "cleanup",
			JobType:   models.JobTypeCleanupProgress,
			Cron:      "0 0 3 * * *",
			Timezone:  "UTC",
			Enabled:   true,
			LastRunAt: &last,
		}

		resp := toJobListResponse(job)
		require.NotNil(t, resp.LastRunAt)
		assert.Equal(t, "2026-03-01T03:00:00Z", *resp.LastRunAt)
		assert.Nil(t, resp.NextRun)
		assert.True(t, resp.Enabled)
	})
}
