package attendance

import (
	"testing"

	"sattva/config"

	"github.com/stretchr/testify/assert"
)

func defaultThresholds() Thresholds {
	return NewThresholds(
		config.PresenceConfig{MinMinutes: 10, MinHeartbeats: 20, MinFraction: 0.20},
		config.SessionConfig{HeartbeatCadenceSec: 30},
	)
}

func TestEstimateMinutes(t *testing.T) {
	// 30s cadence: two beats per minute.
	assert.Equal(t, 10.0, EstimateMinutes(20, 30, 60))
	assert.Equal(t, 1.5, EstimateMinutes(3, 30, 60))

	// Capped at the scheduled duration.
	assert.Equal(t, 45.0, EstimateMinutes(200, 30, 45))
	assert.Equal(t, 0.0, EstimateMinutes(0, 30, 45))
}

func TestPresentThresholds(t *testing.T) {
	th := defaultThresholds()

	t.Run("20 beats in a 45 minute session", func(t *testing.T) {
		// est = 10 minutes, which meets both the minutes floor and the
		// beat count.
		assert.True(t, th.Present(20, 45))
	})

	t.Run("counselor with 25 beats is present", func(t *testing.T) {
		assert.True(t, th.Present(25, 45))
	})

	t.Run("client with 3 beats is absent", func(t *testing.T) {
		// est = 1.5 min < 10, count 3 < 20, 1.5 < 0.2*45 = 9.
		assert.False(t, th.Present(3, 45))
	})

	t.Run("zero beats is absent", func(t *testing.T) {
		assert.False(t, th.Present(0, 45))
	})

	t.Run("fraction rule rescues a short session", func(t *testing.T) {
		// 15 minute session: 7 beats = 3.5 min, short of the 10 minute
		// floor and the 20 beat count, but 3.5 >= 0.2*15 = 3.
		assert.True(t, th.Present(7, 15))
	})

	t.Run("just under the fraction rule", func(t *testing.T) {
		// 5 beats = 2.5 min < 3 = 0.2*15.
		assert.False(t, th.Present(5, 15))
	})
}

func TestMinutesMatchesEstimate(t *testing.T) {
	th := defaultThresholds()
	assert.Equal(t, 12.5, th.Minutes(25, 45))
	assert.Equal(t, 45.0, th.Minutes(500, 45))
}
