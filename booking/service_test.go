package booking

import (
	"testing"
	"time"

	"sattva/models"

	"github.com/stretchr/testify/assert"
)

func TestCanCancel(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("well before the window", func(t *testing.T) {
		start := now.Add(72 * time.Hour)
		assert.True(t, CanCancel(start, now, 24))
	})

	t.Run("exactly at the boundary is allowed", func(t *testing.T) {
		start := now.Add(24 * time.Hour)
		assert.True(t, CanCancel(start, now, 24))
	})

	t.Run("one second inside the window is rejected", func(t *testing.T) {
		start := now.Add(24*time.Hour - time.Second)
		assert.False(t, CanCancel(start, now, 24))
	})

	t.Run("session already started", func(t *testing.T) {
		start := now.Add(-time.Hour)
		assert.False(t, CanCancel(start, now, 24))
	})

	t.Run("window is configurable", func(t *testing.T) {
		start := now.Add(30 * time.Hour)
		assert.False(t, CanCancel(start, now, 48))
		assert.True(t, CanCancel(start, now, 12))
	})
}

func TestCancelEligibility(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	bk := func(start time.Time) *models.Booking {
		return &models.Booking{
			ID:          "bk_1",
			ClientID:    "cl_1",
			CounselorID: "co_1",
			Status:      models.BookingConfirmed,
			StartTime:   start,
		}
	}

	t.Run("client outside the window may cancel", func(t *testing.T) {
		assert.NoError(t, cancelEligibility(bk(now.Add(48*time.Hour)), "cl_1", now, 24))
	})

	t.Run("counselor outside the window may cancel", func(t *testing.T) {
		assert.NoError(t, cancelEligibility(bk(now.Add(48*time.Hour)), "co_1", now, 24))
	})

	t.Run("client inside the window is rejected", func(t *testing.T) {
		err := cancelEligibility(bk(now.Add(time.Hour)), "cl_1", now, 24)
		assert.ErrorIs(t, err, ErrCancelWindowClosed)
	})

	t.Run("counselor inside the window is rejected too", func(t *testing.T) {
		err := cancelEligibility(bk(now.Add(time.Hour)), "co_1", now, 24)
		assert.ErrorIs(t, err, ErrCancelWindowClosed)
	})

	t.Run("stranger is rejected before any window logic", func(t *testing.T) {
		err := cancelEligibility(bk(now.Add(48*time.Hour)), "intruder", now, 24)
		assert.ErrorIs(t, err, ErrNotYourBooking)
	})

	t.Run("terminal states are not cancellable", func(t *testing.T) {
		b := bk(now.Add(48 * time.Hour))
		b.Status = models.BookingCompletedFinal
		assert.ErrorIs(t, cancelEligibility(b, "cl_1", now, 24), ErrNotCancellable)

		b.Status = models.BookingCancelled
		assert.ErrorIs(t, cancelEligibility(b, "co_1", now, 24), ErrNotCancellable)
	})
}
