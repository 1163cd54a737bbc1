package cron

import (
	"testing"

	"sattva/models"

	"github.com/stretchr/testify/assert"
)

func TestDecideOutcome(t *testing.T) {
	t.Run("both present completes pending confirmation", func(t *testing.T) {
		out := DecideOutcome(true, true)
		assert.Equal(t, models.BookingCompletedPending, out.Status)
		assert.Empty(t, out.NoShowType)
		assert.False(t, out.RefundClient)
	})

	t.Run("counselor no-show refunds the client and holds the payout", func(t *testing.T) {
		out := DecideOutcome(true, false)
		assert.Equal(t, models.BookingNoShow, out.Status)
		assert.Equal(t, NoShowCounselor, out.NoShowType)
		assert.True(t, out.RefundClient)
		assert.Equal(t, "counselor_no_show", out.HoldReason)
	})

	t.Run("client no-show forfeits the fee and records a dispute reason", func(t *testing.T) {
		out := DecideOutcome(false, true)
		assert.Equal(t, models.BookingNoShow, out.Status)
		assert.Equal(t, NoShowClient, out.NoShowType)
		assert.False(t, out.RefundClient)
		assert.Equal(t, "client_no_show", out.DisputeReason)
	})

	t.Run("both absent falls through to completed pending", func(t *testing.T) {
		out := DecideOutcome(false, false)
		assert.Equal(t, models.BookingCompletedPending, out.Status)
		assert.Empty(t, out.NoShowType)
		assert.False(t, out.RefundClient)
	})
}
