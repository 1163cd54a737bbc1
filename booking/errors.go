package booking

import "errors"

var (
	ErrSlotNotFound       = errors.New("slot not found")
	ErrSlotTaken          = errors.New("slot is no longer available")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrNotCancellable     = errors.New("booking is not in a cancellable state")
	ErrCancelWindowClosed = errors.New("cancellation window has closed")
	ErrNotYourBooking     = errors.New("booking belongs to another user")
)
