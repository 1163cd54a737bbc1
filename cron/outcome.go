package cron

import "sattva/models"

// NoShowType values recorded on the booking.
const (
	NoShowCounselor = "counselor"
	NoShowClient    = "client"
)

// Outcome is the end-of-session verdict derived from presence.
type Outcome struct {
	Status        string
	NoShowType    string
	RefundClient  bool
	HoldReason    string
	DisputeReason string
}

// DecideOutcome maps the two presence flags onto the booking's final
// direction. A counselor no-show makes the client whole and holds the
// payout; a client no-show forfeits the fee but flags the session for
// dispute review. When neither side showed, no branch matches and the
// booking completes pending confirmation, same as the both-present case.
func DecideOutcome(clientPresent, counselorPresent bool) Outcome {
	if clientPresent && !counselorPresent {
		return Outcome{
			Status:       models.BookingNoShow,
			NoShowType:   NoShowCounselor,
			RefundClient: true,
			HoldReason:   "counselor_no_show",
		}
	}
	if counselorPresent && !clientPresent {
		return Outcome{
			Status:        models.BookingNoShow,
			NoShowType:    NoShowClient,
			DisputeReason: "client_no_show",
		}
	}
	return Outcome{Status: models.BookingCompletedPending}
}
