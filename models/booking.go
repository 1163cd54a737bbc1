package models

import (
	"time"
)

// Booking status values. The primary path is
// pending -> confirmed -> ongoing -> completed_pending -> completed_final,
// with cancelled / no_show / disputed as side branches. completed_final
// and cancelled are terminal.
const (
	BookingPending          = "pending"
	BookingConfirmed        = "confirmed"
	BookingOngoing          = "ongoing"
	BookingCompletedPending = "completed_pending"
	BookingCompletedFinal   = "completed_final"
	BookingCancelled        = "cancelled"
	BookingNoShow           = "no_show"
	BookingDisputed         = "disputed"
)

// Slot status values.
const (
	SlotAvailable   = "available"
	SlotBooked      = "booked"
	SlotUnavailable = "unavailable"
)

// Attendance roles.
const (
	RoleClient    = "client"
	RoleCounselor = "counselor"
)

// Slot is a counselor's bookable time window. At most one non-cancelled
// booking may reference a slot; the conditional reserve update plus the
// unique (counselorId, startTime) index enforce that.
type Slot struct {
	ID              string    `bson:"_id" json:"id"`
	CounselorID     string    `bson:"counselorId" json:"counselorId"`
	StartTime       time.Time `bson:"startTime" json:"startTime"`
	EndTime         time.Time `bson:"endTime" json:"endTime"`
	Status          string    `bson:"status" json:"status"`
	BasePricePaise  int64     `bson:"basePricePaise" json:"basePricePaise"`
	TotalPricePaise int64     `bson:"totalPricePaise" json:"totalPricePaise"`
	BookingID       string    `bson:"bookingId,omitempty" json:"bookingId,omitempty"`
	ClientID        string    `bson:"clientId,omitempty" json:"clientId,omitempty"`
	CreatedAt       time.Time `bson:"createdAt" json:"createdAt"`
}

// RoleAttendance is the per-party attendance sub-document. Present is
// derived at session end, never set from a client request.
type RoleAttendance struct {
	JoinIntentAt    *time.Time `bson:"joinIntentAt,omitempty" json:"joinIntentAt,omitempty"`
	JoinedAt        *time.Time `bson:"joinedAt,omitempty" json:"joinedAt,omitempty"`
	LeftAt          *time.Time `bson:"leftAt,omitempty" json:"leftAt,omitempty"`
	LastHeartbeatAt *time.Time `bson:"lastHeartbeatAt,omitempty" json:"lastHeartbeatAt,omitempty"`
	HeartbeatCount  int        `bson:"heartbeatCount" json:"heartbeatCount"`
	Present         bool       `bson:"present" json:"present"`
}

// AttendanceSummary minutes are written exactly once, by the end-of-session
// monitor.
type AttendanceSummary struct {
	SessionStartedAt *time.Time `bson:"sessionStartedAt,omitempty" json:"sessionStartedAt,omitempty"`
	SessionEndedAt   *time.Time `bson:"sessionEndedAt,omitempty" json:"sessionEndedAt,omitempty"`
	ClientMinutes    *float64   `bson:"clientMinutes,omitempty" json:"clientMinutes,omitempty"`
	CounselorMinutes *float64   `bson:"counselorMinutes,omitempty" json:"counselorMinutes,omitempty"`
}

type Attendance struct {
	Client    RoleAttendance    `bson:"client" json:"client"`
	Counselor RoleAttendance    `bson:"counselor" json:"counselor"`
	Summary   AttendanceSummary `bson:"summary" json:"summary"`
}

type Dispute struct {
	Raised   bool       `bson:"raised" json:"raised"`
	Reason   string     `bson:"reason,omitempty" json:"reason,omitempty"`
	RaisedBy string     `bson:"raisedBy,omitempty" json:"raisedBy,omitempty"`
	RaisedAt *time.Time `bson:"raisedAt,omitempty" json:"raisedAt,omitempty"`
}

type Payout struct {
	Released   bool       `bson:"released" json:"released"`
	HoldReason string     `bson:"holdReason,omitempty" json:"holdReason,omitempty"`
	ReleasedAt *time.Time `bson:"releasedAt,omitempty" json:"releasedAt,omitempty"`
}

type Cancellation struct {
	Reason      string     `bson:"reason,omitempty" json:"reason,omitempty"`
	CancelledBy string     `bson:"cancelledBy,omitempty" json:"cancelledBy,omitempty"`
	CancelledAt *time.Time `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
}

type Reschedule struct {
	FromSlotID    string     `bson:"fromSlotId,omitempty" json:"fromSlotId,omitempty"`
	RescheduledAt *time.Time `bson:"rescheduledAt,omitempty" json:"rescheduledAt,omitempty"`
	Count         int        `bson:"count" json:"count"`
}

type Completion struct {
	AutoConfirmAt *time.Time `bson:"autoConfirmAt,omitempty" json:"autoConfirmAt,omitempty"`
	FinalizedAt   *time.Time `bson:"finalizedAt,omitempty" json:"finalizedAt,omitempty"`
}

// Booking binds a client, counselor, slot and payment together with the
// attendance, dispute and payout sub-state. Bookings are never deleted;
// they are the financial audit record.
type Booking struct {
	ID              string        `bson:"_id" json:"id"`
	ClientID        string        `bson:"clientId" json:"clientId"`
	CounselorID     string        `bson:"counselorId" json:"counselorId"`
	SlotID          string        `bson:"slotId" json:"slotId"`
	PaymentID       string        `bson:"paymentId,omitempty" json:"paymentId,omitempty"`
	PricePaise      int64         `bson:"pricePaise" json:"pricePaise"`
	DurationMinutes int           `bson:"durationMinutes" json:"durationMinutes"`
	StartTime       time.Time     `bson:"startTime" json:"startTime"`
	EndTime         time.Time     `bson:"endTime" json:"endTime"`
	Status          string        `bson:"status" json:"status"`
	PaymentStatus   string        `bson:"paymentStatus" json:"paymentStatus"`
	NoShowType      string        `bson:"noShowType,omitempty" json:"noShowType,omitempty"`
	MeetingID       string        `bson:"meetingId,omitempty" json:"meetingId,omitempty"`
	MeetingURL      string        `bson:"meetingUrl,omitempty" json:"meetingUrl,omitempty"`
	Attendance      Attendance    `bson:"attendance" json:"attendance"`
	Dispute         Dispute       `bson:"dispute" json:"dispute"`
	Payout          Payout        `bson:"payout" json:"payout"`
	Cancellation    *Cancellation `bson:"cancellation,omitempty" json:"cancellation,omitempty"`
	Reschedule      *Reschedule   `bson:"reschedule,omitempty" json:"reschedule,omitempty"`
	Completion      Completion    `bson:"completion" json:"completion"`
	CreatedAt       time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// ActiveBookingStatuses are the statuses under which a booking still holds
// its slot.
var ActiveBookingStatuses = []string{
	BookingPending, BookingConfirmed, BookingOngoing,
	BookingCompletedPending, BookingDisputed,
}
