package models

import (
	"time"
)

// Attendance log event kinds.
const (
	AttJoinIntent = "join_intent"
	AttJoined     = "joined"
	AttHeartbeat  = "heartbeat"
	AttLeft       = "left"
	AttForcedEnd  = "forced_end"
)

// AttendanceLog is the append-only audit trail of session attendance.
// Rows are immutable once written; presence can be reconstructed from
// them independently of the mutable Booking summary.
type AttendanceLog struct {
	ID        string    `bson:"_id" json:"id"`
	BookingID string    `bson:"bookingId" json:"bookingId"`
	UserID    string    `bson:"userId" json:"userId"`
	Role      string    `bson:"role" json:"role"`
	Event     string    `bson:"event" json:"event"`
	At        time.Time `bson:"at" json:"at"`
	Meta      Meta      `bson:"meta,omitempty" json:"meta,omitempty"`
}
