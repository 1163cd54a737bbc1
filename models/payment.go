package models

import (
	"time"
)

// Meta is a generic key-value map for gateway/refund metadata.
type Meta map[string]interface{}

// Gateway-facing payment status.
const (
	PaymentCreated  = "created"
	PaymentCaptured = "captured"
)

// Booking-linkage status of a captured payment. A payment that stays
// captured_unlinked for longer than the configured orphan age is refunded
// automatically by the reconciliation sweep.
const (
	LinkCapturedUnlinked = "captured_unlinked"
	LinkPendingResources = "pending_resources"
	LinkCompleted        = "completed"
	LinkRefunded         = "refunded"
)

// Refund status derived from cumulative refunded amount.
const (
	RefundNone    = "none"
	RefundPartial = "partial"
	RefundFull    = "full"
)

// Payment records a gateway capture. amountRefundedPaise never exceeds
// amountPaise. Payments are never deleted.
type Payment struct {
	ID                  string    `bson:"_id" json:"id"`
	OrderID             string    `bson:"orderId" json:"orderId"`
	GatewayPaymentID    string    `bson:"gatewayPaymentId,omitempty" json:"gatewayPaymentId,omitempty"`
	Signature           string    `bson:"signature,omitempty" json:"-"`
	ClientID            string    `bson:"clientId" json:"clientId"`
	SlotID              string    `bson:"slotId" json:"slotId"`
	BookingID           string    `bson:"bookingId,omitempty" json:"bookingId,omitempty"`
	AmountPaise         int64     `bson:"amountPaise" json:"amountPaise"`
	AmountRefundedPaise int64     `bson:"amountRefundedPaise" json:"amountRefundedPaise"`
	RefundStatus        string    `bson:"refundStatus" json:"refundStatus"`
	Status              string    `bson:"status" json:"status"`
	BookingStatus       string    `bson:"bookingStatus" json:"bookingStatus"`
	CreatedAt           time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Refund reasons (closed enum).
const (
	RefundReasonBookingFailed    = "booking_failed"
	RefundReasonBookingCancelled = "booking_cancelled"
	RefundReasonCounselorNoShow  = "counselor_no_show"
	RefundReasonAdmin            = "admin"
)

// PaymentRefund is one row per refund attempt, failed attempts included.
// When the gateway call never returned a real id, RefundID is synthesized
// as FAILED_<timestamp>.
type PaymentRefund struct {
	ID               string    `bson:"_id" json:"id"`
	PaymentRef       string    `bson:"paymentRef" json:"paymentRef"`
	GatewayPaymentID string    `bson:"gatewayPaymentId" json:"gatewayPaymentId"`
	RefundID         string    `bson:"refundId" json:"refundId"`
	AmountPaise      int64     `bson:"amountPaise" json:"amountPaise"`
	Reason           string    `bson:"reason" json:"reason"`
	Status           string    `bson:"status" json:"status"`
	SpeedProcessed   string    `bson:"speedProcessed,omitempty" json:"speedProcessed,omitempty"`
	SpeedRequested   string    `bson:"speedRequested,omitempty" json:"speedRequested,omitempty"`
	ErrorDetail      string    `bson:"errorDetail,omitempty" json:"errorDetail,omitempty"`
	Meta             Meta      `bson:"meta,omitempty" json:"meta,omitempty"`
	CreatedAt        time.Time `bson:"createdAt" json:"createdAt"`
}

// Idempotency request types.
const (
	IdemCheckout = "checkout"
	IdemVerify   = "verify"
	IdemRefund   = "refund"
)

// IdempotencyRecord guards at-most-once processing of client-retried
// payment operations. Records expire 24 hours after creation via the TTL
// index on expires_at.
type IdempotencyRecord struct {
	Key         string                 `bson:"key" json:"key"`
	RequestType string                 `bson:"request_type" json:"request_type"`
	Method      string                 `bson:"method" json:"method"`
	Path        string                 `bson:"path" json:"path"`
	UserID      string                 `bson:"userid" json:"userid"`
	RequestHash string                 `bson:"request_hash" json:"request_hash"`
	Response    map[string]interface{} `bson:"response,omitempty" json:"response,omitempty"`
	Status      string                 `bson:"status" json:"status"`
	Attempts    int                    `bson:"attempts" json:"attempts"`
	CreatedAt   time.Time              `bson:"created_at" json:"created_at"`
	ExpiresAt   time.Time              `bson:"expires_at" json:"expires_at"`
}
