package pay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"sattva/models"
	"sattva/razorpay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	payment *models.Payment
	refunds []*models.PaymentRefund
	applied []string
}

func (f *fakeStore) GetPayment(_ context.Context, id string) (*models.Payment, error) {
	if f.payment == nil || f.payment.ID != id {
		return nil, errors.New("payment not found")
	}
	copied := *f.payment
	return &copied, nil
}

func (f *fakeStore) InsertRefund(_ context.Context, r *models.PaymentRefund) error {
	f.refunds = append(f.refunds, r)
	return nil
}

func (f *fakeStore) ApplyRefund(_ context.Context, paymentID string, _ int64, refundStatus string) error {
	f.applied = append(f.applied, paymentID+":"+refundStatus)
	return nil
}

type fakeGateway struct {
	calls    int
	failures int // fail this many calls before succeeding
	err      error
	refund   *razorpay.Refund
	requests []razorpay.RefundRequest
}

func (f *fakeGateway) RefundPayment(_ context.Context, req razorpay.RefundRequest) (*razorpay.Refund, error) {
	f.calls++
	f.requests = append(f.requests, req)
	if f.calls <= f.failures {
		return nil, f.err
	}
	if f.refund != nil {
		return f.refund, nil
	}
	return &razorpay.Refund{
		ID:          "rfnd_ok",
		PaymentID:   req.PaymentID,
		AmountPaise: req.AmountPaise,
		Status:      "processed",
	}, nil
}

func newTestService(gw Gateway, st refundStore) *RefundService {
	return &RefundService{
		gateway:    gw,
		store:      st,
		maxRetries: 3,
		minUnit:    100,
		sleep:      func(time.Duration) {},
	}
}

func testPayment() *models.Payment {
	return &models.Payment{
		ID:               "payrec_1",
		GatewayPaymentID: "pay_abc",
		BookingID:        "bk_1",
		AmountPaise:      150000,
		Status:           models.PaymentCaptured,
	}
}

func TestInitiateRefundSuccess(t *testing.T) {
	gw := &fakeGateway{}
	st := &fakeStore{payment: testPayment()}
	svc := newTestService(gw, st)

	res, err := svc.InitiateRefund(context.Background(), testPayment(), models.RefundReasonBookingCancelled)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "rfnd_ok", res.RefundID)
	assert.Equal(t, int64(150000), res.AmountPaise)

	require.Len(t, st.refunds, 1)
	assert.Equal(t, models.RefundReasonBookingCancelled, st.refunds[0].Reason)
	require.Len(t, st.applied, 1)
	assert.Equal(t, "payrec_1:full", st.applied[0])
}

func TestInitiateRefundNotesCarryAuditTrail(t *testing.T) {
	gw := &fakeGateway{}
	st := &fakeStore{payment: testPayment()}
	svc := newTestService(gw, st)

	_, err := svc.InitiateRefund(context.Background(), testPayment(), models.RefundReasonCounselorNoShow)
	require.NoError(t, err)

	require.Len(t, gw.requests, 1)
	notes := gw.requests[0].Notes
	assert.Equal(t, models.RefundReasonCounselorNoShow, notes["reason"])
	assert.Equal(t, "payrec_1", notes["paymentId"])
	assert.Equal(t, "bk_1", notes["bookingId"])
	assert.Equal(t, "1", notes["attempt"])
}

func TestInitiateRefundAlreadyRefunded(t *testing.T) {
	gw := &fakeGateway{}
	settled := testPayment()
	settled.AmountRefundedPaise = settled.AmountPaise
	st := &fakeStore{payment: settled}
	svc := newTestService(gw, st)

	// The caller's copy is stale and still claims nothing was refunded;
	// the reload must catch the settled state.
	stale := testPayment()

	res, err := svc.InitiateRefund(context.Background(), stale, models.RefundReasonAdmin)
	require.NoError(t, err)
	assert.True(t, res.AlreadyRefunded)
	assert.False(t, res.Success)

	// The gateway must not be touched for a settled payment.
	assert.Equal(t, 0, gw.calls)
	assert.Empty(t, st.refunds)
}

func TestInitiateRefundBelowMinUnit(t *testing.T) {
	gw := &fakeGateway{}
	p := testPayment()
	p.AmountRefundedPaise = p.AmountPaise - 50
	svc := newTestService(gw, &fakeStore{payment: p})

	_, err := svc.InitiateRefund(context.Background(), testPayment(), models.RefundReasonAdmin)
	require.ErrorIs(t, err, ErrBelowMinUnit)
	assert.Equal(t, 0, gw.calls)
}

func TestInitiateRefundRetriesThenSucceeds(t *testing.T) {
	gw := &fakeGateway{
		failures: 2,
		err:      &razorpay.GatewayError{HTTPStatus: 502, Code: "SERVER_ERROR", Description: "gateway busy"},
	}
	st := &fakeStore{payment: testPayment()}
	svc := newTestService(gw, st)

	res, err := svc.InitiateRefund(context.Background(), testPayment(), models.RefundReasonBookingFailed)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, gw.calls)

	// Each attempt labels itself in the gateway notes.
	require.Len(t, gw.requests, 3)
	assert.Equal(t, "1", gw.requests[0].Notes["attempt"])
	assert.Equal(t, "2", gw.requests[1].Notes["attempt"])
	assert.Equal(t, "3", gw.requests[2].Notes["attempt"])
}

func TestInitiateRefundNonRetryableStopsImmediately(t *testing.T) {
	gw := &fakeGateway{
		failures: 10,
		err: &razorpay.GatewayError{
			HTTPStatus:  400,
			Code:        "BAD_REQUEST_ERROR",
			Description: "The payment has been fully refunded already",
			Source:      "business",
			Step:        "payment_refund",
			Reason:      "payment_fully_refunded",
		},
	}
	st := &fakeStore{payment: testPayment()}
	svc := newTestService(gw, st)

	_, err := svc.InitiateRefund(context.Background(), testPayment(), models.RefundReasonCounselorNoShow)
	require.Error(t, err)

	// Exactly one gateway call and exactly one FAILED audit row.
	assert.Equal(t, 1, gw.calls)
	require.Len(t, st.refunds, 1)
	row := st.refunds[0]
	assert.True(t, strings.HasPrefix(row.RefundID, "FAILED_"))
	assert.Equal(t, "failed", row.Status)
	assert.Contains(t, row.ErrorDetail, "code=BAD_REQUEST_ERROR")
	assert.Contains(t, row.ErrorDetail, "step=payment_refund")
	assert.Contains(t, row.ErrorDetail, "attempts=1")
	assert.Empty(t, st.applied)
}

func TestInitiateRefundExhaustsRetries(t *testing.T) {
	gw := &fakeGateway{
		failures: 10,
		err:      errors.New("connection reset"),
	}
	st := &fakeStore{payment: testPayment()}
	svc := newTestService(gw, st)

	_, err := svc.InitiateRefund(context.Background(), testPayment(), models.RefundReasonBookingFailed)
	require.Error(t, err)
	assert.Equal(t, 4, gw.calls) // initial try + 3 retries

	require.Len(t, st.refunds, 1)
	assert.Contains(t, st.refunds[0].ErrorDetail, "attempts=4")
}

func TestPartialRefundStatus(t *testing.T) {
	gw := &fakeGateway{refund: &razorpay.Refund{ID: "rfnd_p", AmountPaise: 40000, Status: "processed"}}
	st := &fakeStore{payment: testPayment()}
	svc := newTestService(gw, st)

	// 150000 total, the gateway refunds only 40000.
	res, err := svc.InitiateRefund(context.Background(), testPayment(), models.RefundReasonAdmin)
	require.NoError(t, err)
	assert.True(t, res.Success)

	require.Len(t, st.applied, 1)
	assert.Equal(t, "payrec_1:partial", st.applied[0])
}

func TestBackoffDelayCapped(t *testing.T) {
	for attempt := 0; attempt < 12; attempt++ {
		d := backoffDelay(attempt)
		assert.LessOrEqual(t, d, 10*time.Second, "attempt %d", attempt)
		assert.GreaterOrEqual(t, d, time.Second)
	}
}

func TestIsNonRetryable(t *testing.T) {
	assert.True(t, isNonRetryable(&razorpay.GatewayError{HTTPStatus: 400, Code: "BAD_REQUEST_ERROR"}))
	assert.True(t, isNonRetryable(errors.New("payment pay_x has already been refunded")))
	assert.False(t, isNonRetryable(&razorpay.GatewayError{HTTPStatus: 429, Code: "RATE_LIMITED", Description: "slow down"}))
	assert.False(t, isNonRetryable(&razorpay.GatewayError{HTTPStatus: 500, Code: "SERVER_ERROR", Description: "try later"}))
	assert.False(t, isNonRetryable(errors.New("connection reset")))
}
