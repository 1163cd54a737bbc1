package razorpay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"sattva/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.RazorpayConfig{
		KeyID:     "rzp_test_key",
		KeySecret: "secret",
		BaseURL:   srv.URL,
	})
}

func TestRefundPayment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_123/refund", r.URL.Path)
		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"rfnd_9","payment_id":"pay_123","amount":50000,"status":"processed","speed_processed":"normal","speed_requested":"optimum"}`))
	})

	refund, err := client.RefundPayment(context.Background(), RefundRequest{
		PaymentID:   "pay_123",
		AmountPaise: 50000,
		Speed:       "optimum",
	})
	require.NoError(t, err)
	assert.Equal(t, "rfnd_9", refund.ID)
	assert.Equal(t, int64(50000), refund.AmountPaise)
	assert.Equal(t, "processed", refund.Status)
}

func TestRefundPaymentGatewayError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The payment has been fully refunded already","source":"business","step":"payment_refund","reason":"payment_fully_refunded"}}`))
	})

	_, err := client.RefundPayment(context.Background(), RefundRequest{PaymentID: "pay_x", AmountPaise: 100})
	require.Error(t, err)

	gerr, ok := err.(*GatewayError)
	require.True(t, ok)
	assert.Equal(t, "BAD_REQUEST_ERROR", gerr.Code)
	assert.Equal(t, "payment_fully_refunded", gerr.Reason)
	assert.Equal(t, http.StatusBadRequest, gerr.HTTPStatus)
}

func TestCreateOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"order_7","amount":150000,"currency":"INR","receipt":"slot-1","status":"created"}`))
	})

	order, err := client.CreateOrder(context.Background(), 150000, "INR", "slot-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "order_7", order.ID)
	assert.Equal(t, int64(150000), order.AmountPaise)
}

func TestVerifySignature(t *testing.T) {
	client := NewClient(config.RazorpayConfig{KeySecret: "secret"})

	sig := client.sign("order_1", "pay_1")
	assert.True(t, client.VerifySignature("order_1", "pay_1", sig))
	assert.False(t, client.VerifySignature("order_1", "pay_1", "deadbeef"))
	assert.False(t, client.VerifySignature("order_2", "pay_1", sig))
}
