// Package razorpay is a thin client for the subset of the Razorpay REST
// API the service uses: orders, refunds and signature verification.
package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sattva/config"
)

// GatewayError carries the structured error body Razorpay returns on a
// failed call. Code distinguishes retryable server faults from permanent
// request faults.
type GatewayError struct {
	HTTPStatus  int    `json:"-"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Step        string `json:"step"`
	Reason      string `json:"reason"`
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("razorpay: %s (%s)", e.Description, e.Code)
}

// Order mirrors the gateway order object.
type Order struct {
	ID          string `json:"id"`
	AmountPaise int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
}

// Refund mirrors the gateway refund object.
type Refund struct {
	ID             string `json:"id"`
	PaymentID      string `json:"payment_id"`
	AmountPaise    int64  `json:"amount"`
	Status         string `json:"status"`
	SpeedProcessed string `json:"speed_processed"`
	SpeedRequested string `json:"speed_requested"`
}

// RefundRequest asks the gateway to return amountPaise to the payer.
type RefundRequest struct {
	PaymentID   string
	AmountPaise int64
	Speed       string
	Receipt     string
	Notes       map[string]string
}

type Client struct {
	keyID     string
	keySecret string
	baseURL   string
	httpc     *http.Client
}

func NewClient(cfg config.RazorpayConfig) *Client {
	return &Client{
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		baseURL:   cfg.BaseURL,
		httpc:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var wrapper struct {
			Error GatewayError `json:"error"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil || wrapper.Error.Code == "" {
			return &GatewayError{
				HTTPStatus:  resp.StatusCode,
				Code:        "GATEWAY_ERROR",
				Description: string(raw),
			}
		}
		wrapper.Error.HTTPStatus = resp.StatusCode
		return &wrapper.Error
	}

	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

// CreateOrder registers an order with the gateway before checkout.
func (c *Client) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string, notes map[string]string) (*Order, error) {
	body := map[string]interface{}{
		"amount":   amountPaise,
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		body["notes"] = notes
	}
	var order Order
	if err := c.do(ctx, http.MethodPost, "/orders", body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// RefundPayment issues a (possibly partial) refund against a captured
// payment.
func (c *Client) RefundPayment(ctx context.Context, req RefundRequest) (*Refund, error) {
	body := map[string]interface{}{
		"amount": req.AmountPaise,
	}
	if req.Speed != "" {
		body["speed"] = req.Speed
	}
	if req.Receipt != "" {
		body["receipt"] = req.Receipt
	}
	if len(req.Notes) > 0 {
		body["notes"] = req.Notes
	}
	var refund Refund
	if err := c.do(ctx, http.MethodPost, "/payments/"+req.PaymentID+"/refund", body, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *Client) sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the checkout callback signature:
// HMAC-SHA256(orderID + "|" + paymentID, keySecret).
func (c *Client) VerifySignature(orderID, paymentID, signature string) bool {
	expected := c.sign(orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
