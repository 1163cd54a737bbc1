package pay

import (
	"context"
	"errors"
	"fmt"
	rndm "math/rand"
	"strconv"
	"strings"
	"time"

	"sattva/config"
	"sattva/db"
	"sattva/mailer"
	"sattva/models"
	"sattva/razorpay"
	"sattva/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	ErrNothingToRefund = errors.New("nothing left to refund")
	ErrBelowMinUnit    = errors.New("refundable amount below gateway minimum")
)

// Gateway is the slice of the payment gateway the refund loop needs.
type Gateway interface {
	RefundPayment(ctx context.Context, req razorpay.RefundRequest) (*razorpay.Refund, error)
}

// refundStore abstracts the refund persistence so the retry loop is
// testable without Mongo.
type refundStore interface {
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	InsertRefund(ctx context.Context, refund *models.PaymentRefund) error
	ApplyRefund(ctx context.Context, paymentID string, amountPaise int64, refundStatus string) error
}

type mongoRefundStore struct{}

func (mongoRefundStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	if err := db.PaymentsCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (mongoRefundStore) InsertRefund(ctx context.Context, refund *models.PaymentRefund) error {
	_, err := db.RefundsCollection.InsertOne(ctx, refund)
	return err
}

func (mongoRefundStore) ApplyRefund(ctx context.Context, paymentID string, amountPaise int64, refundStatus string) error {
	_, err := db.PaymentsCollection.UpdateOne(ctx,
		bson.M{"_id": paymentID},
		bson.M{
			"$inc": bson.M{"amountRefundedPaise": amountPaise},
			"$set": bson.M{
				"refundStatus":  refundStatus,
				"bookingStatus": models.LinkRefunded,
				"updatedAt":     time.Now(),
			},
		},
	)
	return err
}

// RefundResult reports what a refund call actually did.
type RefundResult struct {
	Success         bool   `json:"success"`
	AlreadyRefunded bool   `json:"alreadyRefunded"`
	RefundID        string `json:"refundId,omitempty"`
	AmountPaise     int64  `json:"amountPaise"`
}

// RefundService drives gateway refunds with retry. Every attempt outcome
// is persisted; a refund that ultimately fails still leaves a FAILED row
// for the finance team to reconcile.
type RefundService struct {
	gateway    Gateway
	store      refundStore
	mail       mailer.Sender
	maxRetries int
	minUnit    int64
	sleep      func(time.Duration)
}

func NewRefundService(gateway Gateway, mail mailer.Sender, cfg config.RefundConfig) *RefundService {
	return &RefundService{
		gateway:    gateway,
		store:      mongoRefundStore{},
		mail:       mail,
		maxRetries: cfg.MaxRetries,
		minUnit:    cfg.MinUnitPaise,
		sleep:      time.Sleep,
	}
}

// InitiateRefund refunds the remaining refundable amount on the
// payment. The payment is reloaded first, so a concurrent initiation
// that already refunded it turns this call into a no-op rather than a
// double refund. Pass a SessionContext as ctx to run the persistence
// inside an enclosing transaction.
func (s *RefundService) InitiateRefund(ctx context.Context, payment *models.Payment, reason string) (*RefundResult, error) {
	payment, err := s.store.GetPayment(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("reload payment: %w", err)
	}

	refundable := payment.AmountPaise - payment.AmountRefundedPaise
	if refundable <= 0 {
		return &RefundResult{AlreadyRefunded: true}, nil
	}
	if refundable < s.minUnit {
		return nil, fmt.Errorf("%w: %d paise", ErrBelowMinUnit, refundable)
	}
	if payment.GatewayPaymentID == "" {
		return nil, fmt.Errorf("payment %s has no gateway payment id", payment.ID)
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.sleep(backoffDelay(attempt))
		}
		attempts++

		req := razorpay.RefundRequest{
			PaymentID:   payment.GatewayPaymentID,
			AmountPaise: refundable,
			Speed:       "optimum",
			Receipt:     payment.ID,
			Notes: map[string]string{
				"reason":    reason,
				"paymentId": payment.ID,
				"bookingId": payment.BookingID,
				"attempt":   strconv.Itoa(attempts),
			},
		}

		refund, err := s.gateway.RefundPayment(ctx, req)
		if err == nil {
			return s.recordSuccess(ctx, payment, refund, reason, refundable)
		}
		lastErr = err

		if isNonRetryable(err) {
			logrus.WithFields(logrus.Fields{
				"paymentId": payment.ID,
				"reason":    reason,
			}).Warnf("refund permanently rejected: %v", err)
			break
		}
		logrus.Warnf("refund attempt %d for payment %s failed: %v", attempts, payment.ID, err)
	}

	if err := s.recordFailure(ctx, payment, reason, refundable, lastErr, attempts); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("refund for payment %s failed: %w", payment.ID, lastErr)
}

func (s *RefundService) recordSuccess(ctx context.Context, payment *models.Payment, refund *razorpay.Refund, reason string, amount int64) (*RefundResult, error) {
	row := &models.PaymentRefund{
		ID:               utils.GetUUID(),
		PaymentRef:       payment.ID,
		GatewayPaymentID: payment.GatewayPaymentID,
		RefundID:         refund.ID,
		AmountPaise:      refund.AmountPaise,
		Reason:           reason,
		Status:           refund.Status,
		SpeedProcessed:   refund.SpeedProcessed,
		SpeedRequested:   refund.SpeedRequested,
		CreatedAt:        time.Now(),
	}
	if err := s.store.InsertRefund(ctx, row); err != nil {
		if db.IsDuplicateKeyError(err) {
			// Refund already recorded by a concurrent caller.
			return &RefundResult{AlreadyRefunded: true, RefundID: refund.ID}, nil
		}
		return nil, err
	}

	refundStatus := models.RefundFull
	if payment.AmountRefundedPaise+refund.AmountPaise < payment.AmountPaise {
		refundStatus = models.RefundPartial
	}
	if err := s.store.ApplyRefund(ctx, payment.ID, refund.AmountPaise, refundStatus); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"paymentId":   payment.ID,
		"refundId":    refund.ID,
		"amountPaise": refund.AmountPaise,
		"reason":      reason,
	}).Info("refund processed")

	s.notifyRefund(payment, refund.AmountPaise)

	return &RefundResult{Success: true, RefundID: refund.ID, AmountPaise: refund.AmountPaise}, nil
}

// notifyRefund emails the client about the refund. Best-effort; the
// refund itself is already committed.
func (s *RefundService) notifyRefund(payment *models.Payment, amountPaise int64) {
	if s.mail == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var user models.User
		if err := db.UserCollection.FindOne(ctx, bson.M{"userid": payment.ClientID}).Decode(&user); err != nil {
			logrus.Warnf("refund mail lookup for payment %s: %v", payment.ID, err)
			return
		}
		body := fmt.Sprintf("<p>A refund of INR %.2f for your session payment has been processed. It should reach your account in 5-7 business days.</p>", float64(amountPaise)/100)
		if err := s.mail.Send(ctx, user.Email, user.Username, "Refund processed", body); err != nil {
			logrus.Warnf("refund mail for payment %s: %v", payment.ID, err)
		}
	}()
}

func (s *RefundService) recordFailure(ctx context.Context, payment *models.Payment, reason string, amount int64, cause error, attempts int) error {
	row := &models.PaymentRefund{
		ID:               utils.GetUUID(),
		PaymentRef:       payment.ID,
		GatewayPaymentID: payment.GatewayPaymentID,
		RefundID:         fmt.Sprintf("FAILED_%d", time.Now().UnixNano()),
		AmountPaise:      amount,
		Reason:           reason,
		Status:           "failed",
		ErrorDetail:      errorDetail(cause, attempts),
		CreatedAt:        time.Now(),
	}
	return s.store.InsertRefund(ctx, row)
}

// errorDetail flattens a gateway error into a single pipe-delimited
// string for the refund audit row.
func errorDetail(err error, attempts int) string {
	var gerr *razorpay.GatewayError
	if errors.As(err, &gerr) {
		return fmt.Sprintf("code=%s|description=%s|source=%s|step=%s|attempts=%d",
			gerr.Code, gerr.Description, gerr.Source, gerr.Step, attempts)
	}
	return fmt.Sprintf("code=UNKNOWN|description=%v|source=|step=|attempts=%d", err, attempts)
}

var nonRetryableSignatures = []string{
	"fully refunded",
	"has already been refunded",
	"does not exist",
	"is not captured",
	"invalid",
	"exceeds the amount",
}

// isNonRetryable classifies permanent gateway rejections. Client-side
// 4xx responses (bar rate limiting) will never succeed on retry.
func isNonRetryable(err error) bool {
	var gerr *razorpay.GatewayError
	if errors.As(err, &gerr) {
		if gerr.HTTPStatus >= 400 && gerr.HTTPStatus < 500 && gerr.HTTPStatus != 429 {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range nonRetryableSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// backoffDelay grows exponentially with jitter, capped at 10 seconds.
func backoffDelay(attempt int) time.Duration {
	ms := 1000*(1<<attempt) + rndm.Intn(1000)
	if ms > 10000 {
		ms = 10000
	}
	return time.Duration(ms) * time.Millisecond
}
