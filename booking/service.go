package booking

import (
	"context"
	"fmt"
	"time"

	"sattva/config"
	"sattva/db"
	"sattva/mailer"
	"sattva/models"
	"sattva/pay"
	"sattva/razorpay"
	"sattva/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Service owns the booking lifecycle: slot admission, cancellation with
// refund, and reschedule. All multi-document moves run inside Mongo
// transactions so a failed step never leaves a half-booked slot.
type Service struct {
	cfg     *config.Config
	gateway *razorpay.Client
	refunds *pay.RefundService
	mail    mailer.Sender
}

func NewService(cfg *config.Config, gateway *razorpay.Client, refunds *pay.RefundService, mail mailer.Sender) *Service {
	return &Service{cfg: cfg, gateway: gateway, refunds: refunds, mail: mail}
}

// ReserveSlot flips an available slot to booked for clientID. The
// conditional filter is the admission control: when two clients race,
// exactly one update matches and the loser gets ErrSlotTaken.
func (s *Service) ReserveSlot(ctx context.Context, slotID, clientID string) (*models.Slot, error) {
	res, err := db.SlotCollection.UpdateOne(ctx,
		bson.M{"_id": slotID, "status": models.SlotAvailable},
		bson.M{"$set": bson.M{"status": models.SlotBooked, "clientId": clientID}},
	)
	if err != nil {
		return nil, err
	}
	if res.ModifiedCount == 0 {
		// Distinguish a missing slot from a lost race.
		count, cerr := db.SlotCollection.CountDocuments(ctx, bson.M{"_id": slotID})
		if cerr == nil && count == 0 {
			return nil, ErrSlotNotFound
		}
		return nil, ErrSlotTaken
	}

	var slot models.Slot
	if err := db.SlotCollection.FindOne(ctx, bson.M{"_id": slotID}).Decode(&slot); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ReleaseSlot puts a slot back on the market.
func (s *Service) ReleaseSlot(ctx context.Context, slotID string) error {
	_, err := db.SlotCollection.UpdateOne(ctx,
		bson.M{"_id": slotID},
		bson.M{
			"$set":   bson.M{"status": models.SlotAvailable},
			"$unset": bson.M{"bookingId": "", "clientId": ""},
		},
	)
	return err
}

// CanCancel reports whether a session starting at start may still be
// cancelled at now. Exactly at the window boundary cancellation is
// still allowed.
func CanCancel(start, now time.Time, windowHours int) bool {
	return !start.Before(now.Add(time.Duration(windowHours) * time.Hour))
}

// cancelEligibility checks ownership, state and the cancellation
// window. The window binds both parties; a counselor cannot cancel
// inside it either.
func cancelEligibility(bk *models.Booking, userID string, now time.Time, windowHours int) error {
	if bk.ClientID != userID && bk.CounselorID != userID {
		return ErrNotYourBooking
	}
	if bk.Status != models.BookingPending && bk.Status != models.BookingConfirmed {
		return ErrNotCancellable
	}
	if !CanCancel(bk.StartTime, now, windowHours) {
		return ErrCancelWindowClosed
	}
	return nil
}

// CancelBooking cancels a pending or confirmed booking, releases its
// slot, and refunds the payment, all in one transaction.
func (s *Service) CancelBooking(ctx context.Context, bookingID, userID, reason string) (*models.Booking, error) {
	result, err := db.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var bk models.Booking
		if err := db.BookingsCollection.FindOne(sc, bson.M{"_id": bookingID}).Decode(&bk); err != nil {
			if err == mongo.ErrNoDocuments {
				return nil, ErrBookingNotFound
			}
			return nil, err
		}

		if err := cancelEligibility(&bk, userID, time.Now(), s.cfg.Booking.CancelWindowHours); err != nil {
			return nil, err
		}

		now := time.Now()
		res, err := db.BookingsCollection.UpdateOne(sc,
			bson.M{"_id": bookingID, "status": bk.Status},
			bson.M{"$set": bson.M{
				"status": models.BookingCancelled,
				"cancellation": models.Cancellation{
					Reason:      reason,
					CancelledBy: userID,
					CancelledAt: &now,
				},
				"updatedAt": now,
			}},
		)
		if err != nil {
			return nil, err
		}
		if res.ModifiedCount == 0 {
			return nil, ErrNotCancellable
		}

		if err := s.ReleaseSlot(sc, bk.SlotID); err != nil {
			return nil, err
		}

		if bk.PaymentID != "" {
			var payment models.Payment
			if err := db.PaymentsCollection.FindOne(sc, bson.M{"_id": bk.PaymentID}).Decode(&payment); err != nil {
				return nil, err
			}
			if _, err := s.refunds.InitiateRefund(sc, &payment, models.RefundReasonBookingCancelled); err != nil {
				return nil, fmt.Errorf("cancel refund: %w", err)
			}
		}

		bk.Status = models.BookingCancelled
		bk.Cancellation = &models.Cancellation{Reason: reason, CancelledBy: userID, CancelledAt: &now}
		return &bk, nil
	})
	if err != nil {
		return nil, err
	}

	bk := result.(*models.Booking)
	logrus.WithFields(logrus.Fields{
		"bookingId":   bk.ID,
		"cancelledBy": userID,
	}).Info("booking cancelled")
	BroadcastSlotUpdate(bk.CounselorID, bk.SlotID, models.SlotAvailable)
	return bk, nil
}

// RescheduleBooking moves a booking to another of the same counselor's
// open slots. The old slot frees only if the new one is won.
func (s *Service) RescheduleBooking(ctx context.Context, bookingID, userID, newSlotID string) (*models.Booking, error) {
	result, err := db.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var bk models.Booking
		if err := db.BookingsCollection.FindOne(sc, bson.M{"_id": bookingID}).Decode(&bk); err != nil {
			if err == mongo.ErrNoDocuments {
				return nil, ErrBookingNotFound
			}
			return nil, err
		}

		if bk.ClientID != userID {
			return nil, ErrNotYourBooking
		}
		if bk.Status != models.BookingPending && bk.Status != models.BookingConfirmed {
			return nil, ErrNotCancellable
		}
		if !CanCancel(bk.StartTime, time.Now(), s.cfg.Booking.CancelWindowHours) {
			return nil, ErrCancelWindowClosed
		}

		newSlot, err := s.ReserveSlot(sc, newSlotID, bk.ClientID)
		if err != nil {
			return nil, err
		}
		if newSlot.CounselorID != bk.CounselorID {
			return nil, fmt.Errorf("slot %s belongs to a different counselor", newSlotID)
		}

		oldSlotID := bk.SlotID
		if err := s.ReleaseSlot(sc, oldSlotID); err != nil {
			return nil, err
		}
		if _, err := db.SlotCollection.UpdateOne(sc,
			bson.M{"_id": newSlotID},
			bson.M{"$set": bson.M{"bookingId": bk.ID}},
		); err != nil {
			return nil, err
		}

		now := time.Now()
		count := 1
		if bk.Reschedule != nil {
			count = bk.Reschedule.Count + 1
		}
		_, err = db.BookingsCollection.UpdateOne(sc,
			bson.M{"_id": bookingID},
			bson.M{"$set": bson.M{
				"slotId":    newSlotID,
				"startTime": newSlot.StartTime,
				"endTime":   newSlot.EndTime,
				"reschedule": models.Reschedule{
					FromSlotID:    oldSlotID,
					RescheduledAt: &now,
					Count:         count,
				},
				"updatedAt": now,
			}},
		)
		if err != nil {
			return nil, err
		}

		bk.SlotID = newSlotID
		bk.StartTime = newSlot.StartTime
		bk.EndTime = newSlot.EndTime
		bk.Reschedule = &models.Reschedule{FromSlotID: oldSlotID, RescheduledAt: &now, Count: count}
		return &bk, nil
	})
	if err != nil {
		return nil, err
	}

	bk := result.(*models.Booking)
	logrus.WithFields(logrus.Fields{
		"bookingId": bk.ID,
		"newSlotId": bk.SlotID,
	}).Info("booking rescheduled")
	BroadcastSlotUpdate(bk.CounselorID, bk.SlotID, models.SlotBooked)
	return bk, nil
}

// provisionMeeting allocates the video room for a booking. Meeting ids
// are opaque and unguessable.
func (s *Service) provisionMeeting(bookingID string) (string, string) {
	meetingID := utils.GenerateRandomString(24)
	return meetingID, fmt.Sprintf("%s/m/%s", s.cfg.Session.MeetingBaseURL, meetingID)
}
