package cron

import (
	"context"
	"sync/atomic"
	"time"

	"sattva/config"
	"sattva/db"
	"sattva/models"
	"sattva/pay"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

// Sweeper reconciles payments that fell off the happy path: captures
// that never got a booking, and bookings whose resource provisioning
// never finished.
type Sweeper struct {
	cfg     *config.Config
	refunds *pay.RefundService
}

func NewSweeper(cfg *config.Config, refunds *pay.RefundService) *Sweeper {
	return &Sweeper{cfg: cfg, refunds: refunds}
}

// Run ticks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Worker.MonitorInterval)
	defer ticker.Stop()

	logrus.Infof("reconciliation sweeper started, interval %s", s.cfg.Worker.MonitorInterval)
	for {
		select {
		case <-ctx.Done():
			logrus.Info("reconciliation sweeper stopped")
			return
		case <-ticker.C:
			if err := s.SweepOrphans(ctx); err != nil {
				logrus.Errorf("orphan sweep: %v", err)
			}
			if err := s.SweepMismatches(ctx); err != nil {
				logrus.Errorf("mismatch sweep: %v", err)
			}
		}
	}
}

// SweepOrphans refunds captured payments that held no booking for
// longer than the orphan age. Refunds run concurrently but bounded, so
// a large backlog cannot flood the gateway.
func (s *Sweeper) SweepOrphans(ctx context.Context) error {
	cutoff := time.Now().Add(-time.Duration(s.cfg.Worker.OrphanAgeMinutes) * time.Minute)

	cur, err := db.PaymentsCollection.Find(ctx,
		bson.M{
			"bookingStatus": models.LinkCapturedUnlinked,
			"updatedAt":     bson.M{"$lt": cutoff},
		},
		options.Find().SetSort(bson.M{"updatedAt": 1}).SetLimit(s.cfg.Worker.OrphanBatchLimit),
	)
	if err != nil {
		return err
	}

	var payments []models.Payment
	if err := cur.All(ctx, &payments); err != nil {
		return err
	}
	if len(payments) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Worker.OrphanConcurrency)

	var succeeded, failed atomic.Int64
	for i := range payments {
		p := payments[i]
		g.Go(func() error {
			if _, err := s.refunds.InitiateRefund(gctx, &p, models.RefundReasonBookingFailed); err != nil {
				logrus.Errorf("orphan refund for payment %s: %v", p.ID, err)
				failed.Add(1)
				// One stuck payment must not abort the batch.
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"found":     len(payments),
		"refunded":  succeeded.Load(),
		"failed":    failed.Load(),
		"olderThan": cutoff,
	}).Info("orphan sweep finished")
	return nil
}

// SweepMismatches finalizes payments stuck in pending_resources. If
// the booking's meeting exists the link simply never got its last
// write; otherwise it needs a human.
func (s *Sweeper) SweepMismatches(ctx context.Context) error {
	cutoff := time.Now().Add(-time.Duration(s.cfg.Worker.MismatchAgeMinutes) * time.Minute)

	cur, err := db.PaymentsCollection.Find(ctx, bson.M{
		"bookingStatus": models.LinkPendingResources,
		"updatedAt":     bson.M{"$lt": cutoff},
	})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var p models.Payment
		if err := cur.Decode(&p); err != nil {
			continue
		}

		var bk models.Booking
		err := db.BookingsCollection.FindOne(ctx, bson.M{"_id": p.BookingID}).Decode(&bk)
		if err == mongo.ErrNoDocuments || p.BookingID == "" {
			logrus.WithField("paymentId", p.ID).Warn("payment stuck in pending_resources with no booking; needs manual review")
			continue
		}
		if err != nil {
			continue
		}

		if bk.MeetingID == "" {
			logrus.WithFields(logrus.Fields{
				"paymentId": p.ID,
				"bookingId": bk.ID,
			}).Warn("booking has no meeting after provisioning window; needs manual review")
			continue
		}

		now := time.Now()
		_, err = db.PaymentsCollection.UpdateOne(ctx,
			bson.M{"_id": p.ID, "bookingStatus": models.LinkPendingResources},
			bson.M{"$set": bson.M{"bookingStatus": models.LinkCompleted, "updatedAt": now}},
		)
		if err != nil {
			logrus.Errorf("mismatch finalize payment %s: %v", p.ID, err)
			continue
		}
		if bk.Status == models.BookingPending {
			_, _ = db.BookingsCollection.UpdateOne(ctx,
				bson.M{"_id": bk.ID, "status": models.BookingPending},
				bson.M{"$set": bson.M{"status": models.BookingConfirmed, "updatedAt": now}},
			)
		}
		logrus.WithFields(logrus.Fields{"paymentId": p.ID, "bookingId": bk.ID}).Info("payment link repaired")
	}
	return cur.Err()
}
