package cron

import (
	"context"
	"time"

	"sattva/attendance"
	"sattva/config"
	"sattva/db"
	"sattva/models"
	"sattva/pay"
	"sattva/payout"
	"sattva/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

// Monitor advances bookings through their time-driven transitions:
// confirmed -> ongoing at start, ongoing -> verdict after end, and
// completed_pending -> completed_final once the dispute window lapses.
// All mutations are conditional on the prior status, so overlapping
// ticks cannot double-apply a transition.
type Monitor struct {
	cfg        *config.Config
	thresholds attendance.Thresholds
	refunds    *pay.RefundService
	payouts    payout.Releaser
}

func NewMonitor(cfg *config.Config, refunds *pay.RefundService, payouts payout.Releaser) *Monitor {
	return &Monitor{
		cfg:        cfg,
		thresholds: attendance.NewThresholds(cfg.Presence, cfg.Session),
		refunds:    refunds,
		payouts:    payouts,
	}
}

// Run ticks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Worker.MonitorInterval)
	defer ticker.Stop()

	logrus.Infof("session monitor started, interval %s", m.cfg.Worker.MonitorInterval)
	for {
		select {
		case <-ctx.Done():
			logrus.Info("session monitor stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	if err := m.startSessions(ctx); err != nil {
		logrus.Errorf("start monitor: %v", err)
	}
	if err := m.endSessions(ctx); err != nil {
		logrus.Errorf("end monitor: %v", err)
	}
	if err := m.autoConfirm(ctx); err != nil {
		logrus.Errorf("auto-confirm: %v", err)
	}
}

// startSessions flips confirmed bookings to ongoing once their start
// time arrives.
func (m *Monitor) startSessions(ctx context.Context) error {
	now := time.Now()
	lag := time.Duration(m.cfg.Worker.StartLagMinutes) * time.Minute
	res, err := db.BookingsCollection.UpdateMany(ctx,
		bson.M{
			"status":    models.BookingConfirmed,
			"startTime": bson.M{"$lte": now, "$gte": now.Add(-lag)},
			"endTime":   bson.M{"$gt": now},
		},
		bson.M{"$set": bson.M{
			"status":                              models.BookingOngoing,
			"attendance.summary.sessionStartedAt": now,
			"updatedAt":                           now,
		}},
	)
	if err != nil {
		return err
	}
	if res.ModifiedCount > 0 {
		logrus.Infof("started %d sessions", res.ModifiedCount)
	}
	return nil
}

// endSessions settles every session whose scheduled end passed more
// than the end lag ago. Presence, minutes and the outcome are written
// exactly once per booking.
func (m *Monitor) endSessions(ctx context.Context) error {
	now := time.Now()
	cutoff := now.Add(-time.Duration(m.cfg.Worker.EndLagMinutes) * time.Minute)

	// Confirmed bookings that never flipped to ongoing (no heartbeats,
	// or monitor downtime) are settled on the same path.
	cur, err := db.BookingsCollection.Find(ctx, bson.M{
		"status":  bson.M{"$in": []string{models.BookingOngoing, models.BookingConfirmed}},
		"endTime": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	var succeeded, failed int
	for cur.Next(ctx) {
		var bk models.Booking
		if err := cur.Decode(&bk); err != nil {
			failed++
			continue
		}
		if err := m.settleSession(ctx, &bk); err != nil {
			logrus.Errorf("settle booking %s: %v", bk.ID, err)
			failed++
			continue
		}
		succeeded++
	}
	if succeeded > 0 || failed > 0 {
		logrus.Infof("session settlement: %d settled, %d failed", succeeded, failed)
	}
	return cur.Err()
}

func (m *Monitor) settleSession(ctx context.Context, bk *models.Booking) error {
	duration := float64(bk.DurationMinutes)
	clientPresent := m.thresholds.Present(bk.Attendance.Client.HeartbeatCount, duration)
	counselorPresent := m.thresholds.Present(bk.Attendance.Counselor.HeartbeatCount, duration)
	out := DecideOutcome(clientPresent, counselorPresent)

	now := time.Now()
	set := bson.M{
		"status":                              out.Status,
		"attendance.client.present":           clientPresent,
		"attendance.counselor.present":        counselorPresent,
		"attendance.summary.sessionEndedAt":   now,
		"attendance.summary.clientMinutes":    m.thresholds.Minutes(bk.Attendance.Client.HeartbeatCount, duration),
		"attendance.summary.counselorMinutes": m.thresholds.Minutes(bk.Attendance.Counselor.HeartbeatCount, duration),
		"updatedAt":                           now,
	}
	if out.NoShowType != "" {
		set["noShowType"] = out.NoShowType
	}
	if out.HoldReason != "" {
		set["payout.holdReason"] = out.HoldReason
	}
	if out.DisputeReason != "" {
		set["dispute.reason"] = out.DisputeReason
	}
	if out.Status == models.BookingCompletedPending {
		set["completion.autoConfirmAt"] = now.Add(time.Duration(m.cfg.Worker.AutoConfirmHours) * time.Hour)
	}

	// Conditional on the status we read: a concurrent tick that settled
	// this booking first wins, and this update becomes a no-op.
	res, err := db.BookingsCollection.UpdateOne(ctx,
		bson.M{"_id": bk.ID, "status": bk.Status},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.ModifiedCount == 0 {
		return nil
	}

	m.logForcedEnd(ctx, bk, clientPresent, counselorPresent)

	if out.RefundClient && bk.PaymentID != "" {
		var payment models.Payment
		if err := db.PaymentsCollection.FindOne(ctx, bson.M{"_id": bk.PaymentID}).Decode(&payment); err != nil {
			return err
		}
		if _, err := m.refunds.InitiateRefund(ctx, &payment, models.RefundReasonCounselorNoShow); err != nil {
			// The FAILED refund row is already persisted; settlement
			// itself stands.
			logrus.Errorf("no-show refund for booking %s: %v", bk.ID, err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"bookingId":        bk.ID,
		"outcome":          out.Status,
		"noShowType":       out.NoShowType,
		"clientPresent":    clientPresent,
		"counselorPresent": counselorPresent,
	}).Info("session settled")
	return nil
}

func (m *Monitor) logForcedEnd(ctx context.Context, bk *models.Booking, clientPresent, counselorPresent bool) {
	row := models.AttendanceLog{
		ID:        utils.GetUUID(),
		BookingID: bk.ID,
		UserID:    "system",
		Role:      "system",
		Event:     models.AttForcedEnd,
		At:        time.Now(),
		Meta: models.Meta{
			"clientPresent":    clientPresent,
			"counselorPresent": counselorPresent,
		},
	}
	if _, err := db.AttendanceLogCollection.InsertOne(ctx, row); err != nil {
		logrus.Warnf("forced-end log for booking %s: %v", bk.ID, err)
	}
}

// autoConfirm finalizes settled sessions whose dispute window has
// lapsed and releases the counselor payout.
func (m *Monitor) autoConfirm(ctx context.Context) error {
	now := time.Now()
	cur, err := db.BookingsCollection.Find(ctx, bson.M{
		"status":                   models.BookingCompletedPending,
		"completion.autoConfirmAt": bson.M{"$lte": now},
		"dispute.raised":           false,
	})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	var confirmed int
	for cur.Next(ctx) {
		var bk models.Booking
		if err := cur.Decode(&bk); err != nil {
			continue
		}

		res, err := db.BookingsCollection.UpdateOne(ctx,
			bson.M{"_id": bk.ID, "status": models.BookingCompletedPending, "dispute.raised": false},
			bson.M{"$set": bson.M{
				"status":                 models.BookingCompletedFinal,
				"completion.finalizedAt": now,
				"payout.released":        true,
				"payout.releasedAt":      now,
				"updatedAt":              now,
			}},
		)
		if err != nil || res.ModifiedCount == 0 {
			continue
		}

		if err := m.payouts.Release(ctx, bk.ID, bk.CounselorID, bk.PricePaise); err != nil {
			logrus.Errorf("payout release for booking %s: %v", bk.ID, err)
		}
		confirmed++
	}
	if confirmed > 0 {
		logrus.Infof("auto-confirmed %d sessions", confirmed)
	}
	return cur.Err()
}
