// Package payout releases counselor earnings once a session reaches its
// terminal completed state. The ledger integration sits behind Releaser
// so the reconciliation worker can be tested without it.
package payout

import (
	"context"

	"github.com/sirupsen/logrus"
)

type Releaser interface {
	Release(ctx context.Context, bookingID, counselorID string, amountPaise int64) error
}

// LogReleaser records the release intent. Settlement to the counselor's
// bank account happens out of band from this record.
type LogReleaser struct{}

func (LogReleaser) Release(_ context.Context, bookingID, counselorID string, amountPaise int64) error {
	logrus.WithFields(logrus.Fields{
		"bookingId":   bookingID,
		"counselorId": counselorID,
		"amountPaise": amountPaise,
	}).Info("payout released")
	return nil
}
