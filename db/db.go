package db

import (
	"context"
	"time"

	"sattva/config"
	"sattva/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

var (
	Client *mongo.Client

	UserCollection          *mongo.Collection
	SlotCollection          *mongo.Collection
	BookingsCollection      *mongo.Collection
	PaymentsCollection      *mongo.Collection
	RefundsCollection       *mongo.Collection
	IdempotencyCollection   *mongo.Collection
	AttendanceLogCollection *mongo.Collection
)

// Init connects to MongoDB and wires the named collections.
func Init(ctx context.Context, cfg config.MongoConfig) error {
	opts := options.Client().ApplyURI(cfg.URI)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return err
	}
	Client = client

	database := client.Database(cfg.Database)
	UserCollection = database.Collection("users")
	SlotCollection = database.Collection("slots")
	BookingsCollection = database.Collection("bookings")
	PaymentsCollection = database.Collection("payments")
	RefundsCollection = database.Collection("paymentrefunds")
	IdempotencyCollection = database.Collection("idempotency")
	AttendanceLogCollection = database.Collection("attendancelogs")

	return EnsureIndexes(ctx)
}

// EnsureIndexes creates the uniqueness, partial-uniqueness and TTL indexes
// the booking invariants rely on.
func EnsureIndexes(ctx context.Context) error {
	_, err := SlotCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "counselorId", Value: 1}, {Key: "startTime", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("unique_counselor_start"),
	})
	if err != nil {
		return err
	}

	// At most one active booking per slot; cancelled/terminal bookings do
	// not count against the slot.
	_, err = BookingsCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "slotId", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetName("unique_active_booking_per_slot").
			SetPartialFilterExpression(bson.M{
				"status": bson.M{"$in": models.ActiveBookingStatuses},
			}),
	})
	if err != nil {
		return err
	}

	_, err = RefundsCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"refundId": 1},
		Options: options.Index().SetUnique(true).SetName("unique_refund_id"),
	})
	if err != nil {
		return err
	}

	idxs := []mongo.IndexModel{
		{
			Keys:    bson.M{"key": 1},
			Options: options.Index().SetUnique(true).SetName("unique_key"),
		},
		{
			Keys:    bson.M{"expires_at": 1},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("ttl_expires_at"),
		},
	}
	if _, err = IdempotencyCollection.Indexes().CreateMany(ctx, idxs); err != nil {
		return err
	}

	_, err = PaymentsCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "bookingStatus", Value: 1}, {Key: "createdAt", Value: 1}},
		Options: options.Index().SetName("booking_status_created"),
	})
	if err != nil {
		return err
	}

	_, err = AttendanceLogCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "bookingId", Value: 1}, {Key: "at", Value: 1}},
		Options: options.Index().SetName("booking_at"),
	})
	return err
}

// WithTransaction runs fn inside a multi-document transaction. On any
// error the whole transaction aborts and the caller sees the original
// error; the documents are left untouched.
func WithTransaction(ctx context.Context, fn func(sc mongo.SessionContext) (interface{}, error)) (interface{}, error) {
	session, err := Client.StartSession()
	if err != nil {
		return nil, err
	}
	defer session.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	return session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return fn(sc)
	}, txnOpts)
}

// IsDuplicateKeyError reports whether err is a Mongo unique-index
// violation (code 11000).
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if we, ok := err.(mongo.WriteException); ok {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return mongo.IsDuplicateKeyError(err)
}

// Close disconnects the client, bounded by a short timeout.
func Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if Client != nil {
		if err := Client.Disconnect(ctx); err != nil {
			logrus.Errorf("mongo disconnect: %v", err)
		}
	}
}
