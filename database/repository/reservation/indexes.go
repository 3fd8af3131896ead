package reservationRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the necessary indexes on the reservations collection.
func (repo *MongoReservationRepo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		// Last line of defence against QR token reuse.
		{
			Keys:    bson.D{{Key: "qrCode", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_qr_code"),
		},
		// Overlap queries: connector + status, range on start.
		{
			Keys:    bson.D{{Key: "connectorId", Value: 1}, {Key: "status", Value: 1}, {Key: "startTime", Value: 1}},
			Options: options.Index().SetName("connector_status_start_idx"),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("user_created_idx"),
		},
		// Overdue sweep.
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "isPaid", Value: 1}, {Key: "paymentDeadline", Value: 1}},
			Options: options.Index().SetName("status_paid_deadline_idx"),
		},
	}

	if _, err := repo.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create reservation indexes: %w", err)
	}
	return nil
}
