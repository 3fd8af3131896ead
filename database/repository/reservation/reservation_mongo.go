package reservationRepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voltslot/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	reservationsCollection = "reservations"
	guardsCollection       = "connector_guards"
)

// errOverlapAbort aborts the insert transaction; the conflicts travel separately.
var errOverlapAbort = errors.New("overlap detected inside insert transaction")

// MongoReservationRepo implements ReservationRepository using MongoDB.
type MongoReservationRepo struct {
	client *mongo.Client
	coll   *mongo.Collection
	guards *mongo.Collection
}

// NewMongoReservationRepo constructs a repository on the given database.
// Guarded inserts need a replica set (transactions).
func NewMongoReservationRepo(db *mongo.Database) *MongoReservationRepo {
	return &MongoReservationRepo{
		client: db.Client(),
		coll:   db.Collection(reservationsCollection),
		guards: db.Collection(guardsCollection),
	}
}

func blockingFilter(connectorID string, start, end time.Time) bson.M {
	return bson.M{
		"connectorId": connectorID,
		"status":      bson.M{"$in": models.BlockingStatuses},
		"startTime":   bson.M{"$lt": end},
		"endTime":     bson.M{"$gt": start},
	}
}

func (repo *MongoReservationRepo) findBlocking(ctx context.Context, connectorID string, start, end time.Time) ([]models.Reservation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startTime", Value: 1}})
	cursor, err := repo.coll.Find(ctx, blockingFilter(connectorID, start, end), opts)
	if err != nil {
		return nil, fmt.Errorf("error finding blocking reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Reservation
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding blocking reservations: %w", err)
	}
	return out, nil
}

// ensureGuard creates the per-connector guard document outside any
// transaction so the in-transaction update never races on an upsert.
func (repo *MongoReservationRepo) ensureGuard(ctx context.Context, connectorID string) error {
	_, err := repo.guards.UpdateOne(ctx,
		bson.M{"_id": connectorID},
		bson.M{"$setOnInsert": bson.M{"seq": 0}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to ensure connector guard: %w", err)
	}
	return nil
}

// InsertIfNoOverlap bumps the connector guard, checks for overlaps and inserts
// in one transaction. Two concurrent inserts on the same connector both write
// the guard document, so one of them hits a write conflict; WithTransaction
// retries it and the retry observes the winner's reservation.
func (repo *MongoReservationRepo) InsertIfNoOverlap(ctx context.Context, r *models.Reservation) error {
	if r.History == nil {
		r.History = []models.StatusChange{}
	}
	if err := repo.ensureGuard(ctx, r.ConnectorID); err != nil {
		return err
	}

	sess, err := repo.client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	var conflicts []models.Reservation
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		conflicts = nil

		if _, err := repo.guards.UpdateOne(sc,
			bson.M{"_id": r.ConnectorID},
			bson.M{"$inc": bson.M{"seq": 1}, "$set": bson.M{"updatedAt": r.CreatedAt}},
		); err != nil {
			return nil, fmt.Errorf("connector guard update failed: %w", err)
		}

		found, err := repo.findBlocking(sc, r.ConnectorID, r.StartTime, r.EndTime)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			conflicts = found
			return nil, errOverlapAbort
		}

		if _, err := repo.coll.InsertOne(sc, r); err != nil {
			return nil, err
		}
		return nil, nil
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errOverlapAbort):
		return &OverlapError{Conflicts: conflicts}
	case mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), "qrCode"):
		return ErrDuplicateQRCode
	default:
		return fmt.Errorf("reservation insert transaction failed: %w", err)
	}
}

// GetByID retrieves a reservation by its id.
func (repo *MongoReservationRepo) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	var r models.Reservation
	if err := repo.coll.FindOne(ctx, bson.M{"id": id}).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching reservation %s: %w", id, err)
	}
	return &r, nil
}

func (repo *MongoReservationRepo) FindBlocking(ctx context.Context, connectorID string, start, end time.Time) ([]models.Reservation, error) {
	return repo.findBlocking(ctx, connectorID, start, end)
}

func (repo *MongoReservationRepo) QRCodeExists(ctx context.Context, qrCode string) (bool, error) {
	n, err := repo.coll.CountDocuments(ctx, bson.M{"qrCode": qrCode}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("error checking qr code: %w", err)
	}
	return n > 0, nil
}

// CompareAndSet applies u with a single FindOneAndUpdate whose filter carries
// the expected status, so racing writers cannot both succeed.
func (repo *MongoReservationRepo) CompareAndSet(ctx context.Context, u StatusUpdate) (*models.Reservation, error) {
	filter := bson.M{"id": u.ID, "status": u.ExpectStatus}
	if u.ExpectUnpaid {
		filter["isPaid"] = false
	}

	set := bson.M{"updatedAt": u.At}
	update := bson.M{}
	if u.SetPaid {
		set["isPaid"] = true
	}
	if u.SetStatus != "" && u.SetStatus != u.ExpectStatus {
		set["status"] = u.SetStatus
		switch u.SetStatus {
		case models.StatusCheckedIn:
			set["checkedInAt"] = u.At
		case models.StatusCompleted:
			set["completedAt"] = u.At
		case models.StatusCanceled:
			set["canceledAt"] = u.At
			if u.CancelReason != "" {
				set["cancelReason"] = u.CancelReason
			}
		}
		update["$push"] = bson.M{"history": models.StatusChange{
			From: u.ExpectStatus, To: u.SetStatus, At: u.At, Actor: u.Actor,
		}}
	}
	update["$set"] = set

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var out models.Reservation
	err := repo.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	if err == nil {
		return &out, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("reservation compare-and-set failed: %w", err)
	}

	n, cerr := repo.coll.CountDocuments(ctx, bson.M{"id": u.ID}, options.Count().SetLimit(1))
	if cerr != nil {
		return nil, fmt.Errorf("reservation compare-and-set lookup failed: %w", cerr)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrPreconditionFailed
}

func (repo *MongoReservationRepo) SetJobIDs(ctx context.Context, id, expiryJobID, reminderJobID string) error {
	res, err := repo.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": bson.M{
		"expiryJobId":   expiryJobID,
		"reminderJobId": reminderJobID,
	}})
	if err != nil {
		return fmt.Errorf("failed to record job ids: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (repo *MongoReservationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.Reservation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	cursor, err := repo.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Reservation
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding reservations: %w", err)
	}
	return out, nil
}

func (repo *MongoReservationRepo) ListOverdueUnpaid(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	filter := bson.M{
		"status":          models.StatusPending,
		"isPaid":          false,
		"paymentDeadline": bson.M{"$lte": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "paymentDeadline", Value: 1}}).SetLimit(int64(limit))
	cursor, err := repo.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing overdue reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Reservation
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding overdue reservations: %w", err)
	}
	return out, nil
}
