package directoryRepo

import (
	"context"
	"errors"
	"fmt"

	"voltslot/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDirectory implements the station, vehicle and user directories on the
// collections owned by the catalogue services.
type MongoDirectory struct {
	stations *mongo.Collection
	vehicles *mongo.Collection
	users    *mongo.Collection
}

func NewMongoDirectory(db *mongo.Database) *MongoDirectory {
	return &MongoDirectory{
		stations: db.Collection("stations"),
		vehicles: db.Collection("vehicles"),
		users:    db.Collection("users"),
	}
}

func (d *MongoDirectory) findOne(ctx context.Context, coll *mongo.Collection, filter bson.M, out any, opts ...*options.FindOneOptions) error {
	err := coll.FindOne(ctx, filter, opts...).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("error querying %s: %w", coll.Name(), err)
	}
	return nil
}

func (d *MongoDirectory) GetStation(ctx context.Context, stationID string) (*models.Station, error) {
	var st models.Station
	if err := d.findOne(ctx, d.stations, bson.M{"id": stationID}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (d *MongoDirectory) FindConnector(ctx context.Context, connectorID string) (*models.Station, *models.Connector, error) {
	var st models.Station
	if err := d.findOne(ctx, d.stations, bson.M{"connectors.id": connectorID}, &st); err != nil {
		return nil, nil, err
	}
	conn := st.Connector(connectorID)
	if conn == nil {
		return nil, nil, ErrNotFound
	}
	return &st, conn, nil
}

func (d *MongoDirectory) GetVehicle(ctx context.Context, vehicleID string) (*models.Vehicle, error) {
	var v models.Vehicle
	if err := d.findOne(ctx, d.vehicles, bson.M{"id": vehicleID}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (d *MongoDirectory) GetUser(ctx context.Context, userID string) (*models.User, error) {
	proj := bson.M{"id": 1, "email": 1, "name": 1, "fcmToken": 1}
	var u models.User
	if err := d.findOne(ctx, d.users, bson.M{"id": userID}, &u, options.FindOne().SetProjection(proj)); err != nil {
		return nil, err
	}
	return &u, nil
}
