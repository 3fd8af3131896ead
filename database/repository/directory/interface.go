package directoryRepo

import (
	"context"
	"errors"

	"voltslot/models"
)

// ErrNotFound is returned when a station, vehicle or user does not exist.
var ErrNotFound = errors.New("directory entry not found")

// StationDirectory is the read-only station/connector lookup.
type StationDirectory interface {
	GetStation(ctx context.Context, stationID string) (*models.Station, error)
	// FindConnector locates a connector by id across all stations.
	FindConnector(ctx context.Context, connectorID string) (*models.Station, *models.Connector, error)
}

// VehicleDirectory is the read-only vehicle lookup.
type VehicleDirectory interface {
	GetVehicle(ctx context.Context, vehicleID string) (*models.Vehicle, error)
}

// UserDirectory resolves notification contacts.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}
