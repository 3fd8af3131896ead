package directoryRepo

import (
	"context"
	"sync"

	"voltslot/models"
)

// MemoryDirectory is a seeded in-process directory for tests and local runs.
type MemoryDirectory struct {
	mu       sync.RWMutex
	stations map[string]models.Station
	vehicles map[string]models.Vehicle
	users    map[string]models.User
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		stations: make(map[string]models.Station),
		vehicles: make(map[string]models.Vehicle),
		users:    make(map[string]models.User),
	}
}

func (d *MemoryDirectory) PutStation(s models.Station) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stations[s.ID] = s
}

func (d *MemoryDirectory) PutVehicle(v models.Vehicle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vehicles[v.ID] = v
}

func (d *MemoryDirectory) PutUser(u models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *MemoryDirectory) GetStation(_ context.Context, stationID string) (*models.Station, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st, ok := d.stations[stationID]
	if !ok {
		return nil, ErrNotFound
	}
	st.Connectors = append([]models.Connector(nil), st.Connectors...)
	return &st, nil
}

func (d *MemoryDirectory) FindConnector(ctx context.Context, connectorID string) (*models.Station, *models.Connector, error) {
	d.mu.RLock()
	var stationID string
	for id, st := range d.stations {
		if st.Connector(connectorID) != nil {
			stationID = id
			break
		}
	}
	d.mu.RUnlock()
	if stationID == "" {
		return nil, nil, ErrNotFound
	}
	st, err := d.GetStation(ctx, stationID)
	if err != nil {
		return nil, nil, err
	}
	return st, st.Connector(connectorID), nil
}

func (d *MemoryDirectory) GetVehicle(_ context.Context, vehicleID string) (*models.Vehicle, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.vehicles[vehicleID]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (d *MemoryDirectory) GetUser(_ context.Context, userID string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}
