package models

// Connector statuses as recorded by the station directory.
const (
	ConnectorAvailable   = "available"
	ConnectorMaintenance = "maintenance"
	ConnectorOffline     = "offline"
)

// Connector is a single plug on a charging station.
type Connector struct {
	ID          string  `bson:"id" json:"id"`
	Standard    string  `bson:"standard" json:"standard"` // e.g. "CCS2", "CHADEMO", "TYPE2"
	MaxPowerKW  float64 `bson:"maxPowerKW" json:"maxPowerKW"`
	PricePerKWh float64 `bson:"pricePerKWh" json:"pricePerKWh"` // BDT
	Status      string  `bson:"status" json:"status"`
}

// Station groups connectors at one physical site.
type Station struct {
	ID         string      `bson:"id" json:"id"`
	Name       string      `bson:"name" json:"name"`
	OperatorID string      `bson:"operatorId" json:"operatorId"`
	Connectors []Connector `bson:"connectors" json:"connectors"`
}

// Connector returns the connector with the given id, or nil.
func (s *Station) Connector(id string) *Connector {
	for i := range s.Connectors {
		if s.Connectors[i].ID == id {
			return &s.Connectors[i]
		}
	}
	return nil
}

// Vehicle is the read-only view of a user's EV.
type Vehicle struct {
	ID                 string   `bson:"id" json:"id"`
	OwnerID            string   `bson:"ownerId" json:"ownerId"`
	Model              string   `bson:"model" json:"model"`
	ConnectorStandards []string `bson:"connectorStandards" json:"connectorStandards"`
	UsableBatteryKWh   float64  `bson:"usableBatteryKWh" json:"usableBatteryKWh"`
}

// Supports reports whether the vehicle can use the given connector standard.
func (v *Vehicle) Supports(standard string) bool {
	for _, s := range v.ConnectorStandards {
		if s == standard {
			return true
		}
	}
	return false
}
