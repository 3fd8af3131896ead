package models

import "time"

// Interval is a half-open time window [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two half-open intervals share any instant.
// Touching intervals (a.End == b.Start) do not overlap.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// AvailableSlot is one slot-grid-aligned window in the availability listing.
type AvailableSlot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// AvailabilityRequest is the payload of the check-availability endpoint.
type AvailabilityRequest struct {
	ConnectorID          string    `json:"connectorId" binding:"required"`
	Start                time.Time `json:"start" binding:"required"`
	End                  time.Time `json:"end" binding:"required"`
	ExcludeReservationID string    `json:"excludeReservationId,omitempty"`
}

// AvailabilityResponse reports whether a window is free and what blocks it.
type AvailabilityResponse struct {
	Available bool       `json:"available"`
	Conflicts []Interval `json:"conflicts"`
}
