package reservation

import (
	"context"
	"fmt"
	"time"

	"voltslot/models"
)

const slotDateLayout = "2006-01-02"

// ListAvailableSlots cuts the operating window of date (YYYY-MM-DD, operating
// timezone) into slotMinutes-long slots and marks each free or taken. A
// trailing partial slot is dropped. slotMinutes <= 0 uses the default.
func (s *Service) ListAvailableSlots(ctx context.Context, connectorID, date string, slotMinutes int) ([]models.AvailableSlot, error) {
	if connectorID == "" {
		return nil, newValidationError("connectorId", "connectorId is required")
	}
	if slotMinutes <= 0 {
		slotMinutes = s.policy.SlotMinutes
	}
	if slotMinutes > s.policy.MaxSlotMinutes() {
		return nil, newValidationError("slotMinutes", "slot of %d minutes does not fit the operating window", slotMinutes)
	}
	day, err := time.ParseInLocation(slotDateLayout, date, s.policy.Location)
	if err != nil {
		return nil, newValidationError("date", "date must be YYYY-MM-DD")
	}

	windowStart := time.Date(day.Year(), day.Month(), day.Day(), s.policy.OperatingStartHour, 0, 0, 0, s.policy.Location)
	windowEnd := time.Date(day.Year(), day.Month(), day.Day(), s.policy.OperatingEndHour, 0, 0, 0, s.policy.Location)
	slot := time.Duration(slotMinutes) * time.Minute
	if windowEnd.Sub(windowStart) < slot {
		return nil, newValidationError("slotMinutes", "slot of %d minutes does not fit the operating window", slotMinutes)
	}

	if _, _, err := s.stations.FindConnector(ctx, connectorID); err != nil {
		return nil, directoryError(err, "connector", connectorID)
	}

	gen := s.cache.Generation(ctx, connectorID)
	key := slotCacheKey(connectorID, gen, date, slotMinutes)
	if gen >= 0 {
		if cached, ok := s.cache.Get(ctx, key); ok {
			return cached, nil
		}
	}

	blocking, err := s.repo.FindBlocking(ctx, connectorID, windowStart.UTC(), windowEnd.UTC())
	if err != nil {
		return nil, &StoreUnavailableError{Op: "find blocking reservations", Err: err}
	}

	slots := make([]models.AvailableSlot, 0, int(windowEnd.Sub(windowStart)/slot))
	for t := windowStart; !t.Add(slot).After(windowEnd); t = t.Add(slot) {
		start, end := t.UTC(), t.Add(slot).UTC()
		slots = append(slots, models.AvailableSlot{
			Start:     start,
			End:       end,
			Available: len(Conflicts(blocking, start, end, "")) == 0,
		})
	}

	if gen >= 0 {
		s.cache.Set(ctx, connectorID, key, slots, s.policy.SlotCacheTTL)
	}
	return slots, nil
}

func slotCacheKey(connectorID string, gen int64, date string, slotMinutes int) string {
	return fmt.Sprintf("slots:%s:%d:%s:%d", connectorID, gen, date, slotMinutes)
}
