package reservation

import "voltslot/models"

// transitions is the complete lifecycle table. Anything not listed is rejected.
var transitions = map[models.ReservationStatus][]models.ReservationStatus{
	models.StatusPending:   {models.StatusConfirmed, models.StatusCanceled, models.StatusExpired},
	models.StatusConfirmed: {models.StatusCheckedIn, models.StatusCanceled},
	models.StatusCheckedIn: {models.StatusCompleted, models.StatusCanceled},
}

// CanTransition reports whether from -> to is in the lifecycle table.
func CanTransition(from, to models.ReservationStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// operatorOnly marks table entries only an operator may trigger.
func operatorOnly(from, to models.ReservationStatus) bool {
	return from == models.StatusCheckedIn && to == models.StatusCanceled
}
