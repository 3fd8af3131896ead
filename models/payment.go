package models

// PaymentCallback is what the payment service posts once a charge settles.
type PaymentCallback struct {
	ReservationID string `json:"reservationId" binding:"required"`
	Paid          bool   `json:"paid"`
}

// PaymentIntent is the client-side handle for paying a reservation.
type PaymentIntent struct {
	ReservationID string  `json:"reservationId"`
	IntentID      string  `json:"intentId"`
	ClientSecret  string  `json:"clientSecret"`
	AmountBDT     float64 `json:"amountBDT"`
	Currency      string  `json:"currency"`
}
