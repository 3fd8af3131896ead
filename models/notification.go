package models

// Notification is one outbound message to a reservation owner. Email is the
// primary channel; PushToken is optional.
type Notification struct {
	Email     string            `json:"email"`
	PushToken string            `json:"-"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
}
