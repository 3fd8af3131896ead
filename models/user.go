package models

// User roles carried in bearer tokens.
const (
	RoleUser     = "user"
	RoleOperator = "operator"
	RoleSystem   = "system"
)

// User is the read-only contact record used for notifications.
type User struct {
	ID       string `bson:"id" json:"id"`
	Email    string `bson:"email" json:"email"`
	Name     string `bson:"name" json:"name"`
	FCMToken string `bson:"fcmToken,omitempty" json:"-"`
}

// Actor identifies who is asking for a reservation change.
type Actor struct {
	ID   string
	Role string
}

// SystemActor is used by workers and payment callbacks.
func SystemActor(name string) Actor {
	return Actor{ID: name, Role: RoleSystem}
}

func (a Actor) IsSystem() bool   { return a.Role == RoleSystem }
func (a Actor) IsOperator() bool { return a.Role == RoleOperator }

// String is recorded in the status history.
func (a Actor) String() string {
	if a.ID == "" {
		return a.Role
	}
	return a.Role + ":" + a.ID
}
