package types

// Role is the authorization level of an account.
type Role string

// Supported account roles.
const (
	// RoleRegular is the default role assigned at registration.
	RoleRegular Role = "REGULAR"

	// RoleAdmin grants access to the administrative endpoints.
	RoleAdmin Role = "ADMIN"
)

// User represents an account in the system.
// It contains identity, contact, role, and rental metadata.
type User struct {
	// ID is the unique identifier of the user, assigned by the store.
	ID int `json:"id" db:"id"`

	// StudentNumber is the unique external identity token of the user.
	// It is fixed at creation and used for question ownership checks.
	StudentNumber string `json:"student_number" db:"student_number"`

	// Name is the user's display name.
	Name string `json:"name" db:"name"`

	// PhoneNumber is the user's contact phone number.
	PhoneNumber string `json:"phone_number" db:"phone_number"`

	// Email is the user's email address.
	Email string `json:"email" db:"email"`

	// Role indicates the user's authorization level (REGULAR or ADMIN).
	Role Role `json:"role" db:"role"`

	// RentalStatus reports whether the user currently has an active
	// rental. Always false at creation.
	RentalStatus bool `json:"rental_status" db:"rental_status"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`
}
