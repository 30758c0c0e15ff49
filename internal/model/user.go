package model

import "time"

// UserRole represents the role assigned to a user.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleClient UserRole = "client"
)

// ValidRole reports whether r is a known role.
func ValidRole(r UserRole) bool {
	return r == RoleAdmin || r == RoleClient
}

// User is an authenticated identity. The distinguished owner identity
// (configured by open_id) is promoted to admin on first upsert; everyone
// else defaults to client and keeps their role across logins.
type User struct {
	ID           int64     `json:"id"`
	OpenID       string    `json:"open_id"`
	Name         *string   `json:"name,omitempty"`
	Email        *string   `json:"email,omitempty"`
	Role         UserRole  `json:"role"`
	APIKeyHash   *string   `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastSignedIn time.Time `json:"last_signed_in"`
}

// Actor is the caller identity attached to every mutating operation.
// Built from validated JWT claims at the HTTP boundary.
type Actor struct {
	UserID int64
	OpenID string
	Role   UserRole
}

// IsAdmin reports whether the actor carries the admin super-role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
