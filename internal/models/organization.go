package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization owns events, guests and message templates.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership roles.
const (
	OrgRoleOwner  = "owner"
	OrgRoleMember = "member"
)

// OrganizationMember links a user to an organization with a role.
type OrganizationMember struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"org_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a platform account (organizer).
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserPublic is the user representation returned by the API.
type UserPublic struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
}

// ToPublic returns the API-safe view.
func (u *User) ToPublic() UserPublic {
	return UserPublic{ID: u.ID, Email: u.Email, FullName: u.FullName}
}
