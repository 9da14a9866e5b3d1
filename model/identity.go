package models

import (
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Identity is the public profile record stored at users/{id}.
type Identity struct {
	ID          string    `json:"id"`
	Handle      string    `json:"handle"`
	HandleLower string    `json:"handleLower"`
	Email       string    `json:"email"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// Reservation claims a unique key (lowercased handle or email) for an
// identity. Stored at handles/{key} and emails/{key}.
type Reservation struct {
	IdentityID string    `json:"identityId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Session is an authenticated identity provider session.
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	PhotoURL    string    `json:"photoUrl,omitempty"`
	Token       string    `json:"token,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
