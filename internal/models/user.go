package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Username       string
	Email          string
	FullName       string
	HashedPassword string
	AvatarURL      string
	CoverImageURL  string // empty if not uploaded

	// Current refresh token, nil when user has no active session
	// At most one refresh token is valid per user
	RefreshToken *string
}

// HasSession reports whether a refresh token is stored for the user
func (u *User) HasSession() bool {
	return u.RefreshToken != nil && *u.RefreshToken != ""
}
