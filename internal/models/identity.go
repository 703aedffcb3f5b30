package models

import "github.com/google/uuid"

// Identity of the authenticated caller decoded from access token
type Identity struct {
	UserID uuid.UUID
}
