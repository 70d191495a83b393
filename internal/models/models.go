package models

import (
	"time"

	"github.com/gofrs/uuid"
)

type User struct {
	ID           uuid.UUID `json:"_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Photo        string    `json:"photo"`
	Phone        string    `json:"phone"`
	Bio          string    `json:"bio"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ProfileUpdate carries the fields a user may change about themselves.
// Email and password have dedicated flows and are never part of it.
type ProfileUpdate struct {
	Name  *string `json:"name"`
	Photo *string `json:"photo"`
	Phone *string `json:"phone"`
	Bio   *string `json:"bio"`
}

type ResetToken struct {
	UserID    uuid.UUID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}
