package models

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a merchant/store account (a tenant of the platform).
type Account struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	StoreName string    `json:"store_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
