// internal/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered rider.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"-"`

	DisplayName string `json:"display_name"`
	// PaymentLinkBase is the prefix of the rider's payment deeplink; the per-person
	// amount encoding is appended to it when they settle a room.
	PaymentLinkBase string `json:"payment_link_base"`

	CreatedAt time.Time `json:"created_at"`
}
