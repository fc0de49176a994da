// internal/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account. Guests never get a row here; they are
// identified purely by their guest token.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Password    string    `json:"password,omitempty"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}
