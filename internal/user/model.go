package user

import (
	"time"

	"github.com/gofrs/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile is created together with its user and holds the editable contact details.
type Profile struct {
	UserID         uuid.UUID  `json:"user_id"`
	ProfilePicture string     `json:"profile_picture"`
	PhoneNumber    string     `json:"phone_number"`
	Address        string     `json:"address"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type ProfileUpdate struct {
	PhoneNumber string
	Address     string
}
