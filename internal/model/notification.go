package model

import "time"

// Notification is a message targeted at one user.
type Notification struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Message     string    `json:"message" db:"message"`
	Read        bool      `json:"read" db:"read"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	EmergencyID *string   `json:"emergency_id,omitempty" db:"emergency_id"`
}
