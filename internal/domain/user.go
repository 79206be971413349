package domain

import "time"

// User represents a platform account.
type User struct {
	ID           string
	Name         string
	Email        string
	Role         string
	PasswordHash []byte
	CreatedAt    time.Time
}
