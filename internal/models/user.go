package models

import "time"

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
	Picture      *string
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Verification and PasswordReset rows share one shape: a single-use token
// bound to a user. Only the SHA-256 of the token is stored.
type Verification struct {
	ID        string
	TokenHash []byte
	UserID    string
	CreatedAt time.Time
}

type PasswordReset struct {
	ID        string
	TokenHash []byte
	UserID    string
	CreatedAt time.Time
}
