package auth

import "time"

// User is a registered storyteller account. Email is optional; accounts
// created from the voice client carry only a username.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sanitize strips the credential hash before the record leaves the
// auth package.
func (u User) Sanitize() User {
	u.PasswordHash = ""
	return u
}
