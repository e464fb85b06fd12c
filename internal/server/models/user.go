package models

import "time"

// User is an account owned by the durable store. PasswordHash is an
// opaque string produced by the password hasher.
type User struct {
	ID           string
	UserName     string
	PasswordHash string
	CreatedAt    time.Time
}
