package models

import "time"

// RefreshToken is one issued refresh credential. Rows are never updated;
// only the SHA-256 digest of the token is kept.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
