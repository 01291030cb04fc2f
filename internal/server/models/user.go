// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an account. CurrentRefreshTokenID points at the only refresh
// token row that may still be rotated; empty after logout.
type User struct {
	ID                    string
	Email                 string
	Name                  string
	Surname               string
	Gender                string
	PasswordHash          []byte
	CurrentRefreshTokenID string
	CreatedAt             time.Time
}
