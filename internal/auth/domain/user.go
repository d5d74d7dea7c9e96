package domain

import "time"

// Roles granted to accounts.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string   // argon2id PHC string
	Roles        []string // embedded into tokens at issue time
	Active       bool
	MFASecret    *string // TOTP secret (base32), nil when MFA is off
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MFAEnabled reports whether login requires a TOTP code.
func (u User) MFAEnabled() bool {
	return u.MFASecret != nil && *u.MFASecret != ""
}
