// Package identity holds user accounts and their credential checks.
//
// Accounts are provisioned out of band; the only write path this service
// owns is the optional demo-user seed used by dev environments.
package identity

import "errors"

// User is an account row. PasswordHash is a bcrypt hash; MFASecret is the
// base32 TOTP secret shared with the user's authenticator app.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	MFASecret    string
	IsActive     bool
}

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")
