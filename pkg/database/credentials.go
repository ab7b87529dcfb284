// Package database persists account credentials and exposes the
// repository contract the server's operation handlers depend on.
package database

import "errors"

// ErrNotFound indicates the requested account does not exist.
var ErrNotFound = errors.New("database: account not found")

// Role is the authorization tier stored alongside an account.
type Role uint8

const (
	RoleNone Role = iota
	RoleGuest
	RoleUser
	RoleAdmin
)

// AuthView is the subset of an account row Login needs to verify a
// password, enforce lockout, and determine session level.
type AuthView struct {
	ID                int64
	Username          string
	PasswordSalt      [64]byte
	PasswordHash      [64]byte
	IsActive          bool
	FailedLoginCount  int
	LastFailedLoginAt int64 // unix millis, zero if never failed
	Role              Role
}

// PasswordChangeView is the subset of an account row ChangePassword needs
// to verify the old password before writing a new one.
type PasswordChangeView struct {
	ID           int64
	Username     string
	PasswordSalt [64]byte
	PasswordHash [64]byte
	IsActive     bool
}

// CredentialsRepository is the storage contract every operation handler
// depends on. Implementations must be safe for concurrent use.
type CredentialsRepository interface {
	// GetAuthViewByUsername fetches the fields Login needs. Returns
	// ErrNotFound if no such account exists.
	GetAuthViewByUsername(username string) (AuthView, error)

	// GetForPasswordChangeByUsername fetches the fields ChangePassword
	// needs. Returns ErrNotFound if no such account exists.
	GetForPasswordChangeByUsername(username string) (PasswordChangeView, error)

	// InsertOrIgnore creates a new account row. It returns the new row's
	// id, or an id ≤ 0 if username was already taken (insert skipped,
	// not an error).
	InsertOrIgnore(username string, salt, hash [64]byte, createdAt int64) (int64, error)

	// IncrementFailed bumps failed_login_count and stamps
	// last_failed_login_at for the account with the given id.
	IncrementFailed(id int64, failedAt int64) error

	// ResetFailedAndStampLogin zeroes failed_login_count and stamps
	// last_login_at, called after a successful login.
	ResetFailedAndStampLogin(id int64, loginAt int64) error

	// StampLogout stamps last_logout_at for the account with the given
	// id.
	StampLogout(id int64, logoutAt int64) error

	// UpdatePasswordIfMatches performs an optimistic-concurrency
	// password update: the row is only overwritten if its current hash
	// still equals oldHash. Returns the number of rows changed (0 or 1).
	UpdatePasswordIfMatches(id int64, oldHash [64]byte, newSalt, newHash [64]byte) (int64, error)
}
