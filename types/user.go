package types

import "time"

// User represents an account in the system.
// It contains identity, profile, and audit metadata.
type User struct {
	// ID is the unique identifier of the account: 24 hex characters,
	// generated by the store at creation and immutable afterwards.
	ID string `json:"id" db:"id"`

	// Email is the unique address the account signs in with.
	Email string `json:"email" db:"email"`

	// Name is the display name shown on the profile.
	Name string `json:"name" db:"name"`

	// About is a short free-text bio.
	About string `json:"about" db:"about"`

	// AvatarURL points at the profile picture. It is always an
	// absolute http or https URL.
	AvatarURL string `json:"avatar_url" db:"avatar_url"`

	// PasswordHash stores the hashed representation of the account's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
