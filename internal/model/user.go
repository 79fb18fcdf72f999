package model

import "time"

// Role values stored in users.role.
const (
	RoleAgent    = "agent"
	RoleCustomer = "customer"
)

// User represents an application user record as stored in the `users`
// table. Every account is either an agent or a customer and owns exactly
// one profile row in the matching table. The password is stored only as a
// bcrypt hash; the reset token only as a SHA-256 digest.
//
// Fields:
//
//	ID                – primary key identifier.
//	Username          – unique login name.
//	Name              – full display name.
//	Email             – unique email address.
//	PasswordHash      – bcrypt hashed password.
//	Role              – "agent" or "customer".
//	Phone             – optional contact number.
//	ResetTokenHash    – SHA-256 digest of the active reset token (nullable).
//	ResetTokenExpires – when the reset token stops being valid (nullable).
//	CreatedAt         – timestamp of creation.
//	UpdatedAt         – timestamp of last update.
type User struct {
	ID                uint64     // users.id
	Username          string     // users.username
	Name              string     // users.name
	Email             string     // users.email
	PasswordHash      string     // users.password_hash
	Role              string     // users.role
	Phone             string     // users.phone
	ResetTokenHash    *string    // users.reset_token_hash (nullable)
	ResetTokenExpires *time.Time // users.reset_token_expires_at (nullable)
	CreatedAt         time.Time  // users.created_at
	UpdatedAt         time.Time  // users.updated_at
}
