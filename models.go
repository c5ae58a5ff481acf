package accounts

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// AccountStatus is derived from the Active flag and VerifiedAt.
type AccountStatus string

const (
	StatusPendingVerification AccountStatus = "pending_verification"
	StatusActive              AccountStatus = "active"
	StatusDeactivated         AccountStatus = "deactivated"
)

// User is the identity record
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	Username      string     `bun:"username,notnull,unique" json:"username"`
	Email         string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Role          Role       `bun:"user_role,notnull" json:"user_role"`
	ParentID      *int64     `bun:"parent_id,nullzero" json:"parent_id,omitempty"`
	Active        bool       `bun:"is_active,notnull" json:"is_active"`
	VerifiedAt    *time.Time `bun:"verified_at,nullzero" json:"verified_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// Status returns the lifecycle state of the account.
func (u *User) Status() AccountStatus {
	switch {
	case u == nil:
		return ""
	case u.Active:
		return StatusActive
	case u.VerifiedAt != nil:
		return StatusDeactivated
	default:
		return StatusPendingVerification
	}
}

// IsActive reports whether the account can log in.
func (u *User) IsActive() bool { return u != nil && u.Active }

// HasParent reports whether the account belongs to a company.
func (u *User) HasParent() bool { return u != nil && u.ParentID != nil }

// IsVerified reports whether the email address was proven.
func (u *User) IsVerified() bool { return u != nil && u.VerifiedAt != nil }

// GetID, GetUsername and GetRole let *User act as a token identity.
func (u *User) GetID() int64       { return u.ID }
func (u *User) GetUsername() string { return u.Username }
func (u *User) GetRole() string     { return string(u.Role) }

// NormalizeEmail is the stored and compared form of an address: trimmed
// and lower case, so uniqueness and lookups ignore case.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
