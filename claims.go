package accounts

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token purposes carried in the "purpose" claim.
const (
	PurposeSession      = "session"
	PurposeVerification = "verification"
)

// AuthClaims is the read-only view of a verified credential
type AuthClaims interface {
	Subject() string
	UserID() int64
	Role() string
	Purpose() string
	TokenID() string
	HasRole(role string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// TokenIdentity is what TokenService needs to mint a credential.
type TokenIdentity interface {
	GetID() int64
	GetUsername() string
	GetRole() string
}

// JWTClaims is the concrete implementation of AuthClaims
type JWTClaims struct {
	jwt.RegisteredClaims
	UID        int64  `json:"uid"`
	UserRole   string `json:"role,omitempty"`
	TokenUsage string `json:"purpose,omitempty"`
}

var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim, the username
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the numeric identity id
func (c *JWTClaims) UserID() int64 {
	return c.UID
}

// Role returns the role exactly as it was signed
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// Purpose returns session or verification. Tokens without the claim are
// treated as session tokens.
func (c *JWTClaims) Purpose() string {
	if c.TokenUsage == "" {
		return PurposeSession
	}
	return c.TokenUsage
}

// TokenID returns the jti claim
func (c *JWTClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// HasRole is a case-sensitive comparison against the role claim
func (c *JWTClaims) HasRole(role string) bool {
	return role != "" && c.UserRole == role
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
