package accounts

import (
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used when none is configured.
const DefaultBcryptCost = 12

// BcryptHasher hashes passwords with bcrypt. Every digest carries its own
// salt and cost so old hashes keep verifying after the cost changes.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher with the given cost. Zero selects the
// package default.
func NewBcryptHasher(cost int) *BcryptHasher {
	return &BcryptHasher{Cost: cost}
}

// Hash will generate a password hash
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrNoEmptyString
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost())
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest. Malformed digests and
// empty input are a mismatch.
func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	if plaintext == "" || digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

func (h *BcryptHasher) cost() int {
	if h == nil || h.Cost == 0 {
		return passwordHashCost()
	}
	if h.Cost < bcrypt.MinCost {
		return bcrypt.MinCost
	}
	if h.Cost > bcrypt.MaxCost {
		return bcrypt.MaxCost
	}
	return h.Cost
}

// RandomPasswordHash hashes a random value. Used to equalize login timing
// when the account does not exist.
func RandomPasswordHash() string {
	h, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), passwordHashCost())
	if err != nil {
		return RandomPasswordHash()
	}
	return string(h)
}
