package accounts

import (
	"context"
	"time"
)

// DefaultSeedPassword is the password of every seeded account.
const DefaultSeedPassword = "Admin123!"

// SeedAccount describes an account created by Seed. Parent refers to the
// Username of another seed account.
type SeedAccount struct {
	Username string
	Email    string
	Role     Role
	Parent   string
}

// DefaultSeedAccounts returns the bootstrap accounts for an empty store.
func DefaultSeedAccounts() []SeedAccount {
	return []SeedAccount{
		{Username: "SuperAdmin", Email: "superadmin@core.com", Role: RoleSuper},
		{Username: "Admin", Email: "admin@core.com", Role: RoleAdmin},
		{Username: "Guest", Email: "guest@core.com", Role: RoleUser},
		{Username: "Company1", Email: "company1@core.com", Role: RoleAdmin},
		{Username: "Employee1", Email: "employee1@core.com", Role: RoleUser, Parent: "Company1"},
	}
}

// Seed creates accounts when the store is empty. Seeded accounts are
// active and verified. Parents must appear before their employees. It
// returns how many accounts were created.
func Seed(ctx context.Context, store Store, hasher Hasher, password string, accounts []SeedAccount) (int, error) {
	existing, err := store.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	if password == "" {
		password = DefaultSeedPassword
	}

	ids := map[string]int64{}
	now := time.Now()

	for _, acc := range accounts {
		hash, err := hasher.Hash(password)
		if err != nil {
			return len(ids), err
		}

		user := &User{
			Username:     acc.Username,
			Email:        NormalizeEmail(acc.Email),
			PasswordHash: hash,
			Role:         acc.Role,
			Active:       true,
			VerifiedAt:   &now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if acc.Parent != "" {
			parentID, ok := ids[acc.Parent]
			if !ok {
				return len(ids), validationError("seed parent must be created first", map[string]any{
					"username": acc.Username,
					"parent":   acc.Parent,
				})
			}
			user.ParentID = &parentID
		}

		created, err := store.Insert(ctx, user)
		if err != nil {
			return len(ids), err
		}
		ids[acc.Username] = created.ID
	}

	return len(ids), nil
}
