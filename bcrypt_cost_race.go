//go:build race

package accounts

import "golang.org/x/crypto/bcrypt"

func passwordHashCost() int {
	// race builds are several times slower, keep the suite inside its timeouts
	return bcrypt.DefaultCost
}
