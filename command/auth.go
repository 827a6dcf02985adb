package command

import "golang.org/x/crypto/bcrypt"

// bcryptCompare reports whether candidate matches hash, the AUTH/HELLO
// password check of spec.md §6 ("AUTH"). An empty hash (no password
// configured) never matches, mirroring config.Config.AuthMode gating this
// call out entirely when no password was set.
func bcryptCompare(hash, candidate []byte) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, candidate) == nil
}

// HashPassword produces the bcrypt hash the server stores in
// Limits.AuthPasswordHash from the operator-supplied plaintext password
// (config.Config.AuthPassword).
func HashPassword(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
}
