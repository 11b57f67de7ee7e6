package account

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Password hashing (bcrypt).
//
// Security contract:
// - Every digest carries its own random salt; hashing the same password twice
//   yields different digests, both of which verify.
// - Cost is clamped to a floor of 10 so a misconfigured deployment can never
//   weaken stored digests below the baseline.

const (
	// DefaultBcryptCost matches the reference deployment.
	DefaultBcryptCost = 12

	// MinBcryptCost is the enforced floor for stored digests.
	MinBcryptCost = 10
)

// HashPassword returns a bcrypt digest of plain using the given cost.
// Cost values below MinBcryptCost (including zero) are raised to DefaultBcryptCost.
func HashPassword(plain string, cost int) (string, error) {
	if plain == "" {
		return "", OpError{Op: "account.HashPassword", Kind: ErrInvalidInput, Msg: "empty password"}
	}
	if cost < MinBcryptCost {
		cost = DefaultBcryptCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	// bcrypt truncates beyond 72 bytes; reject instead of silently truncating.
	if len(plain) > 72 {
		return "", OpError{Op: "account.HashPassword", Kind: ErrInvalidInput, Msg: "password too long"}
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// VerifyPassword checks plain against a stored bcrypt digest.
// It returns false (never an error) on mismatch or on a malformed digest;
// bcrypt's comparison itself is constant-time over the derived key.
func VerifyPassword(plain, digest string) bool {
	if plain == "" || digest == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain))
	if err == nil {
		return true
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false
	}
	// Malformed digest, unsupported version, cost out of range: treat as mismatch.
	return false
}
