package account

import (
	"context"
	"time"
)

// Account is reel's canonical user record.
//
// The password digest is intentionally absent: it never leaves the store
// boundary except through GetForLogin, which returns it out-of-band so the
// caller can verify and then drop it.
type Account struct {
	ID           string
	Username     string
	UsernameNorm string
	Email        string
	EmailNorm    string
	FullName     string

	AvatarURL     string
	CoverImageURL *string

	// WatchHistory is an ordered list of watched item ids, oldest first.
	// It is irrelevant to the credential core but lives on the aggregate.
	WatchHistory []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionSlot is the single mutable authentication-session field per account.
// An empty RefreshToken means "no active session".
type SessionSlot struct {
	AccountID    string
	RefreshToken string
	UpdatedAt    time.Time
}

// CreateInput describes a registration request.
// Username, Email, FullName and Password are required; the store hashes the
// password so the plaintext never crosses back out of this boundary.
type CreateInput struct {
	Username      string
	Email         string
	FullName      string
	Password      string
	AvatarURL     string
	CoverImageURL *string
	BcryptCost    int
	Now           time.Time
}

// Store is the account persistence boundary.
//
// Concurrency contract for the session slot:
//   - SetRefreshToken and ClearRefreshToken are atomic per account
//     (last-writer-wins, never a torn write).
//   - RotateRefreshToken is a conditional swap: it succeeds only when the
//     stored token still equals old, so of N concurrent rotations with the
//     same old token exactly one wins; the rest get ErrNotActive.
type Store interface {
	// Create registers a new account with uniqueness enforcement on the
	// normalized username and email. Returns ConflictError on duplicates.
	Create(ctx context.Context, in CreateInput) (Account, error)

	// GetByID loads an account by id. The digest is never included.
	GetByID(ctx context.Context, id string) (Account, error)

	// GetForLogin looks an account up by username OR email (first match) and
	// returns the stored password digest alongside the account view.
	// Returns ErrNotFound when neither identifier matches.
	GetForLogin(ctx context.Context, username, email string) (Account, string, error)

	// UpdatePassword re-hashes and stores a new password for the account.
	// This is the only operation that mutates the digest after creation.
	UpdatePassword(ctx context.Context, id, newPlain string, cost int, now time.Time) error

	// GetRefreshToken reads the account's session slot ("" = no session).
	GetRefreshToken(ctx context.Context, id string) (string, error)

	// SetRefreshToken overwrites the session slot unconditionally (login).
	SetRefreshToken(ctx context.Context, id, token string, now time.Time) error

	// RotateRefreshToken swaps old -> new only if the slot still holds old.
	RotateRefreshToken(ctx context.Context, id, old, new string, now time.Time) error

	// ClearRefreshToken empties the session slot (logout). Idempotent.
	ClearRefreshToken(ctx context.Context, id string, now time.Time) error

	// AppendWatchHistory appends an item id to the account's ordered history.
	AppendWatchHistory(ctx context.Context, id, itemID string, now time.Time) error
}
