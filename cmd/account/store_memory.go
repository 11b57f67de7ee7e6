package account

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for tests and DB-less dev mode.
// Slot writes are serialized by the mutex, which gives the same per-account
// atomicity the Postgres store gets from single-row UPDATEs.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*memAccount // id -> record
}

type memAccount struct {
	acc    Account
	digest string
	slot   string
	slotAt time.Time
}

// NewMemoryStore constructs an empty in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*memAccount)}
}

// Create registers a new account with uniqueness enforcement.
func (s *MemoryStore) Create(ctx context.Context, in CreateInput) (Account, error) {
	const op = "account.Create"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	fullName := strings.TrimSpace(in.FullName)
	if username == "" || email == "" || fullName == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username, email and fullName are required"}
	}
	if strings.TrimSpace(in.Password) == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password is required"}
	}
	if strings.TrimSpace(in.AvatarURL) == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "avatar is required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	usernameNorm := NormalizeUsername(username)
	emailNorm := NormalizeEmail(email)

	digest, err := HashPassword(in.Password, in.BcryptCost)
	if err != nil {
		return Account{}, err
	}

	id, err := NewULID(now)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.accounts {
		if rec.acc.UsernameNorm == usernameNorm {
			return Account{}, ConflictError{Op: op, Field: "username"}
		}
		if rec.acc.EmailNorm == emailNorm {
			return Account{}, ConflictError{Op: op, Field: "email"}
		}
	}

	var cover *string
	if in.CoverImageURL != nil {
		if v := strings.TrimSpace(*in.CoverImageURL); v != "" {
			cover = &v
		}
	}

	acc := Account{
		ID:            id,
		Username:      username,
		UsernameNorm:  usernameNorm,
		Email:         email,
		EmailNorm:     emailNorm,
		FullName:      fullName,
		AvatarURL:     strings.TrimSpace(in.AvatarURL),
		CoverImageURL: cover,
		WatchHistory:  []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.accounts[id] = &memAccount{acc: acc, digest: digest, slotAt: now}
	return acc, nil
}

// GetByID loads an account by id.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (Account, error) {
	const op = "account.GetByID"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.accounts[id]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return cloneAccount(rec.acc), nil
}

// GetForLogin looks up by username OR email and returns the stored digest.
func (s *MemoryStore) GetForLogin(ctx context.Context, username, email string) (Account, string, error) {
	const op = "account.GetForLogin"

	if err := ctx.Err(); err != nil {
		return Account{}, "", err
	}

	usernameNorm := NormalizeUsername(username)
	emailNorm := NormalizeEmail(email)
	if usernameNorm == "" && emailNorm == "" {
		return Account{}, "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "username or email is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.accounts {
		if (usernameNorm != "" && rec.acc.UsernameNorm == usernameNorm) ||
			(emailNorm != "" && rec.acc.EmailNorm == emailNorm) {
			return cloneAccount(rec.acc), rec.digest, nil
		}
	}
	return Account{}, "", NotFoundError{Op: op, Resource: "account"}
}

// UpdatePassword re-hashes and stores a new password digest.
func (s *MemoryStore) UpdatePassword(ctx context.Context, id, newPlain string, cost int, now time.Time) error {
	const op = "account.UpdatePassword"

	if err := ctx.Err(); err != nil {
		return err
	}

	digest, err := HashPassword(newPlain, cost)
	if err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.accounts[id]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}
	rec.digest = digest
	rec.acc.UpdatedAt = now
	return nil
}

// GetRefreshToken reads the session slot.
func (s *MemoryStore) GetRefreshToken(ctx context.Context, id string) (string, error) {
	const op = "account.GetRefreshToken"

	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.accounts[id]
	if !ok {
		return "", NotFoundError{Op: op, Resource: "session_slot"}
	}
	return rec.slot, nil
}

// SetRefreshToken overwrites the session slot unconditionally.
func (s *MemoryStore) SetRefreshToken(ctx context.Context, id, token string, now time.Time) error {
	const op = "account.SetRefreshToken"
	return s.writeSlot(ctx, op, id, token, "", false, now)
}

// RotateRefreshToken swaps old -> new only if the slot still holds old.
func (s *MemoryStore) RotateRefreshToken(ctx context.Context, id, old, new string, now time.Time) error {
	const op = "account.RotateRefreshToken"

	if strings.TrimSpace(old) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing old refresh token"}
	}
	return s.writeSlot(ctx, op, id, new, old, true, now)
}

// ClearRefreshToken empties the session slot. Idempotent.
func (s *MemoryStore) ClearRefreshToken(ctx context.Context, id string, now time.Time) error {
	const op = "account.ClearRefreshToken"
	return s.writeSlot(ctx, op, id, "", "", false, now)
}

func (s *MemoryStore) writeSlot(ctx context.Context, op, id, token, expect string, conditional bool, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.accounts[id]
	if !ok {
		return NotFoundError{Op: op, Resource: "session_slot"}
	}
	if conditional && rec.slot != expect {
		return OpError{Op: op, Kind: ErrNotActive, Msg: "slot changed concurrently"}
	}
	rec.slot = token
	rec.slotAt = now
	return nil
}

// AppendWatchHistory appends an item id to the ordered watch history.
func (s *MemoryStore) AppendWatchHistory(ctx context.Context, id, itemID string, now time.Time) error {
	const op = "account.AppendWatchHistory"

	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(itemID) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing item id"}
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.accounts[id]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}
	rec.acc.WatchHistory = append(rec.acc.WatchHistory, itemID)
	rec.acc.UpdatedAt = now
	return nil
}

func cloneAccount(a Account) Account {
	out := a
	out.WatchHistory = append([]string(nil), a.WatchHistory...)
	if a.CoverImageURL != nil {
		v := *a.CoverImageURL
		out.CoverImageURL = &v
	}
	return out
}
