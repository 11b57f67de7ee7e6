package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"reel/cmd/account"
	"reel/cmd/internal/auth/token"
)

// Service implements the high-level credential and session operations.
//
// It orchestrates login, token issuance, refresh rotation, logout, and the
// verification gate used by protected routes. All shared state lives in the
// account store's session slot; the service itself is stateless and safe for
// concurrent use.
type Service struct {
	cfg   Config
	codec *token.Codec
	store account.Store
	log   *slog.Logger
}

// Issued is the result of issuing or rotating a session.
type Issued struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// NewService constructs a Service from configuration, codec, and store.
func NewService(cfg Config, codec *token.Codec, store account.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, codec: codec, store: store, log: log}
}

// IssueSession mints an access/refresh pair for an authenticated account and
// persists the refresh token as the account's single active session marker.
//
// The slot write is last: if persistence fails no tokens are returned, so a
// caller can never hold a refresh token the store does not know about.
func (s *Service) IssueSession(ctx context.Context, acc account.Account) (Issued, error) {
	accessToken, accessExp, err := s.codec.IssueAccess(token.Identity{
		ID:       acc.ID,
		Email:    acc.Email,
		Username: acc.Username,
		FullName: acc.FullName,
	})
	if err != nil {
		return Issued{}, err
	}

	refreshToken, refreshExp, err := s.codec.IssueRefresh(acc.ID)
	if err != nil {
		return Issued{}, err
	}

	if err := s.store.SetRefreshToken(ctx, acc.ID, refreshToken, time.Now().UTC()); err != nil {
		return Issued{}, persistFailed(err)
	}

	return Issued{
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshToken,
		RefreshExp:   refreshExp,
	}, nil
}

// Login verifies credentials and issues a session.
//
// Lookup is by username OR email (first match). The returned account view
// never contains the password digest. An unknown identifier surfaces as
// ErrNotFound; a wrong password surfaces as unauthorized.
func (s *Service) Login(ctx context.Context, username, email, password string) (account.Account, Issued, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" && email == "" {
		return account.Account{}, Issued{}, account.OpError{
			Op: "session.Login", Kind: account.ErrInvalidInput, Msg: "username or email is required",
		}
	}

	acc, digest, err := s.store.GetForLogin(ctx, username, email)
	if err != nil {
		return account.Account{}, Issued{}, err
	}

	if !account.VerifyPassword(password, digest) {
		return account.Account{}, Issued{}, unauthorized("invalid credentials")
	}

	issued, err := s.IssueSession(ctx, acc)
	if err != nil {
		return account.Account{}, Issued{}, err
	}
	return acc, issued, nil
}

// Refresh validates a presented refresh token, enforces the single-slot
// policy, and rotates the slot to a freshly minted pair.
//
// The rotation itself is a conditional swap inside the store: of two
// concurrent refreshes with the same old token exactly one wins, the other
// observes a mismatch.
func (s *Service) Refresh(ctx context.Context, presented string) (Issued, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return Issued{}, unauthorized("no refresh token")
	}

	claims, err := s.codec.VerifyRefresh(presented)
	if err != nil {
		return Issued{}, unauthorized("refresh token " + verifyReason(err))
	}

	acc, err := s.store.GetByID(ctx, claims.ID)
	if err != nil {
		if account.IsNotFound(err) {
			return Issued{}, unauthorized("account not found")
		}
		return Issued{}, err
	}

	stored, err := s.store.GetRefreshToken(ctx, acc.ID)
	if err != nil {
		if account.IsNotFound(err) {
			return Issued{}, unauthorized("refresh token mismatch")
		}
		return Issued{}, err
	}
	// Single-slot enforcement: the presented token must be the stored one,
	// byte for byte. Constant-time compare; a rotated-out or cleared slot
	// shows up here as a mismatch (replay of an old token).
	if stored == "" || !tokenEqual(presented, stored) {
		return Issued{}, unauthorized("refresh token mismatch")
	}

	accessToken, accessExp, err := s.codec.IssueAccess(token.Identity{
		ID:       acc.ID,
		Email:    acc.Email,
		Username: acc.Username,
		FullName: acc.FullName,
	})
	if err != nil {
		return Issued{}, err
	}
	refreshToken, refreshExp, err := s.codec.IssueRefresh(acc.ID)
	if err != nil {
		return Issued{}, err
	}

	if err := s.store.RotateRefreshToken(ctx, acc.ID, presented, refreshToken, time.Now().UTC()); err != nil {
		if account.IsNotActive(err) {
			// A concurrent refresh or logout changed the slot after our read.
			return Issued{}, unauthorized("refresh token mismatch")
		}
		return Issued{}, persistFailed(err)
	}

	return Issued{
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshToken,
		RefreshExp:   refreshExp,
	}, nil
}

// Logout clears the account's session slot, invalidating future refresh
// attempts. Idempotent: logging out an already-logged-out account succeeds.
// Already-issued access tokens stay valid until their own expiry.
func (s *Service) Logout(ctx context.Context, accountID string) error {
	return s.store.ClearRefreshToken(ctx, accountID, time.Now().UTC())
}

// Authenticate is the verification gate invoked before protected operations.
// It verifies the presented access token and resolves the account view
// (digest and slot excluded). Every failure maps to unauthorized.
func (s *Service) Authenticate(ctx context.Context, presented string) (account.Account, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return account.Account{}, unauthorized("no token")
	}

	claims, err := s.codec.VerifyAccess(presented)
	if err != nil {
		return account.Account{}, unauthorized("access token " + verifyReason(err))
	}

	acc, err := s.store.GetByID(ctx, claims.ID)
	if err != nil {
		if account.IsNotFound(err) {
			return account.Account{}, unauthorized("invalid access token")
		}
		return account.Account{}, err
	}
	return acc, nil
}

// ChangePassword verifies the current password and re-hashes the new one.
// This is the only mutation of the stored digest after account creation.
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string) error {
	acc, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	_, digest, err := s.store.GetForLogin(ctx, acc.Username, "")
	if err != nil {
		return err
	}
	if !account.VerifyPassword(current, digest) {
		return unauthorized("invalid credentials")
	}

	return s.store.UpdatePassword(ctx, accountID, next, s.cfg.BcryptCost, time.Now().UTC())
}

// tokenEqual compares two token strings in constant time.
// Length is checked first; token lengths are not secret.
func tokenEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func verifyReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrSignatureInvalid):
		return "signature invalid"
	default:
		return "malformed"
	}
}
