package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"reel/cmd/account"
	"reel/cmd/internal/auth/token"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testService(t *testing.T) (*Service, *account.MemoryStore, *fakeClock) {
	t.Helper()

	cfg := Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		ClockSkew:     0,
		BcryptCost:    account.MinBcryptCost,
	}

	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := token.NewCodec(token.Config{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		ClockSkew:     cfg.ClockSkew,
	}, token.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	store := account.NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(cfg, codec, store, log), store, clock
}

func mustCreateAccount(t *testing.T, store *account.MemoryStore, username, email string) account.Account {
	t.Helper()
	acc, err := store.Create(context.Background(), account.CreateInput{
		Username:   username,
		Email:      email,
		FullName:   "Test User",
		Password:   "very-strong-password-1",
		AvatarURL:  "https://cdn.example.com/a.png",
		BcryptCost: account.MinBcryptCost,
		Now:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return acc
}

func TestLogin_IssuesSessionAndFillsSlot(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()
	created := mustCreateAccount(t, store, "navid", "navid@example.com")

	acc, issued, err := svc.Login(ctx, "navid", "", "very-strong-password-1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if acc.ID != created.ID {
		t.Fatalf("account id = %q, want %q", acc.ID, created.ID)
	}
	if issued.AccessToken == "" || issued.RefreshToken == "" {
		t.Fatalf("issued tokens incomplete: %+v", issued)
	}
	if !issued.RefreshExp.After(issued.AccessExp) {
		t.Fatalf("refresh expiry %v not after access expiry %v", issued.RefreshExp, issued.AccessExp)
	}

	stored, err := store.GetRefreshToken(ctx, acc.ID)
	if err != nil {
		t.Fatalf("get refresh token: %v", err)
	}
	if stored != issued.RefreshToken {
		t.Fatalf("slot = %q, want issued refresh token", stored)
	}
}

func TestLogin_ByEmail(t *testing.T) {
	svc, store, _ := testService(t)
	created := mustCreateAccount(t, store, "navid", "navid@example.com")

	acc, _, err := svc.Login(context.Background(), "", "NAVID@Example.com", "very-strong-password-1")
	if err != nil {
		t.Fatalf("login by email: %v", err)
	}
	if acc.ID != created.ID {
		t.Fatalf("account id = %q, want %q", acc.ID, created.ID)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, store, _ := testService(t)
	mustCreateAccount(t, store, "navid", "navid@example.com")

	_, _, err := svc.Login(context.Background(), "navid", "", "not-the-password")
	if !IsUnauthorized(err) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	if account.IsNotFound(err) {
		t.Fatalf("wrong password must not report not-found: %v", err)
	}
}

func TestLogin_UnknownIdentifier(t *testing.T) {
	svc, store, _ := testService(t)
	mustCreateAccount(t, store, "navid", "navid@example.com")

	_, _, err := svc.Login(context.Background(), "nobody", "", "very-strong-password-1")
	if !account.IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
	if IsUnauthorized(err) {
		t.Fatalf("unknown identifier must not report unauthorized: %v", err)
	}
}

func TestLogin_NoIdentifiers(t *testing.T) {
	svc, _, _ := testService(t)

	_, _, err := svc.Login(context.Background(), "  ", "", "very-strong-password-1")
	if !account.IsInvalidInput(err) {
		t.Fatalf("err = %v, want invalid input", err)
	}
}

func TestRefresh_RotatesSlot(t *testing.T) {
	svc, store, clock := testService(t)
	ctx := context.Background()
	acc := mustCreateAccount(t, store, "navid", "navid@example.com")

	_, first, err := svc.Login(ctx, "navid", "", "very-strong-password-1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	clock.Advance(2 * time.Second)
	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("refresh did not rotate the token")
	}

	stored, err := store.GetRefreshToken(ctx, acc.ID)
	if err != nil {
		t.Fatalf("get refresh token: %v", err)
	}
	if stored != second.RefreshToken {
		t.Fatalf("slot = %q, want the rotated token", stored)
	}

	// Replay of the rotated-out token must be rejected.
	if _, err := svc.Refresh(ctx, first.RefreshToken); !IsUnauthorized(err) {
		t.Fatalf("stale refresh: err = %v, want unauthorized", err)
	}
}

func TestRefresh_RejectsBadTokens(t *testing.T) {
	svc, store, clock := testService(t)
	ctx := context.Background()
	mustCreateAccount(t, store, "navid", "navid@example.com")

	_, issued, err := svc.Login(ctx, "navid", "", "very-strong-password-1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	cases := []struct {
		name      string
		presented string
		reason    string
	}{
		{name: "empty", presented: "   ", reason: "no refresh token"},
		{name: "garbage", presented: "not-a-jwt", reason: "malformed"},
		{name: "access token as refresh", presented: issued.AccessToken, reason: "signature invalid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Refresh(ctx, tc.presented)
			if !IsUnauthorized(err) {
				t.Fatalf("err = %v, want unauthorized", err)
			}
			if reason := UnauthorizedReason(err); !strings.Contains(reason, tc.reason) {
				t.Fatalf("reason = %q, want it to mention %q", reason, tc.reason)
			}
		})
	}

	t.Run("expired", func(t *testing.T) {
		clock.Advance(25 * time.Hour)
		_, err := svc.Refresh(ctx, issued.RefreshToken)
		if !IsUnauthorized(err) {
			t.Fatalf("err = %v, want unauthorized", err)
		}
		if reason := UnauthorizedReason(err); !strings.Contains(reason, "expired") {
			t.Fatalf("reason = %q, want it to mention expiry", reason)
		}
	})
}

func TestRefresh_ConcurrentSingleWinner(t *testing.T) {
	svc, store, clock := testService(t)
	ctx := context.Background()
	mustCreateAccount(t, store, "navid", "navid@example.com")

	_, issued, err := svc.Login(ctx, "navid", "", "very-strong-password-1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	clock.Advance(time.Second)

	const racers = 2
	results := make(chan error, racers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < racers; i++ {
		go func() {
			start.Wait()
			_, err := svc.Refresh(ctx, issued.RefreshToken)
			results <- err
		}()
	}
	start.Done()

	var wins, losses int
	for i := 0; i < racers; i++ {
		switch err := <-results; {
		case err == nil:
			wins++
		case IsUnauthorized(err):
			losses++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if wins != 1 || losses != racers-1 {
		t.Fatalf("wins=%d losses=%d, want exactly one winner", wins, losses)
	}
}

func TestLogout_InvalidatesRefresh(t *testing.T) {
	svc, store, clock := testService(t)
	ctx := context.Background()
	acc := mustCreateAccount(t, store, "navid", "navid@example.com")

	_, issued, err := svc.Login(ctx, "navid", "", "very-strong-password-1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := svc.Logout(ctx, acc.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := svc.Refresh(ctx, issued.RefreshToken); !IsUnauthorized(err) {
		t.Fatalf("refresh after logout: err = %v, want unauthorized", err)
	}

	// Logging out again is a no-op, not an error.
	if err := svc.Logout(ctx, acc.ID); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, store, clock := testService(t)
	ctx := context.Background()
	created := mustCreateAccount(t, store, "navid", "navid@example.com")

	_, issued, err := svc.Login(ctx, "navid", "", "very-strong-password-1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	acc, err := svc.Authenticate(ctx, issued.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if acc.ID != created.ID || acc.Username != created.Username {
		t.Fatalf("authenticated account = %+v, want %+v", acc, created)
	}

	if _, err := svc.Authenticate(ctx, ""); !IsUnauthorized(err) {
		t.Fatalf("empty token: err = %v, want unauthorized", err)
	}
	if _, err := svc.Authenticate(ctx, "not-a-jwt"); !IsUnauthorized(err) {
		t.Fatalf("garbage token: err = %v, want unauthorized", err)
	}
	if _, err := svc.Authenticate(ctx, issued.RefreshToken); !IsUnauthorized(err) {
		t.Fatalf("refresh token at the gate: err = %v, want unauthorized", err)
	}

	clock.Advance(16 * time.Minute)
	_, err = svc.Authenticate(ctx, issued.AccessToken)
	if !IsUnauthorized(err) {
		t.Fatalf("expired token: err = %v, want unauthorized", err)
	}
	if reason := UnauthorizedReason(err); !strings.Contains(reason, "expired") {
		t.Fatalf("reason = %q, want it to mention expiry", reason)
	}
}

func TestChangePassword(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()
	acc := mustCreateAccount(t, store, "navid", "navid@example.com")

	err := svc.ChangePassword(ctx, acc.ID, "not-the-password", "even-stronger-password-2")
	if !IsUnauthorized(err) {
		t.Fatalf("wrong current password: err = %v, want unauthorized", err)
	}

	if err := svc.ChangePassword(ctx, acc.ID, "very-strong-password-1", "even-stronger-password-2"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, _, err := svc.Login(ctx, "navid", "", "very-strong-password-1"); !IsUnauthorized(err) {
		t.Fatalf("old password after change: err = %v, want unauthorized", err)
	}
	if _, _, err := svc.Login(ctx, "navid", "", "even-stronger-password-2"); err != nil {
		t.Fatalf("new password after change: %v", err)
	}
}

// failingStore injects a persistence error into slot writes.
type failingStore struct {
	account.Store
	writeErr error
}

func (s *failingStore) SetRefreshToken(ctx context.Context, id, tok string, now time.Time) error {
	return s.writeErr
}

func (s *failingStore) RotateRefreshToken(ctx context.Context, id, old, next string, now time.Time) error {
	return s.writeErr
}

func TestIssueSession_PersistFailureReturnsNoTokens(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()
	acc := mustCreateAccount(t, store, "navid", "navid@example.com")

	broken := &failingStore{Store: store, writeErr: errors.New("disk on fire")}
	svc = NewService(svc.cfg, svc.codec, broken, svc.log)

	issued, err := svc.IssueSession(ctx, acc)
	if !errors.Is(err, ErrSessionPersist) {
		t.Fatalf("err = %v, want %v", err, ErrSessionPersist)
	}
	if issued != (Issued{}) {
		t.Fatalf("issued = %+v, want zero value on persist failure", issued)
	}

	// Login goes through the same issuance path.
	if _, _, err := svc.Login(ctx, "navid", "", "very-strong-password-1"); !errors.Is(err, ErrSessionPersist) {
		t.Fatalf("login persist failure: err = %v, want %v", err, ErrSessionPersist)
	}
}
