package account

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require REEL_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_Create_ConflictUsername_CaseInsensitive(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyAccountSchema(t, pool, schema)

	s := mustNewAccountStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := s.Create(ctx, CreateInput{
		Username:   "Navid",
		Email:      "navid@example.com",
		FullName:   "Navid",
		Password:   "very-strong-password-1",
		AvatarURL:  "https://cdn.example.com/a.png",
		BcryptCost: MinBcryptCost,
		Now:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create account 1: %v", err)
	}

	// Same username (case-insensitive) should conflict.
	_, err = s.Create(ctx, CreateInput{
		Username:   "nAvId",
		Email:      "other@example.com",
		FullName:   "Other",
		Password:   "very-strong-password-2",
		AvatarURL:  "https://cdn.example.com/b.png",
		BcryptCost: MinBcryptCost,
		Now:        time.Now().UTC(),
	})
	if err == nil {
		t.Fatalf("expected conflict, got nil")
	}
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestPostgresStore_SlotRotation_ExactlyOneWinner(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyAccountSchema(t, pool, schema)

	s := mustNewAccountStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	acc, err := s.Create(ctx, CreateInput{
		Username:   "racer",
		Email:      "racer@example.com",
		FullName:   "Racer",
		Password:   "very-strong-password-1",
		AvatarURL:  "https://cdn.example.com/a.png",
		BcryptCost: MinBcryptCost,
		Now:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now().UTC()
	if err := s.SetRefreshToken(ctx, acc.ID, "token-old", now); err != nil {
		t.Fatalf("set slot: %v", err)
	}

	// Two rotations racing from the same observed value: exactly one wins.
	type result struct{ err error }
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		next := fmt.Sprintf("token-new-%d", i)
		go func() {
			results <- result{err: s.RotateRefreshToken(ctx, acc.ID, "token-old", next, time.Now().UTC())}
		}()
	}

	var wins, losses int
	for i := 0; i < 2; i++ {
		r := <-results
		switch {
		case r.err == nil:
			wins++
		case IsNotActive(r.err):
			losses++
		default:
			t.Fatalf("unexpected rotation error: %v", r.err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("wins=%d losses=%d want exactly one winner", wins, losses)
	}

	tok, err := s.GetRefreshToken(ctx, acc.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if !strings.HasPrefix(tok, "token-new-") {
		t.Fatalf("slot=%q want a rotated token", tok)
	}
}

func TestPostgresStore_WatchHistoryOrder(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyAccountSchema(t, pool, schema)

	s := mustNewAccountStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	acc, err := s.Create(ctx, CreateInput{
		Username:   "historian",
		Email:      "historian@example.com",
		FullName:   "Historian",
		Password:   "very-strong-password-1",
		AvatarURL:  "https://cdn.example.com/a.png",
		BcryptCost: MinBcryptCost,
		Now:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, item := range []string{"vid-1", "vid-2", "vid-3"} {
		if err := s.AppendWatchHistory(ctx, acc.ID, item, time.Now().UTC()); err != nil {
			t.Fatalf("append %s: %v", item, err)
		}
	}

	got, err := s.GetByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(got.WatchHistory) != 3 || got.WatchHistory[0] != "vid-1" || got.WatchHistory[2] != "vid-3" {
		t.Fatalf("history=%v want ordered [vid-1 vid-2 vid-3]", got.WatchHistory)
	}
}

// ---- helpers ----

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("REEL_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: REEL_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse REEL_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (REEL_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	id, err := NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	schema := "reel_it_" + strings.ToLower(id)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgxIdent1(schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgxIdent1(schema)+` CASCADE`)
}

func mustApplyAccountSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	accounts := pgIdent(schema, "accounts")
	creds := pgIdent(schema, "account_credentials")
	slots := pgIdent(schema, "session_slots")

	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL,
  username_norm TEXT NOT NULL,
  email TEXT NOT NULL,
  email_norm TEXT NOT NULL,
  full_name TEXT NOT NULL,
  avatar_url TEXT NOT NULL,
  cover_image_url TEXT NULL,
  watch_history TEXT[] NOT NULL DEFAULT '{}',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,

  CONSTRAINT uq_accounts_username_norm UNIQUE (username_norm),
  CONSTRAINT uq_accounts_email_norm UNIQUE (email_norm)
);

CREATE TABLE IF NOT EXISTS %s (
  account_id TEXT PRIMARY KEY REFERENCES %s(id) ON DELETE CASCADE,
  password_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS %s (
  account_id TEXT PRIMARY KEY REFERENCES %s(id) ON DELETE CASCADE,
  refresh_token TEXT NOT NULL DEFAULT '',
  updated_at TIMESTAMPTZ NOT NULL
);
`, accounts, creds, accounts, slots, accounts)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func mustNewAccountStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}

func pgxIdent1(ident string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection in dynamic DDL.
	return pgx.Identifier{ident}.Sanitize()
}
