package account

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements account persistence over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - The session slot lives in its own table (one row per account) so slot writes
//   are single-row UPDATEs: atomic, last-writer-wins, never torn.
// - Errors are mapped to account sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the account store (default "reel").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("account: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("account: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "reel",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("account: nil pool")
	}
	return st, nil
}

// Create registers an account, its credentials, and an empty session slot
// transactionally.
func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Account, error) {
	const op = "account.Create"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	fullName := strings.TrimSpace(in.FullName)

	if username == "" || email == "" || fullName == "" {
		return Account{}, pgInvalid(op, "username, email and fullName are required")
	}
	if strings.TrimSpace(in.Password) == "" {
		return Account{}, pgInvalid(op, "password is required")
	}
	if strings.TrimSpace(in.AvatarURL) == "" {
		return Account{}, pgInvalid(op, "avatar is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	usernameNorm := NormalizeUsername(username)
	emailNorm := NormalizeEmail(email)

	pwHash, err := HashPassword(in.Password, in.BcryptCost)
	if err != nil {
		return Account{}, err
	}

	id, err := NewULID(now)
	if err != nil {
		return Account{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Account{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	accounts := pgIdent(s.schema, "accounts")
	creds := pgIdent(s.schema, "account_credentials")
	slots := pgIdent(s.schema, "session_slots")

	_, err = tx.Exec(ctx,
		`INSERT INTO `+accounts+` (
		     id, username, username_norm, email, email_norm, full_name,
		     avatar_url, cover_image_url, watch_history, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '{}', $9, $9)`,
		id, username, usernameNorm, email, emailNorm, fullName,
		strings.TrimSpace(in.AvatarURL), pgTrimPtr(in.CoverImageURL), now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+creds+` (account_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		id, pwHash, now,
	)
	if err != nil {
		return Account{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+slots+` (account_id, refresh_token, updated_at)
		 VALUES ($1, '', $2)`,
		id, now,
	)
	if err != nil {
		return Account{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Account{}, err
	}

	return Account{
		ID:            id,
		Username:      username,
		UsernameNorm:  usernameNorm,
		Email:         email,
		EmailNorm:     emailNorm,
		FullName:      fullName,
		AvatarURL:     strings.TrimSpace(in.AvatarURL),
		CoverImageURL: pgTrimPtr(in.CoverImageURL),
		WatchHistory:  []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// GetByID loads an account by id. The password digest is never selected.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Account, error) {
	const op = "account.GetByID"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Account{}, pgInvalid(op, "missing id")
	}

	accounts := pgIdent(s.schema, "accounts")

	var out Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, username_norm, email, email_norm, full_name,
		        avatar_url, cover_image_url, watch_history, created_at, updated_at
		   FROM `+accounts+`
		  WHERE id = $1`,
		id,
	).Scan(
		&out.ID, &out.Username, &out.UsernameNorm, &out.Email, &out.EmailNorm,
		&out.FullName, &out.AvatarURL, &out.CoverImageURL, &out.WatchHistory,
		&out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, err
	}
	return out, nil
}

// GetForLogin looks up by normalized username OR email (first match) and
// returns the stored digest alongside the account.
func (s *PostgresStore) GetForLogin(ctx context.Context, username, email string) (Account, string, error) {
	const op = "account.GetForLogin"

	if s == nil || s.pool == nil {
		return Account{}, "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Account{}, "", err
	}

	usernameNorm := NormalizeUsername(username)
	emailNorm := NormalizeEmail(email)
	if usernameNorm == "" && emailNorm == "" {
		return Account{}, "", pgInvalid(op, "username or email is required")
	}

	accounts := pgIdent(s.schema, "accounts")
	creds := pgIdent(s.schema, "account_credentials")

	var (
		out    Account
		digest string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT a.id, a.username, a.username_norm, a.email, a.email_norm, a.full_name,
		        a.avatar_url, a.cover_image_url, a.watch_history, a.created_at, a.updated_at,
		        c.password_hash
		   FROM `+accounts+` a
		   JOIN `+creds+` c ON c.account_id = a.id
		  WHERE ($1 <> '' AND a.username_norm = $1)
		     OR ($2 <> '' AND a.email_norm = $2)
		  ORDER BY a.username_norm = $1 DESC
		  LIMIT 1`,
		usernameNorm, emailNorm,
	).Scan(
		&out.ID, &out.Username, &out.UsernameNorm, &out.Email, &out.EmailNorm,
		&out.FullName, &out.AvatarURL, &out.CoverImageURL, &out.WatchHistory,
		&out.CreatedAt, &out.UpdatedAt,
		&digest,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, "", NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, "", err
	}
	return out, digest, nil
}

// UpdatePassword re-hashes and stores a new password digest.
func (s *PostgresStore) UpdatePassword(ctx context.Context, id, newPlain string, cost int, now time.Time) error {
	const op = "account.UpdatePassword"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return pgInvalid(op, "missing id")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	pwHash, err := HashPassword(newPlain, cost)
	if err != nil {
		return err
	}

	creds := pgIdent(s.schema, "account_credentials")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+creds+`
		    SET password_hash = $1,
		        updated_at = $2
		  WHERE account_id = $3`,
		pwHash, now, id,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

// GetRefreshToken reads the session slot ("" means no active session).
func (s *PostgresStore) GetRefreshToken(ctx context.Context, id string) (string, error) {
	const op = "account.GetRefreshToken"

	if s == nil || s.pool == nil {
		return "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(id) == "" {
		return "", pgInvalid(op, "missing id")
	}

	slots := pgIdent(s.schema, "session_slots")

	var token string
	err := s.pool.QueryRow(ctx,
		`SELECT refresh_token FROM `+slots+` WHERE account_id = $1`,
		id,
	).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", NotFoundError{Op: op, Resource: "session_slot"}
		}
		return "", err
	}
	return token, nil
}

// SetRefreshToken overwrites the session slot unconditionally (login).
// Single-row UPDATE: atomic per account, last-writer-wins.
func (s *PostgresStore) SetRefreshToken(ctx context.Context, id, token string, now time.Time) error {
	const op = "account.SetRefreshToken"
	return s.writeSlot(ctx, op, id, token, "", false, now)
}

// RotateRefreshToken swaps old -> new only if the slot still holds old.
// The WHERE clause makes compare-and-swap atomic; a concurrent rotation that
// already won leaves zero rows affected and the loser gets ErrNotActive.
func (s *PostgresStore) RotateRefreshToken(ctx context.Context, id, old, new string, now time.Time) error {
	const op = "account.RotateRefreshToken"

	if strings.TrimSpace(old) == "" {
		return pgInvalid(op, "missing old refresh token")
	}
	return s.writeSlot(ctx, op, id, new, old, true, now)
}

// ClearRefreshToken empties the session slot (logout). Idempotent.
func (s *PostgresStore) ClearRefreshToken(ctx context.Context, id string, now time.Time) error {
	const op = "account.ClearRefreshToken"
	return s.writeSlot(ctx, op, id, "", "", false, now)
}

func (s *PostgresStore) writeSlot(ctx context.Context, op, id, token, expect string, conditional bool, now time.Time) error {
	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return pgInvalid(op, "missing id")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	slots := pgIdent(s.schema, "session_slots")

	var (
		ct  pgconn.CommandTag
		err error
	)
	if conditional {
		ct, err = s.pool.Exec(ctx,
			`UPDATE `+slots+`
			    SET refresh_token = $1,
			        updated_at = $2
			  WHERE account_id = $3
			    AND refresh_token = $4`,
			token, now, id, expect,
		)
	} else {
		ct, err = s.pool.Exec(ctx,
			`UPDATE `+slots+`
			    SET refresh_token = $1,
			        updated_at = $2
			  WHERE account_id = $3`,
			token, now, id,
		)
	}
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		if conditional {
			return OpError{Op: op, Kind: ErrNotActive, Msg: "slot changed concurrently"}
		}
		return NotFoundError{Op: op, Resource: "session_slot"}
	}
	return nil
}

// AppendWatchHistory appends an item id to the ordered watch history.
func (s *PostgresStore) AppendWatchHistory(ctx context.Context, id, itemID string, now time.Time) error {
	const op = "account.AppendWatchHistory"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" || strings.TrimSpace(itemID) == "" {
		return pgInvalid(op, "missing id")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	accounts := pgIdent(s.schema, "accounts")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+accounts+`
		    SET watch_history = array_append(watch_history, $1),
		        updated_at = $2
		  WHERE id = $3`,
		itemID, now, id,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

// ---- helpers ----

// pgTrimPtr trims a string pointer, returning nil if the result is empty.
func pgTrimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

// pgInvalid standardizes invalid input errors.
func pgInvalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_accounts_username_norm":
		return "username", true
	case "uq_accounts_email_norm":
		return "email", true
	default:
		switch {
		case strings.Contains(c, "username"):
			return "username", true
		case strings.Contains(c, "email"):
			return "email", true
		default:
			return "unique", true
		}
	}
}
