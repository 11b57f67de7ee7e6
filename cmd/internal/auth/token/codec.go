package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config defines the codec's signing secrets, lifetimes, and skew tolerance.
//
// Access and refresh tokens use distinct secrets so a token of one kind can
// never verify as the other.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// ClockSkew is the leeway applied during verification to tolerate minor
	// clock differences between issuer and verifier.
	ClockSkew time.Duration
}

// AccessClaims is the identity claim set carried by access tokens.
type AccessClaims struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	FullName string `json:"fullName,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims carries the account id only.
type RefreshClaims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// Identity is the caller-facing claim set for issuance.
type Identity struct {
	ID       string
	Email    string
	Username string
	FullName string
}

// Codec signs and verifies reel's credential tokens.
type Codec struct {
	cfg Config
	now func() time.Time
}

// Option configures optional codec behavior.
type Option func(*Codec)

// WithClock overrides the codec's time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if c == nil || now == nil {
			return
		}
		c.now = now
	}
}

// NewCodec validates the config and constructs a Codec.
func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, ErrConfig
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, ErrConfig
	}
	if cfg.ClockSkew < 0 || cfg.ClockSkew > 2*time.Minute {
		return nil, ErrConfig
	}

	c := &Codec{
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c, nil
}

// IssueAccess signs an access token for the identity.
// Expiry is issued-at + AccessTTL.
func (c *Codec) IssueAccess(id Identity) (string, time.Time, error) {
	now := c.now()
	exp := now.Add(c.cfg.AccessTTL)

	claims := AccessClaims{
		ID:       id.ID,
		Email:    id.Email,
		Username: id.Username,
		FullName: id.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.AccessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueRefresh signs a refresh token carrying the account id only.
// Expiry is issued-at + RefreshTTL.
func (c *Codec) IssueRefresh(accountID string) (string, time.Time, error) {
	now := c.now()
	exp := now.Add(c.cfg.RefreshTTL)

	claims := RefreshClaims{
		ID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.RefreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccess verifies an access token and returns its claims.
// Failure kinds: ErrMalformed, ErrSignatureInvalid, ErrExpired.
func (c *Codec) VerifyAccess(tokenStr string) (AccessClaims, error) {
	claims := AccessClaims{}
	if err := c.verify(tokenStr, c.cfg.AccessSecret, &claims); err != nil {
		return AccessClaims{}, err
	}
	if claims.ID == "" {
		return AccessClaims{}, ErrMalformed
	}
	return claims, nil
}

// VerifyRefresh verifies a refresh token and returns its claims.
func (c *Codec) VerifyRefresh(tokenStr string) (RefreshClaims, error) {
	claims := RefreshClaims{}
	if err := c.verify(tokenStr, c.cfg.RefreshSecret, &claims); err != nil {
		return RefreshClaims{}, err
	}
	if claims.ID == "" {
		return RefreshClaims{}, ErrMalformed
	}
	return claims, nil
}

func (c *Codec) verify(tokenStr string, secret []byte, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.cfg.ClockSkew > 0 {
		options = append(options, jwt.WithLeeway(c.cfg.ClockSkew))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return mapJWTError(err)
	}
	if !parsed.Valid {
		return ErrSignatureInvalid
	}
	return nil
}

// mapJWTError collapses jwt/v5's error set into the codec's stable kinds.
// Order matters: an expired token with a bad signature must report the
// signature failure, not the expiry.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenUnverifiable), errors.Is(err, jwt.ErrInvalidKeyType):
		return ErrSignatureInvalid
	default:
		return ErrMalformed
	}
}
