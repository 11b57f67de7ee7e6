package session

import (
	"os"
	"strconv"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls access/refresh token secrets and TTLs, clock skew tolerance,
// and the bcrypt cost used for password changes routed through the service.
//
// This struct is intentionally explicit and environment-driven so production
// deployments can tune security parameters without code changes.
type Config struct {
	// AccessSecret signs access tokens; RefreshSecret signs refresh tokens.
	// They must be distinct: a token of one kind must never verify as the other.
	AccessSecret  []byte
	RefreshSecret []byte

	// AccessTTL defines the lifetime of access tokens.
	AccessTTL time.Duration

	// RefreshTTL defines the lifetime of refresh tokens.
	RefreshTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// BcryptCost is the hashing cost for password writes.
	BcryptCost int
}

// DefaultConfig returns a configuration suitable for development.
// Secrets are intentionally empty; startup fails without them.
func DefaultConfig() Config {
	return Config{
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		ClockSkew:  30 * time.Second,
		BcryptCost: 12,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - REEL_ACCESS_TOKEN_SECRET
//   - REEL_REFRESH_TOKEN_SECRET (must differ from the access secret)
//
// Optional (durations must be valid Go duration strings):
//   - REEL_ACCESS_TOKEN_TTL
//   - REEL_REFRESH_TOKEN_TTL
//   - REEL_AUTH_CLOCK_SKEW
//   - REEL_BCRYPT_COST
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	access := os.Getenv("REEL_ACCESS_TOKEN_SECRET")
	refresh := os.Getenv("REEL_REFRESH_TOKEN_SECRET")
	if access == "" || refresh == "" || access == refresh {
		return Config{}, ErrConfig
	}
	cfg.AccessSecret = []byte(access)
	cfg.RefreshSecret = []byte(refresh)

	if v := os.Getenv("REEL_ACCESS_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTTL = d
	}

	if v := os.Getenv("REEL_REFRESH_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTL = d
	}

	if v := os.Getenv("REEL_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	if v := os.Getenv("REEL_BCRYPT_COST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 10 || n > 18 {
			return Config{}, ErrConfig
		}
		cfg.BcryptCost = n
	}

	// Invariant: a refresh token must outlive the access tokens it renews.
	if cfg.RefreshTTL < cfg.AccessTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
