package app

import (
	"bytes"
	"errors"

	"reel/cmd/internal/auth/session"
)

// ValidateSecurityConfig enforces the startup security policy.
//
// Fail-fast is intentional: silently running with weak signing secrets in
// production is unacceptable.
func ValidateSecurityConfig(cfg Config, sessCfg session.Config) error {
	if !cfg.RequireStrongSecrets {
		return nil
	}

	// Minimum 32 bytes recommended for HMAC-SHA256 signing keys.
	// We measure bytes (not runes) because the key is used as raw bytes.
	if len(sessCfg.AccessSecret) < 32 {
		return errors.New("security policy: REEL_ACCESS_TOKEN_SECRET is too short (min 32 bytes)")
	}
	if len(sessCfg.RefreshSecret) < 32 {
		return errors.New("security policy: REEL_REFRESH_TOKEN_SECRET is too short (min 32 bytes)")
	}
	if bytes.Equal(sessCfg.AccessSecret, sessCfg.RefreshSecret) {
		return errors.New("security policy: access and refresh token secrets must differ")
	}

	return nil
}
