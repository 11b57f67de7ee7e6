package token

import "errors"

var (
	// ErrMalformed is returned when a token is structurally invalid.
	ErrMalformed = errors.New("token malformed")

	// ErrSignatureInvalid is returned when the signature does not match the secret.
	ErrSignatureInvalid = errors.New("token signature invalid")

	// ErrExpired is returned when the token is past its expiry.
	ErrExpired = errors.New("token expired")

	// ErrConfig is returned for invalid codec configuration.
	ErrConfig = errors.New("invalid token config")
)
