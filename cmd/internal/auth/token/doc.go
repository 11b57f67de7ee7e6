// Package token implements reel's credential token codec.
//
// Access and refresh tokens are compact HS256-signed JWTs with distinct
// secrets and distinct lifetimes. Access tokens carry the identity claim set
// {id, email, username, fullName}; refresh tokens carry the account id only.
//
// The clock is injected so tests can cross expiry boundaries deterministically.
// Verification failures are reported as distinguishable kinds (malformed,
// signature, expired) so callers can react differently to tampering vs expiry.
package token
