// Package session implements reel's credential and session-token core.
//
// It provides a single-slot session model: an account has at most one active
// refresh token, stored on the account's session slot. Login overwrites the
// slot, refresh rotates it with an atomic conditional swap, and logout clears
// it. Access tokens are short-lived signed JWTs and stay valid until their own
// expiry; only refresh is revocable.
//
// Transport (HTTP) integration is intentionally out of scope here.
package session
