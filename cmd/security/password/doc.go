// Package password provides password policy validation for Reel.
//
// Hashing and verification live with the account credentials; this package
// only decides whether a plaintext password is acceptable:
// - Configurable length bounds (via environment variables)
// - A minimal, conservative weak-pattern rejection
package password
