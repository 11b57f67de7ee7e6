// Package account implements reel's account aggregate and its persistence
// boundary.
//
// It contains the identity primitives (ULID, normalization, bcrypt password
// hashing), the Store interface used by the auth layers, and the Postgres and
// in-memory implementations.
//
// The session slot (single active refresh token per account) is modeled as a
// separately mutable record keyed by account id, so the concurrency-sensitive
// field stays isolated from the rest of the account data.
package account
