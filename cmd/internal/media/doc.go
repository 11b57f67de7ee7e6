// Package media stores uploaded binary objects (avatars, cover images)
// and hands back the public URL to persist on the account record.
//
// The production backend is S3-compatible object storage; a no-op
// uploader exists for tests and storage-less deployments.
package media
