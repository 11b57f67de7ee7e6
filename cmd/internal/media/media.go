package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotConfigured is returned by uploaders that have no backing storage.
var ErrNotConfigured = errors.New("media storage not configured")

// Uploader stores an object under key and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
}

// ObjectKey builds a date-partitioned storage key for a new object,
// e.g. "avatars/2026/08/29/<uuid>".
func ObjectKey(prefix string, now time.Time) string {
	return fmt.Sprintf("%s/%04d/%02d/%02d/%v", prefix, now.Year(), now.Month(), now.Day(), uuid.New())
}

// NoopUploader discards the payload and returns a synthetic noop:// URL.
// Used when object storage is disabled (local development, tests).
type NoopUploader struct{}

func (NoopUploader) Upload(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	if r != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	return "noop://" + strings.TrimLeft(key, "/"), nil
}
