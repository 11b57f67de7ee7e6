package media

import (
	"os"
	"strings"
)

// Config holds S3-compatible object storage settings.
type Config struct {
	Bucket        string
	Region        string
	BaseEndpoint  string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// LoadConfigFromEnv loads storage config from environment variables.
// An empty bucket means object storage is disabled.
func LoadConfigFromEnv() Config {
	return Config{
		Bucket:        strings.TrimSpace(os.Getenv("REEL_S3_BUCKET")),
		Region:        strings.TrimSpace(os.Getenv("REEL_S3_REGION")),
		BaseEndpoint:  strings.TrimSpace(os.Getenv("REEL_S3_ENDPOINT")),
		AccessKey:     strings.TrimSpace(os.Getenv("REEL_S3_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("REEL_S3_SECRET_KEY")),
		PublicBaseURL: strings.TrimSpace(os.Getenv("REEL_S3_PUBLIC_BASE_URL")),
	}
}

// Enabled reports whether the config points at a real bucket.
func (c Config) Enabled() bool {
	return c.Bucket != ""
}
