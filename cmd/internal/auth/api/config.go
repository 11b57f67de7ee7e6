package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Config controls the auth API's transport behavior.
type Config struct {
	TrustProxy     bool
	MaxBodyBytes   int64
	MaxUploadBytes int64

	CookieEnabled  bool
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieSameSite http.SameSite
}

// LoadConfigFromEnv loads auth API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:     envBool("REEL_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:   envInt64("REEL_AUTH_MAX_BODY_BYTES", 1<<20),    // 1 MiB
		MaxUploadBytes: envInt64("REEL_MEDIA_MAX_UPLOAD_BYTES", 8<<20), // 8 MiB
		CookieEnabled:  envBool("REEL_AUTH_COOKIES", true),
		CookieDomain:   strings.TrimSpace(os.Getenv("REEL_AUTH_COOKIE_DOMAIN")),
		CookiePath:     "/",
		CookieSecure:   envBool("REEL_AUTH_COOKIE_SECURE", true),
		CookieSameSite: envSameSite("REEL_AUTH_COOKIE_SAMESITE", http.SameSiteLaxMode),
	}

	if v := strings.TrimSpace(os.Getenv("REEL_AUTH_COOKIE_PATH")); v != "" {
		cfg.CookiePath = v
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 8 << 20
	}

	return cfg
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envSameSite(key string, def http.SameSite) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "":
		return def
	case "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return def
	}
}
