package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, both token secrets MUST be at least 32 bytes and distinct.
	RequireStrongSecrets bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("REEL_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("REEL_LOG_LEVEL", "info"),
		LogFormat: EnvString("REEL_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("REEL_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("REEL_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("REEL_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("REEL_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("REEL_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("REEL_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("REEL_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("REEL_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("REEL_READINESS_REQUIRE_DB", false),

		RequireStrongSecrets: EnvBool("REEL_REQUIRE_STRONG_SECRETS", false),
	}
}
