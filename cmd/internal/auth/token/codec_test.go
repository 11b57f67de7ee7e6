package token

import (
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		AccessSecret:  []byte("access-secret-for-tests-0123456789ab"),
		RefreshSecret: []byte("refresh-secret-for-tests-0123456789a"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}
}

func mustCodec(t *testing.T, cfg Config, opts ...Option) *Codec {
	t.Helper()
	c, err := NewCodec(cfg, opts...)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestNewCodec_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty access secret", mutate: func(c *Config) { c.AccessSecret = nil }},
		{name: "empty refresh secret", mutate: func(c *Config) { c.RefreshSecret = nil }},
		{name: "zero access ttl", mutate: func(c *Config) { c.AccessTTL = 0 }},
		{name: "negative refresh ttl", mutate: func(c *Config) { c.RefreshTTL = -time.Hour }},
		{name: "excessive skew", mutate: func(c *Config) { c.ClockSkew = 10 * time.Minute }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tc.mutate(&cfg)
			if _, err := NewCodec(cfg); !errors.Is(err, ErrConfig) {
				t.Fatalf("err=%v want=%v", err, ErrConfig)
			}
		})
	}
}

func TestAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()

	c := mustCodec(t, testConfig())

	id := Identity{ID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Email: "bob@example.com", Username: "bob", FullName: "Bob B"}
	signed, exp, err := c.IssueAccess(id)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expiry in the past: %v", exp)
	}

	claims, err := c.VerifyAccess(signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.ID != id.ID || claims.Email != id.Email || claims.Username != id.Username || claims.FullName != id.FullName {
		t.Fatalf("claims=%+v want identity %+v", claims, id)
	}
}

func TestRefreshToken_RoundTrip(t *testing.T) {
	t.Parallel()

	c := mustCodec(t, testConfig())

	signed, _, err := c.IssueRefresh("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := c.VerifyRefresh(signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.ID != "01ARZ3NDEKTSV4RRFFQ69G5FAV" {
		t.Fatalf("claims.ID=%q", claims.ID)
	}
}

func TestVerify_ExpiryBoundary(t *testing.T) {
	t.Parallel()

	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := issuedAt

	c := mustCodec(t, testConfig(), WithClock(func() time.Time { return clock }))

	signed, exp, err := c.IssueAccess(Identity{ID: "acct-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// One second before expiry: still valid.
	clock = exp.Add(-time.Second)
	if _, err := c.VerifyAccess(signed); err != nil {
		t.Fatalf("just before expiry: %v", err)
	}

	// One second past expiry: expired.
	clock = exp.Add(time.Second)
	if _, err := c.VerifyAccess(signed); !errors.Is(err, ErrExpired) {
		t.Fatalf("past expiry: err=%v want=%v", err, ErrExpired)
	}
}

func TestVerify_ClockSkewLeeway(t *testing.T) {
	t.Parallel()

	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := issuedAt

	cfg := testConfig()
	cfg.ClockSkew = 30 * time.Second
	c := mustCodec(t, cfg, WithClock(func() time.Time { return clock }))

	signed, exp, err := c.IssueAccess(Identity{ID: "acct-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Inside the leeway window past expiry: tolerated.
	clock = exp.Add(10 * time.Second)
	if _, err := c.VerifyAccess(signed); err != nil {
		t.Fatalf("within skew: %v", err)
	}

	// Beyond the leeway window: expired.
	clock = exp.Add(time.Minute)
	if _, err := c.VerifyAccess(signed); !errors.Is(err, ErrExpired) {
		t.Fatalf("beyond skew: err=%v want=%v", err, ErrExpired)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	c1 := mustCodec(t, testConfig())

	other := testConfig()
	other.AccessSecret = []byte("a-completely-different-secret-value!")
	c2 := mustCodec(t, other)

	signed, _, err := c1.IssueAccess(Identity{ID: "acct-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := c2.VerifyAccess(signed); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("wrong secret: err=%v want=%v", err, ErrSignatureInvalid)
	}
}

func TestVerify_CrossKindRejected(t *testing.T) {
	t.Parallel()

	c := mustCodec(t, testConfig())

	// A refresh token must not verify as an access token, and vice versa.
	refresh, _, err := c.IssueRefresh("acct-1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if _, err := c.VerifyAccess(refresh); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("refresh as access: err=%v want=%v", err, ErrSignatureInvalid)
	}

	access, _, err := c.IssueAccess(Identity{ID: "acct-1"})
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	if _, err := c.VerifyRefresh(access); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("access as refresh: err=%v want=%v", err, ErrSignatureInvalid)
	}
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()

	c := mustCodec(t, testConfig())

	for _, in := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		if _, err := c.VerifyAccess(in); !errors.Is(err, ErrMalformed) {
			t.Fatalf("VerifyAccess(%q): err=%v want=%v", in, err, ErrMalformed)
		}
	}
}

func TestVerify_ExpiredWithWrongSecretReportsSignature(t *testing.T) {
	t.Parallel()

	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := issuedAt

	c1 := mustCodec(t, testConfig(), WithClock(func() time.Time { return clock }))

	other := testConfig()
	other.AccessSecret = []byte("a-completely-different-secret-value!")
	c2 := mustCodec(t, other, WithClock(func() time.Time { return clock }))

	signed, exp, err := c1.IssueAccess(Identity{ID: "acct-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Token is both expired and signed with the wrong key for c2: the
	// signature failure must win.
	clock = exp.Add(time.Hour)
	if _, err := c2.VerifyAccess(signed); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("err=%v want=%v", err, ErrSignatureInvalid)
	}
}
