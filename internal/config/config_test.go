package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GIN_MODE", "debug")
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")
	t.Setenv("ACCESS_TOKEN_TTL", "")
	t.Setenv("REFRESH_TOKEN_TTL", "")
	t.Setenv("AUTH_REFRESH_ACCEPTS_ACCESS_TOKEN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.AccessTokenTTL != time.Hour {
		t.Fatalf("AccessTokenTTL = %v, want 1h", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Fatalf("RefreshTokenTTL = %v, want 168h", cfg.RefreshTokenTTL)
	}
	if cfg.RefreshAcceptsAccessToken {
		t.Fatal("RefreshAcceptsAccessToken should default to false")
	}
	if !cfg.EphemeralSecrets {
		t.Fatal("expected ephemeral secrets in debug mode without JWT secrets")
	}
	if len(cfg.JWTAccessSecret) < MinSecretLength || cfg.JWTAccessSecret == cfg.JWTRefreshSecret {
		t.Fatalf("unexpected generated secrets: %q / %q", cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GIN_MODE", "debug")
	t.Setenv("ACCESS_TOKEN_TTL", "15m")
	t.Setenv("REFRESH_TOKEN_TTL", "24h")
	t.Setenv("AUTH_REFRESH_ACCEPTS_ACCESS_TOKEN", "true")
	t.Setenv("JWT_ACCESS_SECRET", strings.Repeat("a", 32))
	t.Setenv("JWT_REFRESH_SECRET", strings.Repeat("r", 32))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.AccessTokenTTL != 15*time.Minute || cfg.RefreshTokenTTL != 24*time.Hour {
		t.Fatalf("unexpected ttls: %v / %v", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	}
	if !cfg.RefreshAcceptsAccessToken {
		t.Fatal("expected RefreshAcceptsAccessToken to be true")
	}
	if cfg.EphemeralSecrets {
		t.Fatal("secrets were provided, should not be ephemeral")
	}
}

func TestValidateReleaseRequiresSecrets(t *testing.T) {
	base := Config{
		GinMode:          "release",
		DatabaseURL:      "postgres://localhost/market",
		AccessTokenTTL:   time.Hour,
		RefreshTokenTTL:  7 * 24 * time.Hour,
		JWTAccessSecret:  strings.Repeat("a", 32),
		JWTRefreshSecret: strings.Repeat("r", 32),
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid release config rejected: %v", err)
	}

	short := base
	short.JWTAccessSecret = "short"
	if err := short.Validate(); err == nil {
		t.Fatal("expected error for short access secret")
	}

	same := base
	same.JWTRefreshSecret = same.JWTAccessSecret
	if err := same.Validate(); err == nil {
		t.Fatal("expected error when secrets are equal")
	}

	noDB := base
	noDB.DatabaseURL = ""
	if err := noDB.Validate(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestValidateTTLOrder(t *testing.T) {
	cfg := Config{GinMode: "debug", AccessTokenTTL: time.Hour, RefreshTokenTTL: time.Minute}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when refresh ttl is shorter than access ttl")
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: "http://a.test, http://b.test,,"}
	got := cfg.AllowedOrigins()
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Fatalf("unexpected origins: %#v", got)
	}
}
