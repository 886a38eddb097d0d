package auth

import (
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret", 0, 0)
	token, err := issuer.AccessToken("64b1f0c2a1b2c3d4e5f60001", []string{"user", "admin"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := issuer.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "64b1f0c2a1b2c3d4e5f60001" {
		t.Fatalf("subject = %s", claims.Subject)
	}
	if len(claims.Roles) != 2 || claims.Roles[1] != "admin" {
		t.Fatalf("roles = %v", claims.Roles)
	}

	other := NewIssuer("wrong-secret", 0, 0)
	if _, err := other.ParseAccessToken(token); err == nil {
		t.Fatal("expected parse failure with wrong secret")
	}
}

func TestIssuer_ConfiguredTTLs(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Minute, time.Hour)

	token, err := issuer.AccessToken("64b1f0c2a1b2c3d4e5f60001", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := issuer.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("access token ttl = %v, want at most 1m", ttl)
	}

	refresh, expiresAt := issuer.RefreshToken()
	if refresh == "" {
		t.Fatal("empty refresh token")
	}
	refreshTTL := time.Until(expiresAt)
	if refreshTTL <= time.Hour-time.Minute || refreshTTL > time.Hour {
		t.Fatalf("refresh token ttl = %v, want about 1h", refreshTTL)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword("s3cret", hash) {
		t.Fatal("correct password rejected")
	}
	if CheckPassword("wrong", hash) {
		t.Fatal("wrong password accepted")
	}
}
