package jwt

import (
	"testing"
	"time"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken(42, "admin", "secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := Parse(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != "featherlog" {
		t.Fatalf("unexpected issuer: %q", claims.Issuer)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken(1, "admin", "secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(token, "other"); err == nil {
		t.Fatal("expected signature mismatch error")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, err := GenerateToken(1, "admin", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(token, "secret"); err == nil {
		t.Fatal("expected expiry error")
	}
}
