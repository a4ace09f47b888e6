package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "2",
		"exp": exp.Unix(),
	}).SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, ok := TokenExpiry(signed)
	if !ok || !got.Equal(exp) {
		t.Fatalf("expected %v, got %v (ok=%v)", exp, got, ok)
	}
}

func TestTokenExpiry_Unreadable(t *testing.T) {
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "2"}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	for _, token := range []string{"", "opaque-token", noExp} {
		if _, ok := TokenExpiry(token); ok {
			t.Fatalf("%q: expected no expiry", token)
		}
	}
}
