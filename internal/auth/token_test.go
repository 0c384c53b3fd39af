package auth

import (
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("test-secret")
	claims := Claims{
		Sub:   "usr_1",
		Name:  "María Gómez",
		Email: "maria@pitpc.local",
		Role:  "LIDER",
		JTI:   "jti_1",
		Exp:   time.Now().Add(time.Hour).Unix(),
	}

	token, err := IssueToken(secret, claims)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	parsed, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.Role != claims.Role || parsed.Email != claims.Email {
		t.Fatalf("claims mismatch: %+v", parsed)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken([]byte("secret-a"), Claims{
		Sub: "usr_1", JTI: "jti_1", Exp: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := ParseToken([]byte("secret-b"), token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := IssueToken([]byte("secret"), Claims{
		Sub: "usr_1", JTI: "jti_1", Exp: time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := ParseToken([]byte("secret"), token); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"", "a", "a.b.c", "%%%.%%%"} {
		if _, err := ParseToken([]byte("secret"), token); err != ErrInvalidToken {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}
