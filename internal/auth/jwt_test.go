package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("secret", "makesta", 0)
	tok, err := iss.Issue(42, "alice", RoleParticipant)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if d := time.Until(tok.ExpiresAt); d < 23*time.Hour || d > 24*time.Hour {
		t.Fatalf("expected ~24h expiry, got %s", d)
	}

	claims, err := iss.Parse(tok.Value)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "alice" || claims.Role != RoleParticipant {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	iss := NewIssuer("secret", "makesta", time.Hour)
	issuedAt := time.Now().Add(-2 * time.Hour)
	iss.now = func() time.Time { return issuedAt }
	tok, err := iss.Issue(1, "bob", RoleOrganizer)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	iss.now = time.Now
	if _, err := iss.Parse(tok.Value); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsWrongKeyAndIssuer(t *testing.T) {
	tok, err := NewIssuer("secret", "makesta", 0).Issue(1, "bob", RoleOrganizer)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewIssuer("rotated", "makesta", 0).Parse(tok.Value); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("rotated key: expected ErrInvalidToken, got %v", err)
	}
	if _, err := NewIssuer("secret", "someone-else", 0).Parse(tok.Value); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("issuer mismatch: expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsMalformedAndNone(t *testing.T) {
	iss := NewIssuer("secret", "makesta", 0)
	for _, raw := range []string{"", "abc", "a.b.c", strings.Repeat("x", 64)} {
		if _, err := iss.Parse(raw); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%q: expected ErrInvalidToken, got %v", raw, err)
		}
	}

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID: 1, Username: "mallory", Role: RoleOrganizer,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "makesta",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := iss.Parse(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("alg none: expected ErrInvalidToken, got %v", err)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("rahasia123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "rahasia123" {
		t.Fatalf("hash must not equal plaintext")
	}
	if !VerifyPassword("rahasia123", hash) {
		t.Fatalf("expected match")
	}
	if VerifyPassword("wrong", hash) || VerifyPassword("rahasia123", "not-a-hash") {
		t.Fatalf("expected mismatch")
	}
}
