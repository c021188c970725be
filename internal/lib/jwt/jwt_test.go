package jwt

import (
	"testing"
	"time"
)

func TestAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()

	tok, err := NewAccessToken("user-123", "super-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewAccessToken error: %v", err)
	}

	userID, err := ParseAccessToken(tok, "super-secret")
	if err != nil {
		t.Fatalf("ParseAccessToken error: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("subject mismatch: got %q want %q", userID, "user-123")
	}
}

func TestParseAccessToken_Expired(t *testing.T) {
	t.Parallel()

	tok, err := NewAccessToken("u1", "secret", -time.Second)
	if err != nil {
		t.Fatalf("NewAccessToken error: %v", err)
	}

	if _, err := ParseAccessToken(tok, "secret"); err == nil {
		t.Fatalf("expected error for expired token, got nil")
	}
}

func TestParseAccessToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewAccessToken("u2", "right-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewAccessToken error: %v", err)
	}

	if _, err := ParseAccessToken(tok, "wrong-secret"); err == nil {
		t.Fatalf("expected error for wrong secret, got nil")
	}
}

func TestParseAccessToken_Garbage(t *testing.T) {
	t.Parallel()

	if _, err := ParseAccessToken("not-a-token", "secret"); err == nil {
		t.Fatalf("expected error for malformed token, got nil")
	}
}

func TestNewOpaqueToken(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		tok, err := NewOpaqueToken()
		if err != nil {
			t.Fatalf("NewOpaqueToken error: %v", err)
		}
		if len(tok) != 64 {
			t.Fatalf("token length: got %d want 64", len(tok))
		}
		if seen[tok] {
			t.Fatalf("duplicate token generated: %s", tok)
		}
		seen[tok] = true
	}
}
