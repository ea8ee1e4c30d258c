package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "s3cret!" || !strings.HasPrefix(hash, "$2a$") {
		t.Errorf("unexpected hash %q", hash)
	}

	if err := CheckPassword(hash, "s3cret!"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := CheckPassword(hash, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestNewIssuer_Validation(t *testing.T) {
	if _, err := NewIssuer("", 30*time.Minute); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := NewIssuer("secret", 0); err == nil {
		t.Error("expected error for zero ttl")
	}
}

func TestIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewIssuer("secret", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}
	now := time.Date(2024, 6, 12, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	userID := uuid.New()
	token, expires, err := issuer.Issue(userID)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !expires.Equal(now.Add(30 * time.Minute)) {
		t.Errorf("expires = %v", expires)
	}

	got, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got != userID {
		t.Errorf("Verify() = %s, want %s", got, userID)
	}
}

func TestIssuer_Verify_Rejects(t *testing.T) {
	issuer, _ := NewIssuer("secret", 30*time.Minute)
	now := time.Date(2024, 6, 12, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }
	valid, _, _ := issuer.Issue(uuid.New())

	other, _ := NewIssuer("another-secret", 30*time.Minute)
	other.now = issuer.now
	foreign, _, _ := other.Issue(uuid.New())

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: uuid.NewString()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
		at    time.Time
	}{
		{"expired", valid, now.Add(31 * time.Minute)},
		{"wrong secret", foreign, now},
		{"unsigned", none, now},
		{"garbage", "not.a.token", now},
		{"empty", "", now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := tt.at
			issuer.now = func() time.Time { return at }
			if _, err := issuer.Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}
