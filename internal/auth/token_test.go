package auth

import (
	"testing"
	"time"
)

func TestIssueAndValidateSessionToken(t *testing.T) {
	token, err := IssueToken("secret", "user-1", "a@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	claims, err := ValidateSessionToken(token, "secret")
	if err != nil {
		t.Fatalf("ValidateSessionToken: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "a@example.com" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestValidateSessionTokenRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken("secret", "user-1", "a@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := ValidateSessionToken(token, "other"); err == nil {
		t.Error("expected signature error")
	}
}

func TestIssueTokenWithoutExpiry(t *testing.T) {
	token, err := IssueToken("secret", "user-1", "a@example.com", 0)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := ValidateSessionToken(token, "secret")
	if err != nil {
		t.Fatalf("token without expiry rejected: %v", err)
	}
	if claims.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want nil", claims.ExpiresAt)
	}
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	if _, err := IssueToken("", "user-1", "", time.Hour); err != ErrMissingSecret {
		t.Errorf("got %v, want ErrMissingSecret", err)
	}
}
