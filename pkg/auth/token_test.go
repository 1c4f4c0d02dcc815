package auth

import (
	"errors"
	"testing"
	"time"

	"filevault/pkg/domain"
)

func newTestManager(t *testing.T, sessionTTL, purposeTTL time.Duration) *TokenManager {
	t.Helper()
	m, err := NewTokenManager("test-secret", sessionTTL, purposeTTL)
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	return m
}

func TestSessionTokenRoundTrip(t *testing.T) {
	m := newTestManager(t, time.Hour, time.Hour)
	token, err := m.SignSession("user-1", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("sign session: %v", err)
	}
	claims, err := m.VerifySession(token)
	if err != nil {
		t.Fatalf("verify session: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != domain.RoleAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifySessionRejectsExpired(t *testing.T) {
	m := newTestManager(t, -time.Minute, time.Hour)
	token, err := m.SignSession("user-1", domain.RoleUser)
	if err != nil {
		t.Fatalf("sign session: %v", err)
	}
	if _, err := m.VerifySession(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifySessionRejectsWrongSecret(t *testing.T) {
	m := newTestManager(t, time.Hour, time.Hour)
	other, err := NewTokenManager("other-secret", time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	token, err := other.SignSession("user-1", domain.RoleUser)
	if err != nil {
		t.Fatalf("sign session: %v", err)
	}
	if _, err := m.VerifySession(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := m.VerifySession("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestPurposeTokenRoundTrip(t *testing.T) {
	m := newTestManager(t, time.Hour, time.Hour)
	token, err := m.SignPurpose("u@gmail.com", "user-1", PurposeEmailVerify, "jti-1")
	if err != nil {
		t.Fatalf("sign purpose: %v", err)
	}
	claims, err := m.VerifyPurpose(token, PurposeEmailVerify)
	if err != nil {
		t.Fatalf("verify purpose: %v", err)
	}
	if claims.Email != "u@gmail.com" || claims.UserID != "user-1" || claims.ID != "jti-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyPurposeRejectsWrongPurpose(t *testing.T) {
	m := newTestManager(t, time.Hour, time.Hour)
	token, err := m.SignPurpose("u@gmail.com", "user-1", PurposePasswordReset, "jti-2")
	if err != nil {
		t.Fatalf("sign purpose: %v", err)
	}
	if _, err := m.VerifyPurpose(token, PurposeEmailVerify); !errors.Is(err, ErrWrongPurpose) {
		t.Fatalf("expected ErrWrongPurpose, got %v", err)
	}
}
