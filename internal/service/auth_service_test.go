package service

import (
	"errors"
	"testing"
	"time"
)

func TestAuthServiceLoginAndVerify(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	svc, err := NewAuthService(AuthConfig{PasswordHash: hash, JWTSecret: "s3cret", TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	if !svc.Enabled() {
		t.Fatal("expected auth to be enabled")
	}

	if _, _, err := svc.Login("wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	token, expiresAt, err := svc.Login("correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}
	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != operatorSubject {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}

	if _, err := svc.Verify(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected tampered token to fail, got %v", err)
	}

	other, err := NewAuthService(AuthConfig{PasswordHash: hash, JWTSecret: "another"})
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token from another secret to fail, got %v", err)
	}
}

func TestAuthServiceExpiredToken(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	svc, err := NewAuthService(AuthConfig{PasswordHash: hash, JWTSecret: "k", TokenTTL: time.Minute})
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	impl := svc.(*authService)
	issued := time.Now().Add(-2 * time.Hour)
	impl.now = func() time.Time { return issued }
	token, _, err := svc.Login("correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	impl.now = time.Now
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestAuthServiceDisabled(t *testing.T) {
	svc, err := NewAuthService(AuthConfig{})
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	if svc.Enabled() {
		t.Fatal("expected auth to be disabled without a password hash")
	}
	if _, _, err := svc.Login("anything"); !errors.Is(err, ErrAuthDisabled) {
		t.Fatalf("expected ErrAuthDisabled, got %v", err)
	}
	if _, err := NewAuthService(AuthConfig{PasswordHash: "not-a-hash"}); err == nil {
		t.Fatal("expected malformed hash to be rejected")
	}
	if _, err := HashPassword("short"); err == nil {
		t.Fatal("expected short password to be rejected")
	}
}
