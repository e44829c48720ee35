package server

import (
	"errors"
	"testing"
	"time"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	ti := NewTokenIssuer("secret", time.Minute)
	token, err := ti.Issue(42)
	if err != nil {
		t.Fatal(err)
	}
	id, err := ti.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
}

func TestSessionTokenRejectsTampering(t *testing.T) {
	ti := NewTokenIssuer("", time.Minute)
	token, err := ti.Issue(7)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ti.Verify(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token: err = %v", err)
	}
	if _, err := ti.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: err = %v", err)
	}
}

func TestSessionTokenRejectsOtherSecret(t *testing.T) {
	token, err := NewTokenIssuer("first", time.Minute).Issue(3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTokenIssuer("second", time.Minute).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v", err)
	}
	// 随机密钥互不相同
	if _, err := NewTokenIssuer("", time.Minute).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("random key accepted foreign token: %v", err)
	}
}

func TestSessionTokenExpires(t *testing.T) {
	ti := NewTokenIssuer("secret", time.Minute)
	base := time.Unix(1_700_000_000, 0)
	ti.now = func() time.Time { return base }
	token, err := ti.Issue(5)
	if err != nil {
		t.Fatal(err)
	}
	ti.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := ti.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: err = %v", err)
	}
}
