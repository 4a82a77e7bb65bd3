package auth

import (
	"errors"
	"testing"
	"time"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	c := NewCodec("test-secret")

	tok, err := c.Sign(KindAccess, "user-1", map[string]any{"device_id": "dev-1"}, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	cl, err := c.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if cl.Subject != "user-1" {
		t.Errorf("subject = %q, want user-1", cl.Subject)
	}
	if cl.Kind != KindAccess {
		t.Errorf("kind = %q, want access", cl.Kind)
	}
	if cl.DeviceID != "dev-1" {
		t.Errorf("device id = %q, want dev-1", cl.DeviceID)
	}
	if cl.JTI == "" {
		t.Error("jti is empty")
	}
	if cl.IssuedAt.IsZero() || cl.NotBefore.IsZero() {
		t.Error("iat/nbf not set")
	}
}

func TestSignExpiryIsNbfPlusTTL(t *testing.T) {
	c := NewCodec("test-secret")

	for _, ttl := range []time.Duration{time.Second, time.Minute, 24 * time.Hour} {
		tok, err := c.Sign(KindRefresh, "user-1", nil, ttl)
		if err != nil {
			t.Fatalf("Sign(ttl=%s): %v", ttl, err)
		}
		cl, err := c.Verify(tok)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if got := cl.ExpiresAt.Sub(cl.NotBefore); got != ttl {
			t.Errorf("ttl=%s: exp-nbf = %s", ttl, got)
		}
	}
}

func TestSignZeroTTLOmitsExpiry(t *testing.T) {
	c := NewCodec("test-secret")

	tok, err := c.Sign(KindAccess, "user-1", nil, 0)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	cl, err := c.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !cl.ExpiresAt.IsZero() {
		t.Errorf("exp = %v, want zero", cl.ExpiresAt)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, err := NewCodec("secret-a").Sign(KindAccess, "user-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := NewCodec("secret-b").Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	c := NewCodec("test-secret")
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := c.Verify(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%q) err = %v, want ErrInvalidToken", tok, err)
		}
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	c := NewCodec("test-secret")

	// Push nbf into the past so exp lands before now.
	past := time.Now().UTC().Add(-time.Hour).Unix()
	tok, err := c.Sign(KindAccess, "user-1", map[string]any{"nbf": past, "iat": past}, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := c.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyIgnoreExpiryAcceptsExpired(t *testing.T) {
	c := NewCodec("test-secret")

	past := time.Now().UTC().Add(-time.Hour).Unix()
	tok, err := c.Sign(KindAccess, "user-1", map[string]any{"nbf": past, "iat": past, "device_id": "dev-1"}, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	cl, err := c.VerifyIgnoreExpiry(tok)
	if err != nil {
		t.Fatalf("VerifyIgnoreExpiry: %v", err)
	}
	if cl.Subject != "user-1" || cl.DeviceID != "dev-1" {
		t.Errorf("claims = %+v", cl)
	}

	// The signature is still enforced.
	if _, err := NewCodec("other").VerifyIgnoreExpiry(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret err = %v, want ErrInvalidToken", err)
	}
}

func TestDecodeUnsafeReadsBackOwnTokens(t *testing.T) {
	c := NewCodec("test-secret")

	tok, err := c.Sign(KindRefresh, "user-1", map[string]any{"device_id": "dev-1"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	cl, err := c.DecodeUnsafe(tok)
	if err != nil {
		t.Fatalf("DecodeUnsafe: %v", err)
	}
	verified, err := c.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if cl != verified {
		t.Errorf("DecodeUnsafe = %+v, Verify = %+v", cl, verified)
	}
}

func TestSignGeneratesUniqueJTI(t *testing.T) {
	c := NewCodec("test-secret")

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		tok, err := c.Sign(KindAccess, "user-1", nil, time.Minute)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		cl, err := c.DecodeUnsafe(tok)
		if err != nil {
			t.Fatalf("DecodeUnsafe: %v", err)
		}
		if seen[cl.JTI] {
			t.Fatalf("duplicate jti %s", cl.JTI)
		}
		seen[cl.JTI] = true
	}
}
