package utils

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("password stored in the clear")
	}
	if !VerifyPassword(hash, "s3cret") {
		t.Error("correct password rejected")
	}
	if VerifyPassword(hash, "wrong") {
		t.Error("wrong password accepted")
	}
}

func TestHashPasswordClampsLowCost(t *testing.T) {
	// A cost below the bcrypt minimum must still produce a usable hash.
	hash, err := HashPassword("s3cret", 0)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword(hash, "s3cret") {
		t.Error("hash from clamped cost does not verify")
	}
}
