package auth

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "correct horse" {
		t.Fatal("hash must not equal plaintext")
	}
	if !CheckPassword("correct horse", hash) {
		t.Fatal("expected matching password to verify")
	}
	if CheckPassword("wrong", hash) {
		t.Fatal("expected mismatched password to fail")
	}
}

func TestCheckPasswordRejectsGarbageHash(t *testing.T) {
	if CheckPassword("anything", "not-a-bcrypt-hash") {
		t.Fatal("expected garbage hash to fail verification")
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("short"); err == nil {
		t.Fatal("expected short password to be rejected")
	}
	if err := ValidatePassword("longenough"); err != nil {
		t.Fatalf("expected valid password, got %v", err)
	}
}
