package auth

import (
	"strings"
	"testing"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("123456789")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "123456789" {
		t.Fatal("hash must not equal the plaintext")
	}

	if !CheckPassword("123456789", hash) {
		t.Error("expected correct password to verify")
	}
	if CheckPassword("wrong-password", hash) {
		t.Error("expected wrong password to fail verification")
	}
}

func TestCheckPassword_TruncatesAt72Bytes(t *testing.T) {
	long := strings.Repeat("a", 80)
	hash, err := HashPassword(long)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	// Everything beyond byte 72 is ignored, so a password differing only in
	// its tail still verifies.
	if !CheckPassword(strings.Repeat("a", 72)+"bbbbbbbb", hash) {
		t.Error("expected passwords identical in the first 72 bytes to verify")
	}
	if CheckPassword(strings.Repeat("b", 80), hash) {
		t.Error("expected password differing within 72 bytes to fail")
	}
}

func TestGenerateTempPassword(t *testing.T) {
	pw, err := GenerateTempPassword(0)
	if err != nil {
		t.Fatalf("GenerateTempPassword: %v", err)
	}
	if len(pw) != TempPasswordLength {
		t.Errorf("expected length %d, got %d", TempPasswordLength, len(pw))
	}
	for _, r := range pw {
		if !strings.ContainsRune(tempPasswordChars, r) {
			t.Errorf("unexpected character %q in temp password", r)
		}
	}

	other, err := GenerateTempPassword(0)
	if err != nil {
		t.Fatalf("GenerateTempPassword: %v", err)
	}
	if pw == other {
		t.Error("expected two generated passwords to differ")
	}
}

func TestGenerateResetToken(t *testing.T) {
	token, err := GenerateResetToken()
	if err != nil {
		t.Fatalf("GenerateResetToken: %v", err)
	}
	if len(token) < 40 {
		t.Errorf("expected at least 40 characters, got %d", len(token))
	}
	if strings.ContainsAny(token, "+/=") {
		t.Errorf("expected URL-safe token, got %q", token)
	}

	other, err := GenerateResetToken()
	if err != nil {
		t.Fatalf("GenerateResetToken: %v", err)
	}
	if token == other {
		t.Error("expected two generated tokens to differ")
	}
}
