package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores everything past 72 bytes; truncate on both paths so hashing
// and verification agree on long inputs.
const bcryptMaxBytes = 72

// HashPassword generates a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	b := []byte(password)
	if len(b) > bcryptMaxBytes {
		b = b[:bcryptMaxBytes]
	}
	hashed, err := bcrypt.GenerateFromPassword(b, bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword compares a bcrypt hashed password with its possible plaintext
// equivalent. Returns true if the password and hash match.
func CheckPassword(password, hashedPassword string) bool {
	b := []byte(password)
	if len(b) > bcryptMaxBytes {
		b = b[:bcryptMaxBytes]
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), b) == nil
}

const tempPasswordChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// TempPasswordLength is the length of generated temporary passwords handed to
// patients created by a doctor.
const TempPasswordLength = 12

// GenerateTempPassword returns a random alphanumeric password of the given
// length (TempPasswordLength when n <= 0).
func GenerateTempPassword(n int) (string, error) {
	if n <= 0 {
		n = TempPasswordLength
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = tempPasswordChars[int(b)%len(tempPasswordChars)]
	}
	return string(buf), nil
}

// GenerateResetToken returns a URL-safe token for password reset links.
func GenerateResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
