package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 16
	keySize    = 32
	iterations = 100000
)

// GenerateSalt generates a random salt
func GenerateSalt() (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// HashPassword hashes a password with a salt using PBKDF2
func HashPassword(password, salt string) string {
	saltBytes, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		// Should never happen with salts produced by GenerateSalt
		return ""
	}
	hash := pbkdf2.Key([]byte(password), saltBytes, iterations, keySize, sha256.New)
	return base64.StdEncoding.EncodeToString(hash)
}

// VerifyPassword verifies a password against a hash using constant-time comparison
func VerifyPassword(password, salt, hash string) bool {
	computedHash := HashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(computedHash), []byte(hash)) == 1
}
