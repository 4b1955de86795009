package password

import (
	"crypto/rand"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost used for stored credentials
const DefaultCost = 12

// MinLength is the shortest password accepted on create
const MinLength = 8

// Hash hashes a password using bcrypt
func Hash(password string) (string, error) {
	return HashWithCost(password, DefaultCost)
}

// HashWithCost lets tests and seeders trade strength for speed
func HashWithCost(password string, cost int) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Verify compares a password with a hash
func Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Valid reports whether password meets the length rule
func Valid(password string) bool {
	return len(password) >= MinLength
}

// temporaryAlphabet leaves out characters that are easy to misread
const temporaryAlphabet = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Temporary returns a random password of n characters for first access
func Temporary(n int) (string, error) {
	if n < MinLength {
		n = MinLength
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = temporaryAlphabet[int(b)%len(temporaryAlphabet)]
	}
	return string(buf), nil
}
