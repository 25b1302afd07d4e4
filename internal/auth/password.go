package auth

import "golang.org/x/crypto/bcrypt"

// hashCost bounds brute-force speed while keeping interactive sign-in fast.
const hashCost = 10

// HashPassword one-way transforms a plaintext password for storage.
// The plaintext is never persisted or logged.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword reports whether password matches the stored hash.
// bcrypt's comparison does not leak prefix-match timing.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
