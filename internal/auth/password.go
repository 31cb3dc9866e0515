package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword implements password_hash: a strong, salted hash suitable
// for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword implements password_verify: true if password matches
// hash, false on any mismatch or malformed hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
