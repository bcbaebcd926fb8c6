package hash

import "golang.org/x/crypto/bcrypt"

// New hashes a secret (password or OTP code) with bcrypt at the default
// work factor (cost 10).
func New(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether secret matches hashed. An empty hash means the
// account has no such credential, which is a plain mismatch, not an error:
// a Google-only account attempting password sign-in lands here.
func Verify(secret, hashed string) bool {
	if hashed == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(secret)) == nil
}
