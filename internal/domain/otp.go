package domain

// OTP purposes. Each purpose owns an independent (email, purpose) slot so a
// pending sign-in code never collides with a pending password-reset code.
const (
	PurposeSignIn        = "signin"
	PurposePasswordReset = "password_reset"
)

// OTPRecord is the live one-time-passcode slot for an (email, purpose) pair.
// PK: email, SK: purpose. Only the bcrypt hash of the code is stored.
// ExpiresAt is a Unix timestamp doubling as the DynamoDB TTL attribute.
type OTPRecord struct {
	Email     string `dynamodbav:"email"`
	Purpose   string `dynamodbav:"purpose"` // "signin" | "password_reset"
	CodeHash  string `dynamodbav:"code_hash"`
	Used      bool   `dynamodbav:"used"`
	ExpiresAt int64  `dynamodbav:"expires_at"` // TTL (Unix seconds)
	CreatedAt int64  `dynamodbav:"created_at"`
}
