package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-auth-nosql/internal/application/auth"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/infrastructure/google"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
	"github.com/go-auth-nosql/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockAuthSvc struct{ mock.Mock }

func (m *mockAuthSvc) SignUp(ctx context.Context, req domain.SignUpRequest) (*auth.AuthResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*auth.AuthResult)
	return r, args.Error(1)
}
func (m *mockAuthSvc) SignIn(ctx context.Context, req domain.SignInRequest) (*auth.AuthResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*auth.AuthResult)
	return r, args.Error(1)
}
func (m *mockAuthSvc) RequestOTP(ctx context.Context, req domain.SendOTPRequest) (*auth.OTPIssueResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*auth.OTPIssueResult)
	return r, args.Error(1)
}
func (m *mockAuthSvc) VerifyOTPAndSignIn(ctx context.Context, req domain.VerifyOTPRequest) (*auth.AuthResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*auth.AuthResult)
	return r, args.Error(1)
}
func (m *mockAuthSvc) VerifyResetOTP(ctx context.Context, req domain.VerifyOTPRequest) error {
	return m.Called(ctx, req).Error(0)
}
func (m *mockAuthSvc) ResetPassword(ctx context.Context, req domain.ResetPasswordRequest) (*auth.AuthResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*auth.AuthResult)
	return r, args.Error(1)
}
func (m *mockAuthSvc) CompleteGoogleSignIn(ctx context.Context, googleID, email, fullName, picture string) (*auth.GoogleResult, error) {
	args := m.Called(ctx, googleID, email, fullName, picture)
	r, _ := args.Get(0).(*auth.GoogleResult)
	return r, args.Error(1)
}
func (m *mockAuthSvc) UnlinkGoogle(ctx context.Context, accountID string) (*domain.Account, error) {
	args := m.Called(ctx, accountID)
	a, _ := args.Get(0).(*domain.Account)
	return a, args.Error(1)
}
func (m *mockAuthSvc) Refresh(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}
func (m *mockAuthSvc) Me(ctx context.Context, accountID string) (*domain.Account, error) {
	args := m.Called(ctx, accountID)
	a, _ := args.Get(0).(*domain.Account)
	return a, args.Error(1)
}
func (m *mockAuthSvc) SetAvatar(ctx context.Context, accountID string, r io.Reader, contentType string) (*domain.Account, error) {
	args := m.Called(ctx, accountID, r, contentType)
	a, _ := args.Get(0).(*domain.Account)
	return a, args.Error(1)
}
func (m *mockAuthSvc) CleanupOTPs(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) Verify(ctx context.Context, token string) (*google.Payload, error) {
	args := m.Called(ctx, token)
	p, _ := args.Get(0).(*google.Payload)
	return p, args.Error(1)
}

// --- helpers ---

func newTestJWTProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	p, err := jwtinfra.NewProvider("handler-test-secret", 24*time.Hour)
	require.NoError(t, err)
	return p
}

func jsonReq(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return httptest.NewRequest(method, target, bytes.NewReader(b))
}

// serveAuthed wraps the handler with middleware.Auth before serving.
func serveAuthed(t *testing.T, p *jwtinfra.Provider, h http.HandlerFunc, r *http.Request, accountID string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := p.Sign(accountID, "a@example.com")
	require.NoError(t, err)
	r.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	middleware.Auth(p)(h).ServeHTTP(rr, r)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

// --- SignUp ---

func TestSignUp_InvalidBody(t *testing.T) {
	h := NewAuthHandler(&mockAuthSvc{})
	r := httptest.NewRequest(http.MethodPost, "/v1/auth/signup", bytes.NewBufferString("not-json"))
	rr := httptest.NewRecorder()
	h.SignUp(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSignUp_ShortPassword(t *testing.T) {
	h := NewAuthHandler(&mockAuthSvc{})
	r := jsonReq(t, http.MethodPost, "/v1/auth/signup", map[string]string{
		"email": "a@example.com", "password": "short",
	})
	rr := httptest.NewRecorder()
	h.SignUp(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSignUp_Created(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("SignUp", mock.Anything, mock.AnythingOfType("domain.SignUpRequest")).Return(&auth.AuthResult{
		Account: &domain.Account{AccountID: "acc_1", Email: "a@example.com"},
		Token:   "tok",
	}, nil)

	h := NewAuthHandler(svc)
	r := jsonReq(t, http.MethodPost, "/v1/auth/signup", map[string]string{
		"email": "a@example.com", "password": "hunter22",
	})
	rr := httptest.NewRecorder()
	h.SignUp(rr, r)

	assert.Equal(t, http.StatusCreated, rr.Code)
	out := decodeEnvelope(t, rr)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "tok", out["token"])
}

func TestSignUp_DuplicateEmail_Conflict(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("SignUp", mock.Anything, mock.Anything).Return(nil, domain.ErrConflict)

	h := NewAuthHandler(svc)
	r := jsonReq(t, http.MethodPost, "/v1/auth/signup", map[string]string{
		"email": "a@example.com", "password": "hunter22",
	})
	rr := httptest.NewRecorder()
	h.SignUp(rr, r)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

// --- SignIn ---

func TestSignIn_BadCredentials_Unauthorized(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("SignIn", mock.Anything, mock.Anything).Return(nil, domain.ErrUnauthorized)

	h := NewAuthHandler(svc)
	r := jsonReq(t, http.MethodPost, "/v1/auth/signin", map[string]string{
		"email": "a@example.com", "password": "wrong-password",
	})
	rr := httptest.NewRecorder()
	h.SignIn(rr, r)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	out := decodeEnvelope(t, rr)
	assert.Equal(t, false, out["success"])
}

// --- OTP ---

func TestSendOTP_RateLimited_SetsRetryAfter(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("RequestOTP", mock.Anything, mock.Anything).
		Return(nil, &domain.RateLimitError{RetryAfter: 42 * time.Second})

	h := NewOTPHandler(svc)
	r := jsonReq(t, http.MethodPost, "/v1/auth/otp/send", map[string]string{
		"email": "a@example.com",
	})
	rr := httptest.NewRecorder()
	h.Send(rr, r)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "42", rr.Header().Get("Retry-After"))
	out := decodeEnvelope(t, rr)
	assert.Equal(t, float64(42), out["retry_after"])
}

func TestSendOTP_ReportsExpiry(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("RequestOTP", mock.Anything, mock.Anything).
		Return(&auth.OTPIssueResult{ExpiresInMinutes: 10}, nil)

	h := NewOTPHandler(svc)
	r := jsonReq(t, http.MethodPost, "/v1/auth/otp/send", map[string]string{
		"email": "a@example.com",
	})
	rr := httptest.NewRecorder()
	h.Send(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	out := decodeEnvelope(t, rr)
	assert.Equal(t, float64(10), out["expires_in_minutes"])
}

func TestVerifyOTP_NonNumericCode_BadRequest(t *testing.T) {
	h := NewOTPHandler(&mockAuthSvc{})
	r := jsonReq(t, http.MethodPost, "/v1/auth/otp/verify", map[string]string{
		"email": "a@example.com", "otp": "abcdef",
	})
	rr := httptest.NewRecorder()
	h.VerifyAndSignIn(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// --- Password reset ---

func TestRequestPasswordReset_AlwaysGenericMessage(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("RequestOTP", mock.Anything, mock.MatchedBy(func(req domain.SendOTPRequest) bool {
		return req.Purpose == domain.PurposePasswordReset
	})).Return(&auth.OTPIssueResult{ExpiresInMinutes: 10}, nil)

	h := NewOTPHandler(svc)
	r := jsonReq(t, http.MethodPost, "/v1/auth/password-reset/request", map[string]string{
		"email": "whoever@example.com",
	})
	rr := httptest.NewRecorder()
	h.RequestPasswordReset(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	out := decodeEnvelope(t, rr)
	assert.Contains(t, out["message"], "if an account exists")
}

// --- Google ---

func TestGoogleCallback_UnverifiedEmail_Unauthorized(t *testing.T) {
	svc := &mockAuthSvc{}
	verifier := &mockVerifier{}
	verifier.On("Verify", mock.Anything, "id-token").Return(&google.Payload{
		Sub: "g1", Email: "a@example.com", EmailVerified: false,
	}, nil)

	h := NewGoogleHandler(svc, verifier)
	r := jsonReq(t, http.MethodPost, "/v1/auth/google/callback", map[string]string{
		"id_token": "id-token",
	})
	rr := httptest.NewRecorder()
	h.Callback(rr, r)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	svc.AssertNotCalled(t, "CompleteGoogleSignIn", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGoogleCallback_NewUser(t *testing.T) {
	svc := &mockAuthSvc{}
	verifier := &mockVerifier{}
	verifier.On("Verify", mock.Anything, "id-token").Return(&google.Payload{
		Sub: "g1", Email: "a@example.com", EmailVerified: true, Name: "Ada",
	}, nil)
	svc.On("CompleteGoogleSignIn", mock.Anything, "g1", "a@example.com", "Ada", "").Return(&auth.GoogleResult{
		AuthResult: auth.AuthResult{
			Account: &domain.Account{AccountID: "acc_1", Email: "a@example.com"},
			Token:   "tok",
		},
		IsNewUser: true,
	}, nil)

	h := NewGoogleHandler(svc, verifier)
	r := jsonReq(t, http.MethodPost, "/v1/auth/google/callback", map[string]string{
		"id_token": "id-token",
	})
	rr := httptest.NewRecorder()
	h.Callback(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	out := decodeEnvelope(t, rr)
	assert.Equal(t, true, out["is_new_user"])
}

// --- Me / avatar ---

func TestMe_WithValidToken(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockAuthSvc{}
	svc.On("Me", mock.Anything, "acc_1").Return(&domain.Account{
		AccountID: "acc_1", Email: "a@example.com",
	}, nil)

	h := NewAuthHandler(svc)
	r := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	rr := serveAuthed(t, p, h.Me, r, "acc_1")

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestUploadAvatar_NonImage_BadRequest(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockAuthSvc{}

	h := NewAuthHandler(svc)
	r := httptest.NewRequest(http.MethodPost, "/v1/me/avatar", bytes.NewBufferString("data"))
	r.Header.Set("Content-Type", "application/json")
	rr := serveAuthed(t, p, h.UploadAvatar, r, "acc_1")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "SetAvatar", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
