package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-auth-nosql/internal/domain"
)

// MessageEnvelope is the generic response wrapper. Every response carries
// success so clients can branch without inspecting status codes.
type MessageEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// AuthEnvelope wraps responses that return an account and a session token.
type AuthEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Account *domain.Account `json:"account,omitempty"`
	Token   string          `json:"token,omitempty"`
}

// GoogleEnvelope adds whether the callback created a new account.
type GoogleEnvelope struct {
	AuthEnvelope
	IsNewUser bool `json:"is_new_user"`
}

// OTPEnvelope wraps code-issuance responses.
type OTPEnvelope struct {
	Success          bool   `json:"success"`
	Message          string `json:"message,omitempty"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
}

// RateLimitEnvelope tells the client when it may retry.
type RateLimitEnvelope struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// CleanupEnvelope wraps the expired-OTP sweep response.
type CleanupEnvelope struct {
	Success      bool `json:"success"`
	DeletedCount int  `json:"deleted_count"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Success: false, Message: msg})
}

// httpError maps domain sentinel errors to HTTP status codes. Anything
// unrecognized is a 500 with a generic message so store and mailer
// diagnostics never reach the client.
func httpError(w http.ResponseWriter, err error) {
	var rle *domain.RateLimitError
	switch {
	case errors.As(err, &rle):
		retryAfter := int(rle.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, RateLimitEnvelope{
			Message:    "too many requests, please wait before retrying",
			RetryAfter: retryAfter,
		})
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
