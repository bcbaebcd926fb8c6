package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-auth-nosql/internal/application/auth"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/infrastructure/google"
	"github.com/go-auth-nosql/internal/pkg/validate"
	"github.com/go-auth-nosql/internal/transport/http/middleware"
)

type googleVerifier interface {
	Verify(ctx context.Context, token string) (*google.Payload, error)
}

// GoogleHandler handles the Google sign-in callback and unlinking.
type GoogleHandler struct {
	svc      auth.Service
	verifier googleVerifier
}

func NewGoogleHandler(svc auth.Service, verifier googleVerifier) *GoogleHandler {
	return &GoogleHandler{svc: svc, verifier: verifier}
}

func (h *GoogleHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req domain.GoogleCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload, err := h.verifier.Verify(r.Context(), req.IDToken)
	if err != nil {
		httpError(w, err)
		return
	}
	if !payload.EmailVerified {
		writeError(w, http.StatusUnauthorized, "google account email is not verified")
		return
	}
	result, err := h.svc.CompleteGoogleSignIn(r.Context(), payload.Sub, payload.Email, payload.Name, payload.Picture)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GoogleEnvelope{
		AuthEnvelope: AuthEnvelope{
			Success: true,
			Account: result.Account,
			Token:   result.Token,
		},
		IsNewUser: result.IsNewUser,
	})
}

func (h *GoogleHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	a, err := h.svc.UnlinkGoogle(r.Context(), claims.AccountID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{Success: true, Message: "google account unlinked", Account: a})
}
