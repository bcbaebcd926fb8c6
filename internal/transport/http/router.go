package http

import (
	"net/http"

	"github.com/go-auth-nosql/internal/application/account"
	"github.com/go-auth-nosql/internal/application/auth"
	"github.com/go-auth-nosql/internal/application/otp"
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/transport/http/handler"
	appmiddleware "github.com/go-auth-nosql/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.JWTProvider)

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	directory := account.NewDirectory(deps.AccountRepo)
	otpMgr := otp.NewManager(deps.OTPRepo, cfg.OTPTTL, cfg.OTPResendCooldown)
	authSvc := auth.NewService(auth.ServiceDeps{
		Directory: directory,
		OTPs:      otpMgr,
		Tokens:    deps.JWTProvider,
		Mailer:    deps.Mailer,
		SMSSender: deps.SMSSender,
		Avatars:   deps.AvatarStore,
	})

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc)
	otpH := handler.NewOTPHandler(authSvc)
	googleH := handler.NewGoogleHandler(authSvc, deps.GoogleVerifier)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check", healthH.Ping)

		r.With(sensitiveRL.Limit).Post("/signup", authH.SignUp)
		r.With(sensitiveRL.Limit).Post("/signin", authH.SignIn)
		r.With(sensitiveRL.Limit).Post("/send-otp", otpH.Send)
		r.With(sensitiveRL.Limit).Post("/verify-otp", otpH.VerifyAndSignIn)
		r.With(sensitiveRL.Limit).Post("/request-password-reset", otpH.RequestPasswordReset)
		r.With(sensitiveRL.Limit).Post("/verify-reset-otp", otpH.VerifyResetOTP)
		r.With(sensitiveRL.Limit).Post("/reset-password", otpH.ResetPassword)
		r.With(sensitiveRL.Limit).Post("/google-callback", googleH.Callback)
		r.With(sensitiveRL.Limit).Post("/cleanup-otps", otpH.Cleanup)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/me", authH.Me)
			r.Get("/verify-token", authH.Me)
			r.Post("/refresh-token", authH.Refresh)
			r.Post("/me/avatar", authH.UploadAvatar)
			r.Post("/unlink-google", googleH.Unlink)
		})
	})

	return r
}
