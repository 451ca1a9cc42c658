package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ivankudzin/authgate/internal/config"
	authsvc "github.com/ivankudzin/authgate/internal/services/auth"
	ratesvc "github.com/ivankudzin/authgate/internal/services/rate"
	"github.com/ivankudzin/authgate/internal/transport/http/cookies"
	"github.com/ivankudzin/authgate/internal/transport/http/handlers"
)

type Dependencies struct {
	AuthService  *authsvc.Service
	LoginLimiter *ratesvc.Limiter
	Logger       *zap.Logger
	Config       config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	cookieOpts := cookies.Options{Secure: deps.Config.Auth.SecureCookie}
	authHandler := handlers.NewAuthHandler(deps.AuthService, deps.LoginLimiter, cookieOpts, deps.Logger)
	protectedHandler := handlers.NewProtectedHandler()
	healthHandler := handlers.NewHealthHandler()
	authMW := AuthMiddleware(deps.AuthService, deps.Logger)

	r.Get("/healthz", healthHandler.Get)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/sign-up/email", authHandler.SignUp)
		r.Post("/sign-in/email", authHandler.SignIn)
		r.Get("/session", authHandler.Session)
		r.Post("/magic-link", authHandler.MagicLink)
		r.Post("/verify-email/{token}", authHandler.VerifyEmail)
		r.Post("/sign-out", authHandler.SignOut)
	})

	r.Route("/api/protected", func(r chi.Router) {
		r.Use(authMW)
		r.Get("/profile", protectedHandler.Profile)
		r.Get("/data", protectedHandler.Data)
	})
}
