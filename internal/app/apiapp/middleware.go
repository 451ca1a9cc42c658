package apiapp

import (
	"errors"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	authsvc "github.com/ivankudzin/authgate/internal/services/auth"
	httperrors "github.com/ivankudzin/authgate/internal/transport/http/errors"
)

func ApplyMiddlewares(r chiRouter, log *zap.Logger) {
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(requestLogger(log))
}

// AuthMiddleware is the access guard: it extracts the bearer token, asks
// the resolver who it belongs to, and either attaches the identity to the
// request context or rejects with 401. Every failure mode, including
// backend outages, reads as 401 to the client; authentication fails
// closed, never open and never 500.
func AuthMiddleware(service *authsvc.Service, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if service == nil {
				writeGuardReject(w, "AUTH_SERVICE_UNAVAILABLE")
				return
			}

			token, ok := authsvc.ExtractToken(r)
			if !ok {
				writeGuardReject(w, "NO_TOKEN")
				return
			}

			session, err := service.Resolve(r.Context(), token)
			if err != nil {
				if log != nil {
					log.Debug("access guard rejected request",
						zap.String("reason", guardReason(err)),
						zap.Error(err),
					)
				}
				writeGuardReject(w, "UNAUTHORIZED")
				return
			}

			ctx := authsvc.WithIdentity(r.Context(), session.User)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// guardReason maps a resolution failure to a reason code for logs only;
// the client always sees a bare 401.
func guardReason(err error) string {
	switch {
	case errors.Is(err, authsvc.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, authsvc.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, authsvc.ErrNoToken):
		return "no_token"
	default:
		return "unauthenticated"
	}
}

func writeGuardReject(w http.ResponseWriter, code string) {
	httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
		Code:    code,
		Message: "authentication required",
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			if log != nil {
				log.Info("http_request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Duration("duration", time.Since(start)),
				)
			}
		})
	}
}

type chiRouter interface {
	Use(middlewares ...func(http.Handler) http.Handler)
}
