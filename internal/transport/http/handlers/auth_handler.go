package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ivankudzin/authgate/internal/domain/model"
	"github.com/ivankudzin/authgate/internal/pkg/validate"
	authsvc "github.com/ivankudzin/authgate/internal/services/auth"
	ratesvc "github.com/ivankudzin/authgate/internal/services/rate"
	"github.com/ivankudzin/authgate/internal/transport/http/cookies"
	"github.com/ivankudzin/authgate/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/authgate/internal/transport/http/errors"
)

type AuthHandler struct {
	service *authsvc.Service
	limiter *ratesvc.Limiter
	cookies cookies.Options
	log     *zap.Logger
}

func NewAuthHandler(service *authsvc.Service, limiter *ratesvc.Limiter, cookieOpts cookies.Options, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{
		service: service,
		limiter: limiter,
		cookies: cookieOpts,
		log:     log,
	}
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	var req dto.SignUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}
	if !validate.Email(req.Email) || !validate.Required(req.Password) {
		writeBadRequest(w, "VALIDATION_ERROR", "email and password are required")
		return
	}
	if !h.allowAttempt(w, r, req.Email) {
		return
	}

	session, err := h.service.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	cookies.SetSession(w, session.Token, time.Until(session.ExpiresAt), h.cookies)
	httperrors.Write(w, http.StatusOK, sessionResponse(session))
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	var req dto.SignInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}
	if !validate.Email(req.Email) || !validate.Required(req.Password) {
		writeBadRequest(w, "VALIDATION_ERROR", "email and password are required")
		return
	}
	if !h.allowAttempt(w, r, req.Email) {
		return
	}

	session, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	cookies.SetSession(w, session.Token, time.Until(session.ExpiresAt), h.cookies)
	httperrors.Write(w, http.StatusOK, sessionResponse(session))
}

// Session reports who the request's token belongs to. A missing or dead
// token is not an error here: the response carries null user and session,
// mirroring the provider's own introspection contract.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	token, ok := authsvc.ExtractToken(r)
	if !ok {
		httperrors.Write(w, http.StatusOK, dto.AuthResponse{})
		return
	}

	session, err := h.service.Resolve(r.Context(), token)
	if err != nil {
		h.log.Debug("session introspection failed", zap.Error(err))
		httperrors.Write(w, http.StatusOK, dto.AuthResponse{})
		return
	}

	httperrors.Write(w, http.StatusOK, sessionResponse(session))
}

func (h *AuthHandler) MagicLink(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	var req dto.MagicLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}
	if !validate.Email(req.Email) {
		writeBadRequest(w, "VALIDATION_ERROR", "valid email is required")
		return
	}
	if !h.allowAttempt(w, r, req.Email) {
		return
	}

	if err := h.service.RequestMagicLink(r.Context(), req.Email); err != nil {
		h.handleAuthError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.SignOutResponse{OK: true})
}

// VerifyEmail redeems a magic-link token. The minted session carries the
// longer verified lifetime, and so does its cookie.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	token := chi.URLParam(r, "token")
	if !validate.Required(token) {
		writeBadRequest(w, "VALIDATION_ERROR", "verification token is required")
		return
	}

	session, err := h.service.VerifyEmail(r.Context(), token)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	cookies.SetSession(w, session.Token, time.Until(session.ExpiresAt), h.cookies)
	httperrors.Write(w, http.StatusOK, sessionResponse(session))
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	token, ok := authsvc.ExtractToken(r)
	if !ok {
		// Nothing to invalidate; still clear the cookie.
		cookies.ClearSession(w, h.cookies)
		httperrors.Write(w, http.StatusOK, dto.SignOutResponse{OK: true})
		return
	}

	if err := h.service.SignOut(r.Context(), token); err != nil {
		h.log.Warn("sign-out failed", zap.Error(err))
	}

	cookies.ClearSession(w, h.cookies)
	httperrors.Write(w, http.StatusOK, dto.SignOutResponse{OK: true})
}

// allowAttempt applies the login limiter per client IP and per email. A
// broken limiter fails open: losing back-pressure is better than losing
// login.
func (h *AuthHandler) allowAttempt(w http.ResponseWriter, r *http.Request, email string) bool {
	if h.limiter == nil {
		return true
	}

	for _, subject := range []string{"ip:" + clientIP(r.RemoteAddr), "email:" + email} {
		retryAfter, allowed, err := h.limiter.AllowAttempt(r.Context(), subject)
		if err != nil {
			h.log.Warn("login limiter unavailable", zap.Error(err))
			return true
		}
		if !allowed {
			httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
				Code:          "TOO_MANY_ATTEMPTS",
				Message:       "too many attempts, slow down",
				RetryAfterSec: retryAfter,
			})
			return false
		}
	}

	return true
}

// clientIP strips the port from a host:port RemoteAddr so attempts from
// the same address aggregate into one window regardless of the TCP
// connection they arrived on. Behind a proxy, RealIP has already rewritten
// RemoteAddr to a bare host and SplitHostPort fails; the raw value is used.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func (h *AuthHandler) handleAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authsvc.ErrInvalidInput):
		writeBadRequest(w, "INVALID_REQUEST", "request validation failed")
	case errors.Is(err, authsvc.ErrInvalidLogin), errors.Is(err, authsvc.ErrInvalidToken),
		errors.Is(err, authsvc.ErrUnauthorized):
		writeUnauthorized(w, "UNAUTHORIZED", "authentication failed")
	case errors.Is(err, authsvc.ErrProviderUnavailable):
		h.log.Warn("identity provider unavailable", zap.Error(err))
		httperrors.Write(w, http.StatusServiceUnavailable, httperrors.APIError{
			Code:    "PROVIDER_UNAVAILABLE",
			Message: "identity provider is unavailable, try again later",
		})
	default:
		h.log.Error("auth request failed", zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}

func sessionResponse(session model.Session) dto.AuthResponse {
	return dto.AuthResponse{
		User: &dto.UserResponse{
			ID:            session.User.ID,
			Email:         session.User.Email,
			Name:          session.User.Name,
			Image:         session.User.Image,
			EmailVerified: session.User.EmailVerified,
			CreatedAt:     session.User.CreatedAt,
			UpdatedAt:     session.User.UpdatedAt,
		},
		Session: &dto.SessionResponse{
			Token:     session.Token,
			ExpiresAt: session.ExpiresAt,
		},
	}
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}
