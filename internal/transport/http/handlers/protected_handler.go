package handlers

import (
	"net/http"

	authsvc "github.com/ivankudzin/authgate/internal/services/auth"
	"github.com/ivankudzin/authgate/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/authgate/internal/transport/http/errors"
)

// ProtectedHandler serves routes that only exist behind the access guard;
// it trusts the identity the guard attached to the request context.
type ProtectedHandler struct{}

func NewProtectedHandler() *ProtectedHandler {
	return &ProtectedHandler{}
}

func (h *ProtectedHandler) Profile(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.UserResponse{
		ID:            identity.ID,
		Email:         identity.Email,
		Name:          identity.Name,
		Image:         identity.Image,
		EmailVerified: identity.EmailVerified,
		CreatedAt:     identity.CreatedAt,
		UpdatedAt:     identity.UpdatedAt,
	})
}

func (h *ProtectedHandler) Data(w http.ResponseWriter, r *http.Request) {
	if _, ok := authsvc.IdentityFromContext(r.Context()); !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	httperrors.Write(w, http.StatusOK, map[string]any{
		"message": "protected data",
		"items": []map[string]any{
			{"id": 1, "name": "Protected Item 1"},
			{"id": 2, "name": "Protected Item 2"},
			{"id": 3, "name": "Protected Item 3"},
		},
	})
}
