package auth

import (
	"context"

	"github.com/ivankudzin/authgate/internal/domain/model"
)

type identityContextKey string

const identityKey identityContextKey = "auth_identity"

func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(model.Identity)
	return identity, ok
}
