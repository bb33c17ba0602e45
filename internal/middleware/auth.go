package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Vasu1712/scenyx-chat/internal/auth"
	"github.com/Vasu1712/scenyx-chat/internal/models"
)

type identityKey struct{}

// Authenticate resolves the bearer token of every request and stores the
// identity in the request context. Requests without a valid token get 401.
func Authenticate(resolver *auth.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolver.Resolve(auth.TokenFromRequest(r))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{
					"message": models.PublicMessage(err),
					"code":    string(models.KindAuthentication),
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(auth.Identity)
	return identity, ok
}
