package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/wavecall/api/internal/domain"
)

type authContextKey string

const contextKeyIdentity authContextKey = "wavecall-identity"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request has a valid bearer token before invoking
// the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the Authorization header and enriches the context
// with the resolved identity.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, domain.Identity, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return req.Context(), domain.Identity{}, false
	}
	identity, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return req.Context(), domain.Identity{}, false
	}
	ctx := context.WithValue(req.Context(), contextKeyIdentity, identity)
	return ctx, identity, true
}

// identityFromContext extracts the caller identity from context.
func identityFromContext(ctx context.Context) (domain.Identity, bool) {
	value := ctx.Value(contextKeyIdentity)
	if value == nil {
		return domain.Identity{}, false
	}
	identity, ok := value.(domain.Identity)
	return identity, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
