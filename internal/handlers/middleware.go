package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/movielist/apiserver/internal/auth"
	"github.com/movielist/apiserver/internal/authz"
)

// TokenVerifier validates access tokens.
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// PublicRoute exempts matching requests from authentication. A Path ending
// in "/" matches as a prefix. An empty Method matches every method.
type PublicRoute struct {
	Method string
	Path   string
}

// DefaultPublicRoutes is the allowlist of unauthenticated endpoints.
var DefaultPublicRoutes = []PublicRoute{
	{Path: "/healthz"},
	{Path: "/metrics"},
	{Method: http.MethodPost, Path: "/auth/register"},
	{Method: http.MethodPost, Path: "/auth/login"},
	{Method: http.MethodPost, Path: "/auth/refresh"},
	{Method: http.MethodPost, Path: "/recovery/"},
	{Method: http.MethodGet, Path: "/files/"},
}

func (p PublicRoute) matches(r *http.Request) bool {
	if p.Method != "" && p.Method != r.Method {
		return false
	}
	if strings.HasSuffix(p.Path, "/") {
		return strings.HasPrefix(r.URL.Path, p.Path)
	}
	return r.URL.Path == p.Path
}

// Authenticate verifies the bearer token of every request outside public and
// attaches the resulting principal to the request context.
func Authenticate(verifier TokenVerifier, public []PublicRoute) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, route := range public {
				if route.matches(r) {
					next.ServeHTTP(w, r)
					return
				}
			}

			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			principal, err := verifier.Verify(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// Authorize admits the request only when the principal's role may perform op.
func Authorize(policy authz.Policy, op authz.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !policy.Allowed(op, principal.Role) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
