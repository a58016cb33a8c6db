package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/movielist/apiserver/internal/auth"
	"github.com/movielist/apiserver/internal/services"
)

const maxJSONBodyBytes = 1 << 20

type contextKey string

const contextPrincipalKey contextKey = "principal"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WithPrincipal attaches an authenticated identity to ctx.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, contextPrincipalKey, p)
}

// PrincipalFromContext returns the identity attached by Authenticate.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(contextPrincipalKey).(auth.Principal)
	if !ok || p.UserID < 1 {
		return auth.Principal{}, false
	}
	return p, true
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// pathParam returns the decoded value of a chi URL parameter.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func parseIDParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// statusFor maps service errors onto HTTP statuses. Unknown errors are 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrDuplicateIdentity):
		return http.StatusConflict, "username or email already registered"
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, services.ErrTokenNotFound),
		errors.Is(err, services.ErrTokenRevoked),
		errors.Is(err, services.ErrTokenExpired),
		errors.Is(err, services.ErrTokenMalformed):
		return http.StatusUnauthorized, "invalid refresh token"
	case errors.Is(err, services.ErrUnknownEmail):
		return http.StatusNotFound, "no account for email"
	case errors.Is(err, services.ErrInvalidChallenge):
		return http.StatusBadRequest, "invalid recovery code"
	case errors.Is(err, services.ErrChallengeExpired):
		return http.StatusGone, "recovery code expired"
	case errors.Is(err, services.ErrChallengeNotVerified):
		return http.StatusForbidden, "recovery code not verified"
	case errors.Is(err, services.ErrPasswordMismatch):
		return http.StatusBadRequest, "passwords do not match"
	case errors.Is(err, services.ErrTooManyAttempts):
		return http.StatusTooManyRequests, "too many attempts"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// respondError writes the mapped status for err. Faults that map to 500 are
// logged with op; their detail never reaches the client.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "op", op, "error", err)
	}
	writeError(w, status, message)
}
