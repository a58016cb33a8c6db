package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/movielist/apiserver/internal/authz"
	"github.com/movielist/apiserver/types"
)

// UserService covers administrative account changes.
type UserService interface {
	SetRole(ctx context.Context, id int, role types.Role) (types.User, error)
}

type UserHandler struct {
	users  UserService
	logger *slog.Logger
}

func NewUserHandler(users UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// UserRouter registers user administration routes on the given router.
func UserRouter(r chi.Router, users UserService, policy authz.Policy, logger *slog.Logger) {
	handler := NewUserHandler(users, logger)

	r.With(Authorize(policy, authz.OpUserSetRole)).Put("/{userID}/role", handler.SetRole)
}

type SetRoleRequest struct {
	Role types.Role `json:"role"`
}

func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req SetRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.SetRole(r.Context(), id, req.Role)
	if err != nil {
		respondError(w, r, h.logger, "users.set_role", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
