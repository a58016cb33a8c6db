package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RecoveryService is the password recovery API the handlers depend on.
type RecoveryService interface {
	RequestRecovery(ctx context.Context, email string) error
	VerifyChallenge(ctx context.Context, email, code string) error
	ChangePassword(ctx context.Context, email, password, repeat string) error
}

// RecoveryHandler serves /recovery. Every route is public. The flow is
// request, then verify, then change.
type RecoveryHandler struct {
	recovery RecoveryService
	logger   *slog.Logger
}

func NewRecoveryHandler(recovery RecoveryService, logger *slog.Logger) *RecoveryHandler {
	return &RecoveryHandler{recovery: recovery, logger: logger}
}

// RecoveryRouter registers recovery routes on the given router.
func RecoveryRouter(r chi.Router, recovery RecoveryService, logger *slog.Logger) {
	handler := NewRecoveryHandler(recovery, logger)

	r.Post("/request/{email}", handler.Request)
	r.Post("/verify/{code}/{email}", handler.Verify)
	r.Post("/change/{email}", handler.Change)
}

type ChangePasswordRequest struct {
	Password       string `json:"password"`
	RepeatPassword string `json:"repeatPassword"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (h *RecoveryHandler) Request(w http.ResponseWriter, r *http.Request) {
	if err := h.recovery.RequestRecovery(r.Context(), pathParam(r, "email")); err != nil {
		respondError(w, r, h.logger, "recovery.request", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "recovery code sent"})
}

func (h *RecoveryHandler) Verify(w http.ResponseWriter, r *http.Request) {
	err := h.recovery.VerifyChallenge(r.Context(), pathParam(r, "email"), pathParam(r, "code"))
	if err != nil {
		respondError(w, r, h.logger, "recovery.verify", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "recovery code verified"})
}

// Change sets a new password for the email in the path. Clients must first
// verify the mailed code through /recovery/verify/{code}/{email}; without a
// verified, unexpired code the request fails with 403 Forbidden. On success
// every refresh token of the account is revoked.
func (h *RecoveryHandler) Change(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	err := h.recovery.ChangePassword(r.Context(), pathParam(r, "email"), req.Password, req.RepeatPassword)
	if err != nil {
		respondError(w, r, h.logger, "recovery.change", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "password changed"})
}
