package handlers

import (
	"net/http"

	"github.com/aitoolflow/engine/internal/api/types"
	"github.com/aitoolflow/engine/internal/services"
)

type AuthHandler struct {
	auth     services.AuthService
	validate Validator
}

func NewAuthHandler(auth services.AuthService, v Validator) *AuthHandler {
	return &AuthHandler{auth: auth, validate: v}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, _, err := h.auth.Register(r.Context(), req.Input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.TokenResponse{Token: token})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, _, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.TokenResponse{Token: token})
}

// DeleteAccount removes the caller and everything they own.
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.auth.DeleteAccount(r.Context(), uid); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
