package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/advent-arcade/internal/domain"
	"github.com/go-chi/chi/v5"
)

type ctxKey int

const userIDKey ctxKey = iota

// requireAuth accepts requests carrying a valid bearer token
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			h.writeError(w, http.StatusUnauthorized, domain.ErrAuth)
			return
		}

		claims, err := h.tokens.ValidateToken(token)
		if err != nil {
			h.logger.Debug("rejected token", "error", err)
			h.writeError(w, http.StatusUnauthorized, domain.ErrAuth)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// Register handles account creation
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "register", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    session,
	})
}

// Login handles sign-in
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := h.service.Login(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "login", err)
		return
	}

	h.writeSuccess(w, session)
}

// GetMe returns the signed-in user's profile
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Profile(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, r, "get profile", err)
		return
	}

	h.writeSuccess(w, profile)
}

// ChangeName changes the signed-in user's display name
func (h *Handler) ChangeName(w http.ResponseWriter, r *http.Request) {
	var req domain.ChangeNameRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	profile, err := h.service.ChangeDisplayName(r.Context(), userID(r), req.DisplayName)
	if err != nil {
		h.writeServiceError(w, r, "change display name", err)
		return
	}

	h.writeSuccess(w, profile)
}

// ChangePassword changes the signed-in user's password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ChangePasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID(r), req); err != nil {
		h.writeServiceError(w, r, "change password", err)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "updated"})
}

// UpdateAvatar replaces the signed-in user's avatar
func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	var avatar domain.Avatar
	if err := decodeBody(w, r, &avatar); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	profile, err := h.service.UpdateAvatar(r.Context(), userID(r), avatar)
	if err != nil {
		h.writeServiceError(w, r, "update avatar", err)
		return
	}

	h.writeSuccess(w, profile)
}

// GetStars returns the signed-in user's stars
func (h *Handler) GetStars(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Stars(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, r, "get stars", err)
		return
	}

	h.writeSuccess(w, s)
}

// OpenDoor opens an advent calendar door for the signed-in user
func (h *Handler) OpenDoor(w http.ResponseWriter, r *http.Request) {
	day, err := strconv.Atoi(chi.URLParam(r, "day"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidDoor)
		return
	}

	profile, err := h.service.OpenDoor(r.Context(), userID(r), day)
	if err != nil {
		h.writeServiceError(w, r, "open door", err)
		return
	}

	h.writeSuccess(w, profile)
}
