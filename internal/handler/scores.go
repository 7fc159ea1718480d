package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/advent-arcade/internal/domain"
	"github.com/go-chi/chi/v5"
)

// SubmitScore handles score submission
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	var submission domain.ScoreSubmission
	if err := decodeBody(w, r, &submission); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.service.SubmitScore(r.Context(), submission)
	if err != nil {
		h.writeServiceError(w, r, "submit score", err)
		return
	}

	h.writeSuccess(w, result)
}

// GetGameScores returns every entry of a game, best first
func (h *Handler) GetGameScores(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.GameScores(r.Context(), chi.URLParam(r, "game"))
	if err != nil {
		h.writeServiceError(w, r, "get game scores", err)
		return
	}

	h.writeSuccess(w, entries)
}

// GetTop returns the top N entries of a game
func (h *Handler) GetTop(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		limit = l
	}

	entries, err := h.service.TopN(r.Context(), chi.URLParam(r, "game"), limit)
	if err != nil {
		h.writeServiceError(w, r, "get top scores", err)
		return
	}

	h.writeSuccess(w, entries)
}

// GetGlobalLeaderboard returns the cross-game leaderboard
func (h *Handler) GetGlobalLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.GlobalLeaderboard(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "get global leaderboard", err)
		return
	}

	h.writeSuccess(w, rows)
}

// ListGames returns the game catalog. ?active=true keeps active games only.
func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if v := r.URL.Query().Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		activeOnly = b
	}

	list, err := h.service.Games(r.Context(), activeOnly)
	if err != nil {
		h.writeServiceError(w, r, "list games", err)
		return
	}

	h.writeSuccess(w, list)
}

// GetAvatars returns avatars keyed by username. Names come from a
// comma-separated ?names= list or repeated ?name= parameters; without any
// every registered avatar is returned.
func (h *Handler) GetAvatars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var names []string
	for _, n := range q["name"] {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if list := q.Get("names"); list != "" {
		for _, n := range strings.Split(list, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}

	avatars, err := h.service.Avatars(r.Context(), names)
	if err != nil {
		h.writeServiceError(w, r, "get avatars", err)
		return
	}

	h.writeSuccess(w, avatars)
}
