// Package handler exposes the arcade over HTTP
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/advent-arcade/internal/auth"
	"github.com/advent-arcade/internal/domain"
	"github.com/advent-arcade/internal/metrics"
	"github.com/advent-arcade/internal/service"
	"github.com/advent-arcade/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const maxBodyBytes = 64 << 10

// Handler provides HTTP handlers for the arcade API
type Handler struct {
	service        *service.ArcadeService
	hub            *websocket.Hub
	tokens         *auth.JWTService
	allowedOrigins []string
	logger         *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	svc *service.ArcadeService,
	hub *websocket.Hub,
	tokens *auth.JWTService,
	allowedOrigins []string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		service:        svc,
		hub:            hub,
		tokens:         tokens,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// WebSocket endpoint
	if h.hub != nil {
		r.Method(http.MethodGet, "/ws", websocket.NewHandler(h.hub, h.allowedOrigins, h.logger))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.Route("/stats", func(r chi.Router) {
			r.Post("/", h.SubmitScore)
			r.Get("/{game}/all", h.GetGameScores)
			r.Get("/{game}/top", h.GetTop)
		})

		r.Get("/leaderboard/global", h.GetGlobalLeaderboard)
		r.Get("/games", h.ListGames)

		r.Route("/users", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Get("/avatars", h.GetAvatars)

			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth)
				r.Get("/me", h.GetMe)
				r.Put("/me/name", h.ChangeName)
				r.Put("/me/password", h.ChangePassword)
				r.Put("/me/avatar", h.UpdateAvatar)
				r.Get("/me/stars", h.GetStars)
				r.Post("/me/doors/{day}", h.OpenDoor)
			})
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a domain error to its status code. Anything
// unrecognised is logged and reported as an internal error.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNameTaken):
		h.writeError(w, http.StatusConflict, err)
	case domain.IsValidationError(err), errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrAuth):
		h.writeError(w, http.StatusUnauthorized, domain.ErrAuth)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrDoorLocked):
		h.writeError(w, http.StatusForbidden, err)
	default:
		h.logger.Error("request failed",
			"op", op,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// decodeBody decodes a JSON request body of bounded size
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidRequest
	}
	return nil
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.writeSuccess(w, websocket.Stats{Channels: map[string]int{}})
		return
	}
	h.writeSuccess(w, h.hub.Stats())
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports ready once the document store answers
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.Games(r.Context(), false); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, errors.New("storage unavailable"))
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}
