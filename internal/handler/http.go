package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/retro-leaderboard/internal/domain"
	"github.com/retro-leaderboard/internal/service"
	"github.com/retro-leaderboard/internal/websocket"
)

// Updates runs and reports gated reconciliations
type Updates interface {
	Status(ctx context.Context) (service.GateStatus, error)
	TriggerUpdate(ctx context.Context, challengeID int64) (*domain.RunSummary, error)
}

// Standings reads computed standings
type Standings interface {
	Standings(ctx context.Context, challengeID int64) ([]domain.Standing, error)
	Top(ctx context.Context, challengeID int64, n int) ([]domain.LeaderboardEntry, error)
}

// Games refreshes stored game metadata
type Games interface {
	RefreshGames(ctx context.Context) ([]domain.Game, error)
}

// Handler provides HTTP handlers for the leaderboard API
type Handler struct {
	updates   Updates
	standings Standings
	games     Games
	hub       *websocket.Hub
	logger    *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(updates Updates, standings Standings, games Games, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		updates:   updates,
		standings: standings,
		games:     games,
		hub:       hub,
		logger:    logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// UpdateRequest is the optional body of POST /api/v1/update
type UpdateRequest struct {
	ChallengeID int64 `json:"challenge_id,omitempty"`
}

// UpdateResponse reports a completed run
type UpdateResponse struct {
	Message string             `json:"message"`
	Summary *domain.RunSummary `json:"summary"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/update/status", h.GetUpdateStatus)
		r.Post("/update", h.TriggerUpdate)

		r.Route("/challenges", func(r chi.Router) {
			r.Get("/current/standings", h.GetCurrentStandings)
			r.Route("/{challengeID}", func(r chi.Router) {
				r.Get("/standings", h.GetStandings)
				r.Get("/top", h.GetTop)
			})
		})

		r.Post("/games/refresh", h.RefreshGames)
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps domain failures onto status codes
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrRunNotAllowed):
		h.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, domain.ErrChallengeNotFound):
		h.writeError(w, http.StatusNotFound, domain.ErrChallengeNotFound)
	case domain.IsRemoteError(err):
		h.logger.Error(op+" failed", "error", err)
		h.writeError(w, http.StatusBadGateway, err)
	default:
		h.logger.Error(op+" failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

func challengeIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "challengeID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidRequest
	}
	return id, nil
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// GetUpdateStatus reports whether an update may run now
func (h *Handler) GetUpdateStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.updates.Status(r.Context())
	if err != nil {
		h.writeServiceError(w, "update status", err)
		return
	}
	h.writeSuccess(w, status)
}

// TriggerUpdate runs a gated reconciliation. The body is optional.
func (h *Handler) TriggerUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.ChallengeID < 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	summary, err := h.updates.TriggerUpdate(r.Context(), req.ChallengeID)
	if err != nil {
		h.writeServiceError(w, "update", err)
		return
	}
	h.writeSuccess(w, UpdateResponse{Message: summary.String(), Summary: summary})
}

// GetCurrentStandings returns standings of the current challenge
func (h *Handler) GetCurrentStandings(w http.ResponseWriter, r *http.Request) {
	h.serveStandings(w, r, 0)
}

// GetStandings returns standings of a specific challenge
func (h *Handler) GetStandings(w http.ResponseWriter, r *http.Request) {
	challengeID, err := challengeIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.serveStandings(w, r, challengeID)
}

func (h *Handler) serveStandings(w http.ResponseWriter, r *http.Request, challengeID int64) {
	standings, err := h.standings.Standings(r.Context(), challengeID)
	if err != nil {
		h.writeServiceError(w, "standings", err)
		return
	}
	if standings == nil {
		standings = []domain.Standing{}
	}
	h.writeSuccess(w, standings)
}

// GetTop returns the best totals of a challenge
func (h *Handler) GetTop(w http.ResponseWriter, r *http.Request) {
	challengeID, err := challengeIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries, err := h.standings.Top(r.Context(), challengeID, limit)
	if err != nil {
		h.writeServiceError(w, "top", err)
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	h.writeSuccess(w, entries)
}

// RefreshGames reloads game titles and artwork from the remote API
func (h *Handler) RefreshGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.games.RefreshGames(r.Context())
	if err != nil {
		h.writeServiceError(w, "refresh games", err)
		return
	}
	h.writeSuccess(w, games)
}
