package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"chessroom/internal/game"
	"chessroom/internal/models"
	"chessroom/internal/session"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler handles HTTP requests
type Handler struct {
	gameService *game.Service
	sessions    *session.Server
	logger      *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(gameService *game.Service, sessions *session.Server, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		gameService: gameService,
		sessions:    sessions,
		logger:      logger,
	}
}

// RegisterRoutes sets up the routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/api/move", h.externalMove)
	r.Get("/api/game/{gameID}", h.getGame)
}

type healthResponse struct {
	Status     string        `json:"status"`
	GamesCount int           `json:"games_count"`
	Games      []models.Game `json:"games"`
	session.Stats
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	games := h.gameService.ListGames()
	if games == nil {
		games = []models.Game{}
	}
	respondJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		GamesCount: len(games),
		Games:      games,
		Stats:      h.sessions.Stats(r.Context()),
	})
}

func (h *Handler) getGame(w http.ResponseWriter, r *http.Request) {
	g, exists := h.gameService.GetGame(chi.URLParam(r, "gameID"))
	if !exists {
		respondError(w, http.StatusNotFound, "Game not found")
		return
	}
	respondJSON(w, http.StatusOK, g)
}

type moveRequest struct {
	GameID      string `json:"game_id"`
	Move        string `json:"move"`
	Explanation string `json:"explanation"`
}

type moveResponse struct {
	Status string             `json:"status"`
	Result models.MoveOutcome `json:"result"`
}

// externalMove lets agents outside the websocket protocol play a move.
func (h *Handler) externalMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.GameID = strings.TrimSpace(req.GameID)
	req.Move = strings.TrimSpace(req.Move)
	if req.GameID == "" || req.Move == "" {
		respondError(w, http.StatusBadRequest, "game_id and move are required")
		return
	}

	outcome, err := h.sessions.ExternalMove(req.GameID, req.Move, req.Explanation)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, game.ErrGameNotFound) {
			status = http.StatusNotFound
		}
		h.logger.Info("external move rejected",
			zap.String("game_id", req.GameID),
			zap.String("move", req.Move),
			zap.Error(err),
		)
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, moveResponse{Status: "ok", Result: outcome})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// CORSMiddleware allows browser clients served from any origin.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
