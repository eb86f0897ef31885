package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bananatrade/internal/game"
	"bananatrade/internal/store"
)

type Server struct {
	log   *slog.Logger
	game  *game.Service
	store store.Store
	mux   *chi.Mux
}

func New(logger *slog.Logger, gameSvc *game.Service, st store.Store) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:   logger,
		game:  gameSvc,
		store: st,
		mux:   chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/join", s.handleJoin)
			r.Post("/start", s.handleStart)
			r.Post("/end", s.handleEnd)
			r.Post("/trade", s.handleTrade)
			r.Get("/transactions", s.handleTransactions)
			r.Get("/transactions/stats", s.handleTransactionStats)
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Post("/bots", s.handlePurchaseBot)
			r.Get("/bots", s.handleListBots)
			r.Post("/bots/{botID}/toggle", s.handleToggleBot)
			r.Post("/bots/{botID}/trade", s.handleBotTrade)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "record store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CreatorID       string  `json:"creator_id"`
		DisplayName     string  `json:"display_name"`
		MaxPlayers      int     `json:"max_players"`
		DurationSeconds int64   `json:"duration_seconds"`
		StartingUsd     float64 `json:"starting_usd"`
		StartingCoins   float64 `json:"starting_coins"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.game.CreateSession(r.Context(), game.CreateSessionInput{
		CreatorID:         in.CreatorID,
		DisplayName:       in.DisplayName,
		MaxPlayers:        in.MaxPlayers,
		DurationSeconds:   in.DurationSeconds,
		StartingUsdMicros: game.USDToMicros(in.StartingUsd),
		StartingCoinUnits: game.CoinsToUnits(in.StartingCoins),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.game.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PlayerID    string `json:"player_id"`
		DisplayName string `json:"display_name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.game.Join(r.Context(), game.JoinInput{
		SessionID:   chi.URLParam(r, "id"),
		PlayerID:    in.PlayerID,
		DisplayName: in.DisplayName,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PlayerID string `json:"player_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.game.Start(r.Context(), chi.URLParam(r, "id"), in.PlayerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	sess, err := s.game.End(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PlayerID  string  `json:"player_id"`
		Direction string  `json:"direction"`
		Quantity  float64 `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.Trade(r.Context(), game.TradeInput{
		SessionID:     chi.URLParam(r, "id"),
		PlayerID:      in.PlayerID,
		Direction:     strings.ToLower(strings.TrimSpace(in.Direction)),
		QuantityUnits: game.CoinsToUnits(in.Quantity),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset := queryInt(q.Get("offset"), 0)
	limit := queryInt(q.Get("limit"), 50)
	page, err := s.game.Transactions(r.Context(), chi.URLParam(r, "id"), q.Get("actor_id"), offset, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleTransactionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.game.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	standings, err := s.game.Standings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"standings": standings})
}

func (s *Server) handlePurchaseBot(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PlayerID string `json:"player_id"`
		Kind     string `json:"kind"`
		Name     string `json:"name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bot, err := s.game.PurchaseBot(r.Context(), game.PurchaseBotInput{
		SessionID: chi.URLParam(r, "id"),
		PlayerID:  in.PlayerID,
		Kind:      in.Kind,
		Name:      in.Name,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bot)
}

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.game.Bots(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("player_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bots": bots})
}

func (s *Server) handleToggleBot(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PlayerID string `json:"player_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bot, err := s.game.ToggleBot(r.Context(), chi.URLParam(r, "id"), in.PlayerID, chi.URLParam(r, "botID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

func (s *Server) handleBotTrade(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Direction string  `json:"direction"`
		Quantity  float64 `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.TradeBot(r.Context(), game.BotTradeInput{
		SessionID:     chi.URLParam(r, "id"),
		BotID:         chi.URLParam(r, "botID"),
		Direction:     strings.ToLower(strings.TrimSpace(in.Direction)),
		QuantityUnits: game.CoinsToUnits(in.Quantity),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrSessionNotFound),
		errors.Is(err, game.ErrPlayerNotFound),
		errors.Is(err, game.ErrBotNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrInvalidConfig),
		errors.Is(err, game.ErrInvalidAmount),
		errors.Is(err, game.ErrInsufficientFunds),
		errors.Is(err, game.ErrInsufficientCoins):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, game.ErrAlreadyStarted),
		errors.Is(err, game.ErrSessionNotActive),
		errors.Is(err, game.ErrSessionFull),
		errors.Is(err, game.ErrDuplicateMember),
		errors.Is(err, game.ErrBotInactive),
		errors.Is(err, game.ErrContention):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func queryInt(raw string, fallback int64) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
