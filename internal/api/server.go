package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tally/internal/config"
	"tally/internal/identity"
	"tally/internal/ledger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Server exposes the ledger core as plain-data JSON to the external command
// layer. Formatting, embeds and chart rendering all happen on the caller's
// side.
type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	ledger   *ledger.Service
	resolver identity.Resolver
	mux      *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, svc *ledger.Service, resolver identity.Resolver) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		ledger:   svc,
		resolver: resolver,
		mux:      chi.NewRouter(),
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

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/users/{id}", s.handleEnsureUser)
		r.Get("/users/{id}/balance", s.handleBalance)
		r.Post("/users/{id}/adjust", s.handleAdjust)
		r.Post("/users/{id}/games", s.handleRecordGame)
		r.Get("/users/{id}/games/count", s.handleGameCount)

		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/leaderboard/games", s.handleGamesLeaderboard)

		r.Get("/excess", s.handleExcess)
		r.Post("/excess/split", s.handleSplitExcess)

		r.Get("/history", s.handleHistory)
	})
}

// authMiddleware gates the API behind a single operator token. There is no
// per-user auth here: end-user identity belongs to the bot layer in front.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIToken != "" && bearerToken(r.Header.Get("Authorization")) != s.cfg.APIToken {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleEnsureUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ledger.EnsureUser(r.Context(), userID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user_id": userID})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := s.ledger.Balance(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger.LeaderboardRow{UserID: userID, Balance: balance})
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in struct {
		Delta  float64 `json:"delta"`
		Reason string  `json:"reason"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = s.ledger.Adjust(r.Context(), ledger.AdjustInput{
		UserID:         userID,
		Delta:          in.Delta,
		Reason:         in.Reason,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	balance, err := s.ledger.Balance(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger.LeaderboardRow{UserID: userID, Balance: balance})
}

func (s *Server) handleRecordGame(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ledger.RecordActivity(r.Context(), userID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user_id": userID})
}

func (s *Server) handleGameCount(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	count, err := s.ledger.ActivityCount(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger.ActivityRow{UserID: userID, Games: count})
}

type namedBalanceRow struct {
	ledger.LeaderboardRow
	DisplayName string `json:"display_name"`
}

type namedActivityRow struct {
	ledger.ActivityRow
	DisplayName string `json:"display_name"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ledger.Leaderboard(r.Context(), queryLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]namedBalanceRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, namedBalanceRow{
			LeaderboardRow: row,
			DisplayName:    identity.Label(r.Context(), s.resolver, row.UserID),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": out})
}

func (s *Server) handleGamesLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ledger.ActivityLeaderboard(r.Context(), queryLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]namedActivityRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, namedActivityRow{
			ActivityRow: row,
			DisplayName: identity.Label(r.Context(), s.resolver, row.UserID),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": out})
}

func (s *Server) handleExcess(w http.ResponseWriter, r *http.Request) {
	total, err := s.ledger.TotalExcess(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total})
}

func (s *Server) handleSplitExcess(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Targets []int64 `json:"targets"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.ledger.RedistributeExcess(r.Context(), in.Targets)
	if errors.Is(err, ledger.ErrNothingToRedistribute) {
		// An outcome, not a failure: the books are already balanced.
		writeJSON(w, http.StatusOK, map[string]any{
			"total":                   result.Total,
			"nothing_to_redistribute": true,
		})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userIDs, err := parseUserList(r.URL.Query().Get("users"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(userIDs) == 0 {
		writeError(w, http.StatusBadRequest, "users query parameter is required")
		return
	}
	out, err := s.ledger.History(r.Context(), userIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var partial *ledger.PartialError
	switch {
	case errors.Is(err, ledger.ErrUnknownUser):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrNoTargets):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrDuplicateAdjust):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &partial):
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": partial.Error(),
			"partial": map[string]any{
				"adjusted":    partial.Adjusted,
				"failed_user": partial.FailedUser,
			},
		})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func pathUserID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid user id")
	}
	return id, nil
}

func parseUserList(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.New("invalid user id in users list")
		}
		out = append(out, id)
	}
	return out, nil
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return 10
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
