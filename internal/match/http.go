package match

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizarena/quizarena/internal/auth"
	httperrors "github.com/quizarena/quizarena/pkg/http/errors"
)

// HTTPHandlers provides REST endpoints for match lifecycle outside the
// realtime loop: creation, lookup and scheduled-match deletion.
type HTTPHandlers struct {
	service  *Service
	registry *Registry
	gate     *auth.Gate
	logger   zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for match endpoints.
func NewHTTPHandlers(service *Service, registry *Registry, gate *auth.Gate, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service:  service,
		registry: registry,
		gate:     gate,
		logger:   logger.With().Str("component", "match_http").Logger(),
	}
}

// CreateMatchRequest is the POST /v1/matches body.
type CreateMatchRequest struct {
	Category            string             `json:"category"`
	Difficulty          string             `json:"difficulty"`
	TotalQuestions      int                `json:"total_questions"`
	QuestionDurationSec int                `json:"question_duration_sec"`
	Players             []PlayerRefRequest `json:"players"`
}

type PlayerRefRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// MatchResponse is the REST view of a match. It never carries question
// content.
type MatchResponse struct {
	ID                  string               `json:"id"`
	HostID              string               `json:"host_id"`
	Status              string               `json:"status"`
	Category            string               `json:"category,omitempty"`
	Difficulty          string               `json:"difficulty,omitempty"`
	TotalQuestions      int                  `json:"total_questions"`
	QuestionDurationSec int                  `json:"question_duration_sec"`
	CurrentQuestion     int                  `json:"current_question"`
	CreatedAt           string               `json:"created_at"`
	StartedAt           *string              `json:"started_at,omitempty"`
	EndedAt             *string              `json:"ended_at,omitempty"`
	Players             []ParticipantSummary `json:"players,omitempty"`
}

type ParticipantSummary struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
}

// HandleMatches routes /v1/matches and /v1/matches/{id}.
func (h *HTTPHandlers) HandleMatches(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/matches")
	rest = strings.Trim(rest, "/")

	switch {
	case rest == "" && r.Method == http.MethodPost:
		h.createMatch(w, r, identity)
	case rest != "" && r.Method == http.MethodGet:
		h.getMatch(w, r, rest)
	case rest != "" && r.Method == http.MethodDelete:
		h.deleteMatch(w, r, identity, rest)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandlers) authenticate(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeUnauthorized, "missing bearer token")
		return auth.Identity{}, false
	}
	identity, err := h.gate.VerifyCredential(token)
	if err != nil {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "invalid token")
		return auth.Identity{}, false
	}
	return identity, true
}

func (h *HTTPHandlers) createMatch(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	var req CreateMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "invalid JSON payload")
		return
	}

	params := CreateParams{
		HostID:              identity.UserID,
		HostDisplayName:     identity.DisplayName,
		Category:            req.Category,
		Difficulty:          req.Difficulty,
		TotalQuestions:      req.TotalQuestions,
		QuestionDurationSec: req.QuestionDurationSec,
	}
	for _, ref := range req.Players {
		userID, err := uuid.Parse(ref.UserID)
		if err != nil {
			httperrors.RespondBadRequest(w, httperrors.ErrCodeValidationFailed, "invalid player user_id")
			return
		}
		params.Players = append(params.Players, PlayerRef{UserID: userID, DisplayName: ref.DisplayName})
	}

	m, err := h.service.Create(r.Context(), params)
	if err != nil {
		if errors.Is(err, ErrInvalidParams) {
			httperrors.RespondBadRequest(w, httperrors.ErrCodeValidationFailed, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("host_id", identity.UserID.String()).Msg("match creation failed")
		httperrors.RespondError(w, http.StatusBadGateway, httperrors.ErrCodeMatchCreationFailed, "could not create match")
		return
	}

	h.respondJSON(w, http.StatusCreated, matchToResponse(m, nil))
}

func (h *HTTPHandlers) getMatch(w http.ResponseWriter, r *http.Request, rawID string) {
	matchID, err := uuid.Parse(rawID)
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidMatchID, "invalid match id")
		return
	}
	m, players, err := h.service.Get(r.Context(), matchID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "match not found")
			return
		}
		h.logger.Error().Err(err).Str("match_id", matchID.String()).Msg("match lookup failed")
		httperrors.RespondInternalError(w, "match lookup failed")
		return
	}
	h.respondJSON(w, http.StatusOK, matchToResponse(m, players))
}

// deleteMatch removes a scheduled match through its engine so a concurrently
// arriving start cannot race the delete.
func (h *HTTPHandlers) deleteMatch(w http.ResponseWriter, r *http.Request, identity auth.Identity, rawID string) {
	matchID, err := uuid.Parse(rawID)
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidMatchID, "invalid match id")
		return
	}

	e, err := h.registry.Get(r.Context(), matchID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "match not found")
		case errors.Is(err, ErrCancelled):
			httperrors.RespondError(w, http.StatusConflict, httperrors.ErrCodeMatchNotScheduled, "match is cancelled")
		default:
			h.logger.Error().Err(err).Str("match_id", matchID.String()).Msg("engine lookup failed")
			httperrors.RespondInternalError(w, "match lookup failed")
		}
		return
	}

	if err := e.DeleteIfScheduled(r.Context(), identity.UserID); err != nil {
		switch {
		case errors.Is(err, ErrNotHost):
			httperrors.RespondForbidden(w, httperrors.ErrCodeNotHost, "only the host may delete a match")
		case errors.Is(err, ErrNotScheduled):
			httperrors.RespondError(w, http.StatusConflict, httperrors.ErrCodeMatchNotScheduled, "match already started")
		default:
			h.logger.Error().Err(err).Str("match_id", matchID.String()).Msg("match delete failed")
			httperrors.RespondInternalError(w, "match delete failed")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandlers) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error().Err(err).Msg("response encode failed")
	}
}

func matchToResponse(m *Match, players []Participant) MatchResponse {
	resp := MatchResponse{
		ID:                  m.ID.String(),
		HostID:              m.HostID.String(),
		Status:              m.Status,
		Category:            m.Category,
		Difficulty:          m.Difficulty,
		TotalQuestions:      m.TotalQuestions,
		QuestionDurationSec: m.QuestionDurationSec,
		CurrentQuestion:     m.CurrentQuestion,
		CreatedAt:           m.CreatedAt.UTC().Format(time.RFC3339),
	}
	if m.StartedAt != nil {
		s := m.StartedAt.UTC().Format(time.RFC3339)
		resp.StartedAt = &s
	}
	if m.EndedAt != nil {
		s := m.EndedAt.UTC().Format(time.RFC3339)
		resp.EndedAt = &s
	}
	for _, p := range players {
		resp.Players = append(resp.Players, ParticipantSummary{
			UserID:      p.UserID.String(),
			DisplayName: p.DisplayName,
			Score:       p.Score,
		})
	}
	return resp
}
