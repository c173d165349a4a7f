package match

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/quizarena/quizarena/internal/auth"
	"github.com/quizarena/quizarena/internal/server"
	httperrors "github.com/quizarena/quizarena/pkg/http/errors"
	"github.com/quizarena/quizarena/pkg/ws"
)

// WSHandler owns the match WebSocket endpoint: handshake, identity check and
// the per-connection read loop feeding the dispatcher.
type WSHandler struct {
	hub        *ws.Hub
	gate       *auth.Gate
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

func NewWSHandler(hub *ws.Hub, gate *auth.Gate, dispatcher *Dispatcher, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:        hub,
		gate:       gate,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "match_ws").Logger(),
	}
}

// HandleWebSocket upgrades the HTTP connection and authenticates the user
// from the token query parameter.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "missing token")
		return
	}

	identity, err := h.gate.VerifyCredential(token)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket token validation failed")
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "invalid token")
		return
	}

	raw, err := server.WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	connLogger := h.logger.With().Str("user_id", identity.UserID.String()).Logger()
	conn := ws.NewConnection(raw, h.hub.QueueCap(), connLogger)
	h.hub.Register(identity.UserID, conn)
	connLogger.Info().Str("display_name", identity.DisplayName).Msg("websocket connected")

	go conn.WritePump()

	conn.ReadPump(func(msg ws.Message) error {
		h.dispatcher.Dispatch(context.Background(), identity.UserID, msg)
		return nil
	})

	h.hub.Unregister(identity.UserID, conn)
	conn.Close()
	connLogger.Info().Msg("websocket disconnected")
}
