package match

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizarena/quizarena/pkg/ws"
)

// DirectSender delivers a message to a specific connection outside any room,
// used for error replies before the caller has joined. Implemented by *ws.Hub.
type DirectSender interface {
	SendToUser(userID uuid.UUID, msg ws.Message) error
}

// Dispatcher routes inbound WebSocket commands to the right match engine.
// Unknown types and malformed payloads are answered with an error event, not
// a closed connection.
type Dispatcher struct {
	registry *Registry
	sender   DirectSender
	logger   zerolog.Logger
}

func NewDispatcher(registry *Registry, sender DirectSender, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		sender:   sender,
		logger:   logger.With().Str("component", "match_dispatcher").Logger(),
	}
}

// Dispatch handles one inbound message on behalf of userID.
func (d *Dispatcher) Dispatch(ctx context.Context, userID uuid.UUID, msg ws.Message) {
	var err error
	switch msg.Type {
	case ws.TypeMatchJoin:
		err = d.withMatch(ctx, msg.Payload, func(e *Engine) error {
			return e.Join(ctx, userID)
		})
	case ws.TypeMatchLeave:
		err = d.withMatch(ctx, msg.Payload, func(e *Engine) error {
			return e.Leave(ctx, userID)
		})
	case ws.TypeMatchStart:
		err = d.withMatch(ctx, msg.Payload, func(e *Engine) error {
			return e.Start(ctx, userID)
		})
	case ws.TypeMatchAdvance:
		err = d.withMatch(ctx, msg.Payload, func(e *Engine) error {
			return e.Advance(ctx, userID)
		})
	case ws.TypeMatchDelete:
		err = d.withMatch(ctx, msg.Payload, func(e *Engine) error {
			return e.DeleteIfScheduled(ctx, userID)
		})
	case ws.TypeAnswerSubmit:
		var p ws.AnswerSubmitPayload
		if err = json.Unmarshal(msg.Payload, &p); err != nil {
			err = fmt.Errorf("malformed payload: %w", ErrInvalidParams)
			break
		}
		var matchID uuid.UUID
		if matchID, err = uuid.Parse(p.MatchID); err != nil {
			err = fmt.Errorf("malformed match id: %w", ErrInvalidParams)
			break
		}
		var e *Engine
		if e, err = d.registry.Get(ctx, matchID); err != nil {
			break
		}
		err = e.SubmitAnswer(ctx, userID, p.QuestionNumber, p.SelectedOption)
	default:
		err = fmt.Errorf("unknown message type %q: %w", msg.Type, ErrInvalidParams)
	}

	if err != nil {
		d.replyError(userID, msg.Type, err)
	}
}

// withMatch decodes the common {match_id} payload shape, resolves the engine
// and runs fn on it.
func (d *Dispatcher) withMatch(ctx context.Context, payload json.RawMessage, fn func(*Engine) error) error {
	var p struct {
		MatchID string `json:"match_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("malformed payload: %w", ErrInvalidParams)
	}
	matchID, err := uuid.Parse(p.MatchID)
	if err != nil {
		return fmt.Errorf("malformed match id: %w", ErrInvalidParams)
	}
	e, err := d.registry.Get(ctx, matchID)
	if err != nil {
		return err
	}
	return fn(e)
}

func (d *Dispatcher) replyError(userID uuid.UUID, inType string, err error) {
	code := ErrCode(err)
	d.logger.Debug().Err(err).Str("user_id", userID.String()).Str("in_type", inType).Str("code", code).Msg("command rejected")
	sendErr := d.sender.SendToUser(userID, ws.NewMessage(ws.TypeError, ws.ErrorPayload{
		Code:    code,
		Message: err.Error(),
	}))
	if sendErr != nil {
		d.logger.Debug().Err(sendErr).Str("user_id", userID.String()).Msg("error reply not delivered")
	}
}
