package match

import "errors"

// Validation errors. These are reported to the caller as typed error events
// and never mutate state.
var (
	ErrNotFound            = errors.New("match not found")
	ErrNotAPlayer          = errors.New("user is not a player of this match")
	ErrCancelled           = errors.New("match is cancelled")
	ErrNotHost             = errors.New("only the host may do this")
	ErrNotScheduled        = errors.New("match is not in the scheduled state")
	ErrNoPlayers           = errors.New("match has no players")
	ErrMatchNotOngoing     = errors.New("match is not ongoing")
	ErrNotAParticipant     = errors.New("user is not a participant of this match")
	ErrWrongQuestion       = errors.New("answer does not target the current question")
	ErrAlreadyAnswered     = errors.New("question already answered")
	ErrOptionNotRecognised = errors.New("selected option is not one of the question's options")
	ErrWrongSubState       = errors.New("operation not valid in the current question phase")
	ErrInvalidParams       = errors.New("invalid match parameters")
	ErrPoolExhausted       = errors.New("question pool could not satisfy the request")
)

// Transient errors. Retryable from the caller's point of view.
var (
	ErrBusy         = errors.New("match engine busy, retry")
	ErrShuttingDown = errors.New("server is shutting down")
)

// ErrCode maps an engine error to its machine code on the wire.
func ErrCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotAPlayer):
		return "not_a_player"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrNotHost):
		return "not_host"
	case errors.Is(err, ErrNotScheduled):
		return "not_scheduled"
	case errors.Is(err, ErrNoPlayers):
		return "no_players"
	case errors.Is(err, ErrMatchNotOngoing):
		return "match_not_ongoing"
	case errors.Is(err, ErrNotAParticipant):
		return "not_a_participant"
	case errors.Is(err, ErrWrongQuestion):
		return "wrong_question"
	case errors.Is(err, ErrAlreadyAnswered):
		return "already_answered"
	case errors.Is(err, ErrOptionNotRecognised):
		return "option_not_recognised"
	case errors.Is(err, ErrWrongSubState):
		return "wrong_sub_state"
	case errors.Is(err, ErrInvalidParams):
		return "invalid_params"
	case errors.Is(err, ErrPoolExhausted):
		return "pool_exhausted"
	case errors.Is(err, ErrShuttingDown):
		return "shutting_down"
	default:
		return "busy"
	}
}
