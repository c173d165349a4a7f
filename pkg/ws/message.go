package ws

import "encoding/json"

// MessageType constants for the match WebSocket protocol. The sets below are
// closed: the dispatcher rejects unknown inbound types and never emits an
// outbound type that is not listed here.
const (
	// Client -> Server
	TypeMatchJoin    = "match:join"
	TypeMatchLeave   = "match:leave"
	TypeMatchStart   = "match:start"
	TypeMatchAdvance = "match:advance"
	TypeMatchDelete  = "match:delete"
	TypeAnswerSubmit = "answer:submit"

	// Server -> Client
	TypeMatchState      = "match:state"
	TypeMatchStarted    = "match:started"
	TypeQuestionNew     = "question:new"
	TypeTimerStart      = "timer:start"
	TypeTimerTick       = "timer:tick"
	TypeTimerExpired    = "timer:expired"
	TypeAnswerConfirmed = "answer:confirmed"
	TypeAnswerReceived  = "answer:received"
	TypeQuestionEnded   = "question:ended"
	TypeMatchFinished   = "match:finished"
	TypeError           = "error"
)

// Message wraps all WebSocket payloads with a type tag.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage marshals payload into a typed message. Marshal errors are
// impossible for the payload structs in this package, so they are ignored.
func NewMessage(msgType string, payload any) Message {
	msg := Message{Type: msgType}
	if payload != nil {
		msg.Payload, _ = json.Marshal(payload)
	}
	return msg
}

// Client messages (incoming). Every command carries the match it targets.

type MatchJoinPayload struct {
	MatchID string `json:"match_id"`
}

type MatchLeavePayload struct {
	MatchID string `json:"match_id"`
}

type MatchStartPayload struct {
	MatchID string `json:"match_id"`
}

type MatchAdvancePayload struct {
	MatchID string `json:"match_id"`
}

type MatchDeletePayload struct {
	MatchID string `json:"match_id"`
}

type AnswerSubmitPayload struct {
	MatchID         string `json:"match_id"`
	QuestionNumber  int    `json:"question_number"`
	SelectedOption  string `json:"selected_option"`
	ClientLatencyMs int    `json:"client_latency_ms,omitempty"`
}

// Server messages (outgoing).

// MatchStatePayload is the full public snapshot sent to a joiner. The current
// question, when present, never includes the correct option.
type MatchStatePayload struct {
	MatchID          string            `json:"match_id"`
	Status           string            `json:"status"`
	HostID           string            `json:"host_id"`
	QuestionNumber   int               `json:"question_number"`
	TotalQuestions   int               `json:"total_questions"`
	Players          []PlayerScore     `json:"players"`
	CurrentQuestion  *QuestionPayload  `json:"current_question,omitempty"`
	TimeRemainingSec int               `json:"time_remaining_sec,omitempty"`
}

type MatchStartedPayload struct {
	MatchID   string `json:"match_id"`
	StartedAt string `json:"started_at"`
}

type QuestionPayload struct {
	MatchID        string   `json:"match_id"`
	QuestionNumber int      `json:"question_number"`
	TotalQuestions int      `json:"total_questions"`
	Prompt         string   `json:"prompt"`
	Options        []string `json:"options"`
}

type TimerPayload struct {
	MatchID          string `json:"match_id"`
	QuestionNumber   int    `json:"question_number"`
	TimeRemainingSec int    `json:"time_remaining_sec"`
}

// AnswerConfirmedPayload goes to the submitter only. It is the first place a
// participant may see the correct option before the question resolves.
type AnswerConfirmedPayload struct {
	MatchID        string `json:"match_id"`
	QuestionNumber int    `json:"question_number"`
	IsCorrect      bool   `json:"is_correct"`
	CorrectOption  string `json:"correct_option"`
	PointsAwarded  int    `json:"points_awarded"`
	NewScore       int    `json:"new_score"`
}

// AnswerReceivedPayload goes to the room minus the submitter. It carries no
// correctness and no selected option.
type AnswerReceivedPayload struct {
	MatchID        string `json:"match_id"`
	QuestionNumber int    `json:"question_number"`
	UserID         string `json:"user_id"`
}

type QuestionEndedPayload struct {
	MatchID        string        `json:"match_id"`
	QuestionNumber int           `json:"question_number"`
	CorrectOption  string        `json:"correct_option"`
	Scoreboard     []PlayerScore `json:"scoreboard"`
}

type MatchFinishedPayload struct {
	MatchID    string        `json:"match_id"`
	Scoreboard []PlayerScore `json:"scoreboard"`
	Winners    []string      `json:"winners"`
	Aborted    bool          `json:"aborted,omitempty"`
}

type PlayerScore struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
	Rank        int    `json:"rank,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
