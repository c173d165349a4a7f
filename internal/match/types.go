package match

import (
	"time"

	"github.com/google/uuid"
)

// Match lifecycle states. Status is monotonic except that a scheduled match
// may jump straight to canceled.
const (
	StatusScheduled = "scheduled"
	StatusOngoing   = "ongoing"
	StatusFinished  = "finished"
	StatusCanceled  = "canceled"
)

// Per-question sub-states while a match is ongoing.
const (
	SubStateAsking   = "asking"
	SubStateResolved = "resolved"
)

// Match is a single multi-player trivia session.
type Match struct {
	ID                  uuid.UUID
	HostID              uuid.UUID
	Status              string
	Category            string
	Difficulty          string
	QuestionDurationSec int
	TotalQuestions      int
	CurrentQuestion     int // 1-based, 0 before start
	CreatedAt           time.Time
	StartedAt           *time.Time
	EndedAt             *time.Time
}

// Participant is a user bound to a specific match with a running score.
type Participant struct {
	MatchID     uuid.UUID
	UserID      uuid.UUID
	DisplayName string
	Score       int
	JoinedAt    time.Time
}

// QuestionInstance is a question as used in one specific match. Options hold
// the order shown to every participant; they are shuffled once at match
// creation. CorrectOption is the exact string compared against submissions.
type QuestionInstance struct {
	ID            uuid.UUID
	MatchID       uuid.UUID
	Number        int // 1..TotalQuestions, unique within the match
	Prompt        string
	Options       []string
	CorrectOption string
	ContentHash   string // opaque pointer into the upstream pool, audit only
}

// Answer is one participant's response, or auto-miss, to one question
// instance. SelectedOption is nil when recorded as a timeout auto-miss. Once
// written it is immutable.
type Answer struct {
	QuestionInstanceID uuid.UUID
	MatchID            uuid.UUID
	UserID             uuid.UUID
	QuestionNumber     int
	SelectedOption     *string
	IsCorrect          bool
	ResponseTimeMs     int64
	PointsAwarded      int
	CreatedAt          time.Time
}

// ScoreRow is the final per-participant result written at settlement.
type ScoreRow struct {
	MatchID           uuid.UUID
	UserID            uuid.UUID
	TotalScore        int
	CorrectCount      int
	TotalQuestions    int
	AvgResponseTimeMs float64
	Won               bool
}

// StatsDelta is the lifetime-stats contribution of one finished match for one
// user, applied in the settlement transaction.
type StatsDelta struct {
	UserID            uuid.UUID
	Score             int
	Won               bool
	CorrectAnswers    int
	TotalAnswers      int
	AvgResponseTimeMs float64
	PlayedAt          time.Time
}

// SourceQuestion is what the question source hands over at match creation.
type SourceQuestion struct {
	Prompt        string
	CorrectOption string
	WrongOptions  []string
	ContentHash   string
}
