package match

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/quizarena/quizarena/pkg/ws"
)

// Store is the durable side of the engine. Every state transition is mirrored
// here; authoritative reads on startup or reattach come from here. Grouped
// operations (answer insert + score bump, settlement) are atomic.
type Store interface {
	CreateMatch(ctx context.Context, m Match, players []Participant, questions []QuestionInstance) error
	GetMatch(ctx context.Context, matchID uuid.UUID) (*Match, error)
	GetParticipants(ctx context.Context, matchID uuid.UUID) ([]Participant, error)
	GetQuestionInstances(ctx context.Context, matchID uuid.UUID) ([]QuestionInstance, error)
	GetAnswer(ctx context.Context, questionInstanceID, userID uuid.UUID) (*Answer, error)

	// InsertAnswer writes an answer row and bumps the participant's score in
	// one transaction. Returns ErrAlreadyAnswered on the
	// (question_instance, user) uniqueness violation.
	InsertAnswer(ctx context.Context, ans Answer, scoreDelta int) error
	InsertAutoMisses(ctx context.Context, answers []Answer) error

	SetMatchStarted(ctx context.Context, matchID uuid.UUID, startedAt time.Time) error
	SetCurrentQuestion(ctx context.Context, matchID uuid.UUID, number int) error

	// Settle finishes the match in a single transaction: status, per-player
	// score rows and lifetime stats updates all commit or none do.
	Settle(ctx context.Context, matchID uuid.UUID, endedAt time.Time, scores []ScoreRow, stats []StatsDelta) error
	CancelMatch(ctx context.Context, matchID uuid.UUID, endedAt time.Time) error
	DeleteMatchCascade(ctx context.Context, matchID uuid.UUID) error
}

// QuestionSource supplies the question pool consulted once at match creation.
type QuestionSource interface {
	FetchRandomQuestions(ctx context.Context, category, difficulty string, n int) ([]SourceQuestion, error)
}

// Rooms is the broadcast fabric the engine pushes events through. Implemented
// by *ws.Hub; stubbed in tests.
type Rooms interface {
	Attach(matchID, userID uuid.UUID) error
	Detach(matchID, userID uuid.UUID)
	IsAttached(matchID, userID uuid.UUID) bool
	ActiveCount(matchID uuid.UUID) int
	Broadcast(matchID uuid.UUID, msg ws.Message)
	BroadcastExcept(matchID, exclude uuid.UUID, msg ws.Message)
	SendTo(matchID, userID uuid.UUID, msg ws.Message)
	CloseRoom(matchID uuid.UUID)
}

// Recorder receives final results after settlement commits. Failures are
// logged, never propagated; recording must not block the engine.
type Recorder interface {
	RecordMatch(ctx context.Context, matchID uuid.UUID, scores []ScoreRow) error
}
