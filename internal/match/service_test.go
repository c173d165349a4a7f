package match

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	questions []SourceQuestion
	err       error
}

func (s *stubSource) FetchRandomQuestions(_ context.Context, _, _ string, n int) ([]SourceQuestion, error) {
	if s.err != nil {
		return nil, s.err
	}
	if n > len(s.questions) {
		n = len(s.questions)
	}
	return s.questions[:n], nil
}

func poolOf(n int) []SourceQuestion {
	out := make([]SourceQuestion, n)
	for i := range out {
		out[i] = SourceQuestion{
			Prompt:        "prompt",
			CorrectOption: "right",
			WrongOptions:  []string{"wrong1", "wrong2", "wrong3"},
			ContentHash:   uuid.NewString(),
		}
	}
	return out
}

type captureStore struct {
	stubStore
	match     Match
	players   []Participant
	questions []QuestionInstance
}

func (s *captureStore) CreateMatch(_ context.Context, m Match, players []Participant, questions []QuestionInstance) error {
	s.match = m
	s.players = players
	s.questions = questions
	return nil
}

func newTestService(store Store, source QuestionSource) *Service {
	return NewService(store, source, ServiceConfig{}, zerolog.Nop())
}

func TestCreateValidatesQuestionCount(t *testing.T) {
	svc := newTestService(&captureStore{}, &stubSource{questions: poolOf(60)})

	_, err := svc.Create(context.Background(), CreateParams{HostID: uuid.New(), TotalQuestions: 0})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = svc.Create(context.Background(), CreateParams{HostID: uuid.New(), TotalQuestions: 51})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestCreateValidatesDuration(t *testing.T) {
	svc := newTestService(&captureStore{}, &stubSource{questions: poolOf(5)})

	_, err := svc.Create(context.Background(), CreateParams{
		HostID: uuid.New(), TotalQuestions: 5, QuestionDurationSec: 2,
	})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestCreateShortPoolFails(t *testing.T) {
	svc := newTestService(&captureStore{}, &stubSource{questions: poolOf(3)})

	_, err := svc.Create(context.Background(), CreateParams{HostID: uuid.New(), TotalQuestions: 5})
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestCreateSourceErrorPropagates(t *testing.T) {
	svc := newTestService(&captureStore{}, &stubSource{err: errors.New("upstream down")})

	_, err := svc.Create(context.Background(), CreateParams{HostID: uuid.New(), TotalQuestions: 5})
	assert.ErrorContains(t, err, "upstream down")
}

func TestCreatePersistsHostAndPlayers(t *testing.T) {
	store := &captureStore{}
	svc := newTestService(store, &stubSource{questions: poolOf(5)})
	host, friend := uuid.New(), uuid.New()

	m, err := svc.Create(context.Background(), CreateParams{
		HostID:          host,
		HostDisplayName: "host",
		TotalQuestions:  5,
		Players: []PlayerRef{
			{UserID: friend, DisplayName: "friend"},
			{UserID: host, DisplayName: "host-again"}, // duplicate host is dropped
		},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, m.Status)
	assert.Equal(t, 20, m.QuestionDurationSec)

	require.Len(t, store.players, 2)
	assert.Equal(t, host, store.players[0].UserID)
	assert.Equal(t, friend, store.players[1].UserID)

	require.Len(t, store.questions, 5)
	for i, q := range store.questions {
		assert.Equal(t, i+1, q.Number)
		assert.Equal(t, "right", q.CorrectOption)
		assert.Contains(t, q.Options, "right")
		assert.Len(t, q.Options, 4)
	}
}

func TestOptionShuffleIsDeterministicPerMatch(t *testing.T) {
	matchID := uuid.New()
	pool := poolOf(3)

	first := buildInstances(matchID, pool)
	second := buildInstances(matchID, pool)

	for i := range first {
		assert.Equal(t, first[i].Options, second[i].Options, "question %d", i+1)
	}
}

func TestOptionShuffleVariesAcrossMatches(t *testing.T) {
	pool := poolOf(10)

	a := buildInstances(uuid.New(), pool)
	b := buildInstances(uuid.New(), pool)

	same := true
	for i := range a {
		if !assert.ObjectsAreEqual(a[i].Options, b[i].Options) {
			same = false
			break
		}
	}
	assert.False(t, same, "two matches produced identical option orders for all 10 questions")
}
