package match

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadStore serves one durable match for registry rehydration tests.
type loadStore struct {
	stubStore
	match   *Match
	players []Participant
}

func (s *loadStore) GetMatch(_ context.Context, matchID uuid.UUID) (*Match, error) {
	if s.match == nil || s.match.ID != matchID {
		return nil, ErrNotFound
	}
	dup := *s.match
	return &dup, nil
}

func (s *loadStore) GetParticipants(context.Context, uuid.UUID) ([]Participant, error) {
	return s.players, nil
}

func (s *loadStore) GetQuestionInstances(_ context.Context, matchID uuid.UUID) ([]QuestionInstance, error) {
	return []QuestionInstance{{
		ID: uuid.New(), MatchID: matchID, Number: 1,
		Prompt: "p", Options: []string{"a", "b"}, CorrectOption: "a",
	}}, nil
}

func newTestRegistry(store Store) *Registry {
	return NewRegistry(store, newStubRooms(), nil, Config{}, zerolog.Nop())
}

func TestRegistryUnknownMatch(t *testing.T) {
	reg := newTestRegistry(&loadStore{})
	_, err := reg.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryRehydratesOnce(t *testing.T) {
	host := uuid.New()
	m := &Match{ID: uuid.New(), HostID: host, Status: StatusScheduled, QuestionDurationSec: 20, TotalQuestions: 1}
	store := &loadStore{match: m, players: []Participant{{MatchID: m.ID, UserID: host}}}
	reg := newTestRegistry(store)

	first, err := reg.Get(context.Background(), m.ID)
	require.NoError(t, err)
	second, err := reg.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Same(t, first, second)

	got, ok := reg.Lookup(m.ID)
	assert.True(t, ok)
	assert.Same(t, first, got)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reg.Shutdown(ctx)
}

func TestRegistryCancelsAbandonedOngoingMatch(t *testing.T) {
	m := &Match{ID: uuid.New(), HostID: uuid.New(), Status: StatusOngoing, QuestionDurationSec: 20, TotalQuestions: 1}
	store := &loadStore{match: m}
	reg := newTestRegistry(store)

	_, err := reg.Get(context.Background(), m.ID)
	assert.ErrorIs(t, err, ErrCancelled)

	store.mu.Lock()
	assert.True(t, store.canceled)
	store.mu.Unlock()
}

func TestRegistryRefusesCanceledMatch(t *testing.T) {
	m := &Match{ID: uuid.New(), Status: StatusCanceled}
	reg := newTestRegistry(&loadStore{match: m})

	_, err := reg.Get(context.Background(), m.ID)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestRegistryShutdownRefusesNewEngines(t *testing.T) {
	m := &Match{ID: uuid.New(), Status: StatusScheduled, QuestionDurationSec: 20, TotalQuestions: 1}
	reg := newTestRegistry(&loadStore{match: m})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reg.Shutdown(ctx)

	_, err := reg.Get(context.Background(), m.ID)
	assert.ErrorIs(t, err, ErrShuttingDown)
}
