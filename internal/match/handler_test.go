package match

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizarena/quizarena/pkg/ws"
)

type captureSender struct {
	mu   sync.Mutex
	sent []ws.Message
}

func (c *captureSender) SendToUser(_ uuid.UUID, msg ws.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureSender) lastError(t *testing.T) ws.ErrorPayload {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent)
	last := c.sent[len(c.sent)-1]
	require.Equal(t, ws.TypeError, last.Type)
	var p ws.ErrorPayload
	require.NoError(t, json.Unmarshal(last.Payload, &p))
	return p
}

func newTestDispatcher(store Store) (*Dispatcher, *captureSender) {
	sender := &captureSender{}
	reg := NewRegistry(store, newStubRooms(), nil, Config{}, zerolog.Nop())
	return NewDispatcher(reg, sender, zerolog.Nop()), sender
}

func TestDispatchUnknownType(t *testing.T) {
	d, sender := newTestDispatcher(&loadStore{})

	d.Dispatch(context.Background(), uuid.New(), ws.Message{Type: "match:mystery"})

	assert.Equal(t, "invalid_params", sender.lastError(t).Code)
}

func TestDispatchMalformedPayload(t *testing.T) {
	d, sender := newTestDispatcher(&loadStore{})

	d.Dispatch(context.Background(), uuid.New(), ws.Message{
		Type:    ws.TypeMatchJoin,
		Payload: json.RawMessage(`{"match_id": 42}`),
	})

	assert.Equal(t, "invalid_params", sender.lastError(t).Code)
}

func TestDispatchUnknownMatch(t *testing.T) {
	d, sender := newTestDispatcher(&loadStore{})

	payload, _ := json.Marshal(ws.MatchJoinPayload{MatchID: uuid.NewString()})
	d.Dispatch(context.Background(), uuid.New(), ws.Message{Type: ws.TypeMatchJoin, Payload: payload})

	assert.Equal(t, "not_found", sender.lastError(t).Code)
}

func TestDispatchRoutesJoin(t *testing.T) {
	host := uuid.New()
	m := &Match{ID: uuid.New(), HostID: host, Status: StatusScheduled, QuestionDurationSec: 20, TotalQuestions: 1}
	store := &loadStore{match: m, players: []Participant{{MatchID: m.ID, UserID: host, DisplayName: "host"}}}
	d, sender := newTestDispatcher(store)

	payload, _ := json.Marshal(ws.MatchJoinPayload{MatchID: m.ID.String()})
	d.Dispatch(context.Background(), host, ws.Message{Type: ws.TypeMatchJoin, Payload: payload})

	// A successful join produces no error reply.
	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Empty(t, sender.sent)
}

func TestDispatchRejectionCarriesCode(t *testing.T) {
	host, stranger := uuid.New(), uuid.New()
	m := &Match{ID: uuid.New(), HostID: host, Status: StatusScheduled, QuestionDurationSec: 20, TotalQuestions: 1}
	store := &loadStore{match: m, players: []Participant{{MatchID: m.ID, UserID: host}}}
	d, sender := newTestDispatcher(store)

	payload, _ := json.Marshal(ws.MatchJoinPayload{MatchID: m.ID.String()})
	d.Dispatch(context.Background(), stranger, ws.Message{Type: ws.TypeMatchJoin, Payload: payload})

	assert.Equal(t, "not_a_player", sender.lastError(t).Code)
}
