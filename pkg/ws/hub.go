package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Hub tracks live connections and the room each one belongs to. Broadcasts for
// a given match are funnelled through a per-room queue goroutine, so every
// surviving connection observes them in the order the engine handed them over.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*Connection // user_id -> connection
	rooms       map[uuid.UUID]*room       // match_id -> room
	queueCap    int
	onDetach    func(matchID, userID uuid.UUID)
	logger      zerolog.Logger
}

// NewHub creates a hub. queueCap bounds both the per-room outbound queue and
// each connection's send buffer.
func NewHub(logger zerolog.Logger, queueCap int) *Hub {
	if queueCap <= 0 {
		queueCap = 256
	}
	return &Hub{
		connections: make(map[uuid.UUID]*Connection),
		rooms:       make(map[uuid.UUID]*room),
		queueCap:    queueCap,
		logger:      logger.With().Str("component", "ws_hub").Logger(),
	}
}

// QueueCap returns the configured send buffer capacity.
func (h *Hub) QueueCap() int { return h.queueCap }

// SetDetachHandler registers a callback invoked whenever a connection is
// removed from a room (disconnect, backpressure, explicit leave).
func (h *Hub) SetDetachHandler(fn func(matchID, userID uuid.UUID)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDetach = fn
}

// Register adds a connection for a user, closing any previous one.
func (h *Hub) Register(userID uuid.UUID, conn *Connection) {
	h.mu.Lock()
	if old, exists := h.connections[userID]; exists {
		old.Close()
	}
	h.connections[userID] = conn
	h.mu.Unlock()

	h.logger.Info().Str("user_id", userID.String()).Msg("connection registered")
}

// Unregister removes a connection if it is still the user's current one and
// detaches it from its room.
func (h *Hub) Unregister(userID uuid.UUID, conn *Connection) {
	h.mu.Lock()
	current, exists := h.connections[userID]
	if !exists || current != conn {
		h.mu.Unlock()
		return
	}
	delete(h.connections, userID)
	conn.Close()

	var detached *room
	for _, r := range h.rooms {
		if r.remove(userID) {
			detached = r
			break
		}
	}
	onDetach := h.onDetach
	h.mu.Unlock()

	if detached != nil && onDetach != nil {
		onDetach(detached.matchID, userID)
	}
	h.logger.Info().Str("user_id", userID.String()).Msg("connection unregistered")
}

// Attach binds the user's current connection to a match room. A connection
// belongs to at most one room: attaching moves it out of any previous room.
func (h *Hub) Attach(matchID, userID uuid.UUID) error {
	h.mu.Lock()
	conn, exists := h.connections[userID]
	if !exists {
		h.mu.Unlock()
		return ErrConnectionNotFound
	}
	for id, r := range h.rooms {
		if id != matchID {
			r.remove(userID)
		}
	}
	r, ok := h.rooms[matchID]
	if !ok {
		r = newRoom(matchID, h, h.queueCap)
		h.rooms[matchID] = r
		go r.run()
	}
	r.add(userID, conn)
	h.mu.Unlock()
	return nil
}

// Detach removes the user from the match room. Detaching a user that owns no
// room membership is a no-op.
func (h *Hub) Detach(matchID, userID uuid.UUID) {
	h.mu.Lock()
	r, ok := h.rooms[matchID]
	onDetach := h.onDetach
	h.mu.Unlock()
	if !ok {
		return
	}
	if r.remove(userID) && onDetach != nil {
		onDetach(matchID, userID)
	}
}

// IsAttached reports whether the user has a live connection in the room.
func (h *Hub) IsAttached(matchID, userID uuid.UUID) bool {
	h.mu.RLock()
	r, ok := h.rooms[matchID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return r.has(userID)
}

// ActiveCount returns the number of live connections in a room.
func (h *Hub) ActiveCount(matchID uuid.UUID) int {
	h.mu.RLock()
	r, ok := h.rooms[matchID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	return r.size()
}

// Broadcast enqueues a message for every connection in the room.
func (h *Hub) Broadcast(matchID uuid.UUID, msg Message) {
	h.enqueue(matchID, envelope{msg: msg})
}

// BroadcastExcept enqueues a message for every room connection except one.
func (h *Hub) BroadcastExcept(matchID, exclude uuid.UUID, msg Message) {
	h.enqueue(matchID, envelope{msg: msg, except: exclude})
}

// SendTo enqueues a message for one room member, keeping its order relative to
// the room's broadcasts.
func (h *Hub) SendTo(matchID, userID uuid.UUID, msg Message) {
	h.enqueue(matchID, envelope{msg: msg, only: userID})
}

// SendToUser delivers a message directly to a user's connection, outside any
// room ordering. Used for errors before the user has joined a room.
func (h *Hub) SendToUser(userID uuid.UUID, msg Message) error {
	h.mu.RLock()
	conn, exists := h.connections[userID]
	h.mu.RUnlock()
	if !exists {
		return ErrConnectionNotFound
	}
	return conn.Send(msg)
}

// CloseRoom drops a room and its queue goroutine. Members stay connected.
func (h *Hub) CloseRoom(matchID uuid.UUID) {
	h.mu.Lock()
	r, ok := h.rooms[matchID]
	if ok {
		delete(h.rooms, matchID)
	}
	h.mu.Unlock()
	if ok {
		r.stop()
	}
}

func (h *Hub) enqueue(matchID uuid.UUID, env envelope) {
	h.mu.RLock()
	r, ok := h.rooms[matchID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	// The queue goroutine never blocks on delivery (Connection.Send is
	// buffered and slow members are detached), so a full queue only means the
	// producer briefly waits for it to drain. Events are never dropped
	// room-wide.
	select {
	case r.queue <- env:
	case <-r.done:
	}
}

// detachSlow removes a connection that cannot keep up with the broadcast lane.
func (h *Hub) detachSlow(matchID, userID uuid.UUID) {
	h.logger.Warn().
		Str("match_id", matchID.String()).
		Str("user_id", userID.String()).
		Msg("detaching slow connection")
	h.Detach(matchID, userID)
}

type envelope struct {
	msg    Message
	only   uuid.UUID // non-zero: deliver to this member only
	except uuid.UUID // non-zero: skip this member
}

// room holds the live members of one match and serializes their outbound
// events through a single queue goroutine.
type room struct {
	matchID uuid.UUID
	hub     *Hub
	queue   chan envelope
	done    chan struct{}

	mu      sync.RWMutex
	members map[uuid.UUID]*Connection
}

func newRoom(matchID uuid.UUID, hub *Hub, queueCap int) *room {
	return &room{
		matchID: matchID,
		hub:     hub,
		queue:   make(chan envelope, queueCap),
		done:    make(chan struct{}),
		members: make(map[uuid.UUID]*Connection),
	}
}

func (r *room) run() {
	for {
		select {
		case <-r.done:
			return
		case env := <-r.queue:
			r.deliver(env)
		}
	}
}

func (r *room) deliver(env envelope) {
	type target struct {
		userID uuid.UUID
		conn   *Connection
	}
	r.mu.RLock()
	targets := make([]target, 0, len(r.members))
	for userID, conn := range r.members {
		if env.only != uuid.Nil && userID != env.only {
			continue
		}
		if env.except != uuid.Nil && userID == env.except {
			continue
		}
		targets = append(targets, target{userID, conn})
	}
	r.mu.RUnlock()

	for _, t := range targets {
		if err := t.conn.Send(env.msg); err != nil {
			r.hub.detachSlow(r.matchID, t.userID)
		}
	}
}

func (r *room) add(userID uuid.UUID, conn *Connection) {
	r.mu.Lock()
	r.members[userID] = conn
	r.mu.Unlock()
}

func (r *room) remove(userID uuid.UUID) bool {
	r.mu.Lock()
	_, ok := r.members[userID]
	if ok {
		delete(r.members, userID)
	}
	r.mu.Unlock()
	return ok
}

func (r *room) has(userID uuid.UUID) bool {
	r.mu.RLock()
	_, ok := r.members[userID]
	r.mu.RUnlock()
	return ok
}

func (r *room) size() int {
	r.mu.RLock()
	n := len(r.members)
	r.mu.RUnlock()
	return n
}

func (r *room) stop() {
	close(r.done)
}
