package match

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Registry maps match IDs to live engines, rehydrating from storage on
// demand. A match has at most one engine per process.
type Registry struct {
	store    Store
	rooms    Rooms
	recorder Recorder
	cfg      Config
	logger   zerolog.Logger

	mu      sync.Mutex
	engines map[uuid.UUID]*Engine
	closing bool
}

func NewRegistry(store Store, rooms Rooms, recorder Recorder, cfg Config, logger zerolog.Logger) *Registry {
	return &Registry{
		store:    store,
		rooms:    rooms,
		recorder: recorder,
		cfg:      cfg.withDefaults(),
		logger:   logger.With().Str("component", "match_registry").Logger(),
		engines:  make(map[uuid.UUID]*Engine),
	}
}

// Get returns the live engine for matchID, creating one from storage when
// none is running. Matches that were ONGOING at process death cannot be
// resumed and are canceled on first touch.
func (r *Registry) Get(ctx context.Context, matchID uuid.UUID) (*Engine, error) {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if e, ok := r.engines[matchID]; ok {
		r.mu.Unlock()
		return e, nil
	}
	r.mu.Unlock()

	m, err := r.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	switch m.Status {
	case StatusCanceled:
		return nil, ErrCancelled
	case StatusOngoing:
		// No live engine means the process that ran this match is gone.
		now := time.Now()
		if err := r.store.CancelMatch(ctx, matchID, now); err != nil {
			r.logger.Error().Err(err).Str("match_id", matchID.String()).Msg("cancel abandoned match failed")
		} else {
			r.logger.Warn().Str("match_id", matchID.String()).Msg("abandoned ongoing match canceled")
		}
		return nil, ErrCancelled
	}

	participants, err := r.store.GetParticipants(ctx, matchID)
	if err != nil {
		return nil, err
	}
	questions, err := r.store.GetQuestionInstances(ctx, matchID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return nil, ErrShuttingDown
	}
	if e, ok := r.engines[matchID]; ok {
		return e, nil
	}

	e := NewEngine(m, participants, questions, r.store, r.rooms, r.recorder, r.cfg, r.logger)
	e.onStop = r.remove
	r.engines[matchID] = e
	activeMatches.Inc()
	go e.Run()
	return e, nil
}

// Lookup returns a running engine without touching storage.
func (r *Registry) Lookup(matchID uuid.UUID) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[matchID]
	return e, ok
}

// OnDetach is wired as the room hub's detach handler.
func (r *Registry) OnDetach(matchID, userID uuid.UUID) {
	if e, ok := r.Lookup(matchID); ok {
		e.NotifyDetach(userID)
	}
}

func (r *Registry) remove(matchID uuid.UUID) {
	r.mu.Lock()
	if _, ok := r.engines[matchID]; ok {
		delete(r.engines, matchID)
		activeMatches.Dec()
	}
	r.mu.Unlock()
}

// Shutdown stops every engine and waits for them up to the context deadline.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	r.closing = true
	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	r.mu.Unlock()

	for _, e := range engines {
		e.Shutdown()
	}
	for _, e := range engines {
		select {
		case <-e.Done():
		case <-ctx.Done():
			r.logger.Warn().Msg("shutdown deadline reached with engines still draining")
			return
		}
	}
}
