package match

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CreateParams describes a match to be scheduled.
type CreateParams struct {
	HostID              uuid.UUID
	HostDisplayName     string
	Category            string
	Difficulty          string
	TotalQuestions      int
	QuestionDurationSec int
	Players             []PlayerRef // invited players besides the host
}

// PlayerRef identifies one invited participant.
type PlayerRef struct {
	UserID      uuid.UUID
	DisplayName string
}

// ServiceConfig bounds what a host may ask for.
type ServiceConfig struct {
	MaxQuestionsPerMatch    int
	DefaultQuestionDuration int // seconds
	MinQuestionDuration     int
	MaxQuestionDuration     int
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.MaxQuestionsPerMatch <= 0 {
		c.MaxQuestionsPerMatch = 50
	}
	if c.DefaultQuestionDuration <= 0 {
		c.DefaultQuestionDuration = 20
	}
	if c.MinQuestionDuration <= 0 {
		c.MinQuestionDuration = 5
	}
	if c.MaxQuestionDuration <= 0 {
		c.MaxQuestionDuration = 120
	}
	return c
}

// Service handles match lifecycle outside the realtime loop: creation,
// lookups and scheduled-match deletion over HTTP.
type Service struct {
	store  Store
	source QuestionSource
	cfg    ServiceConfig
	logger zerolog.Logger
}

func NewService(store Store, source QuestionSource, cfg ServiceConfig, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		source: source,
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("component", "match_service").Logger(),
	}
}

// Create schedules a new match: it draws questions from the pool, freezes
// their option order, and persists the whole thing in one transaction. The
// host is always a participant.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Match, error) {
	if params.TotalQuestions < 1 || params.TotalQuestions > s.cfg.MaxQuestionsPerMatch {
		return nil, fmt.Errorf("total questions must be between 1 and %d: %w", s.cfg.MaxQuestionsPerMatch, ErrInvalidParams)
	}
	duration := params.QuestionDurationSec
	if duration == 0 {
		duration = s.cfg.DefaultQuestionDuration
	}
	if duration < s.cfg.MinQuestionDuration || duration > s.cfg.MaxQuestionDuration {
		return nil, fmt.Errorf("question duration must be between %ds and %ds: %w",
			s.cfg.MinQuestionDuration, s.cfg.MaxQuestionDuration, ErrInvalidParams)
	}

	pool, err := s.source.FetchRandomQuestions(ctx, params.Category, params.Difficulty, params.TotalQuestions)
	if err != nil {
		return nil, fmt.Errorf("fetching questions: %w", err)
	}
	if len(pool) < params.TotalQuestions {
		return nil, fmt.Errorf("pool returned %d of %d questions: %w", len(pool), params.TotalQuestions, ErrPoolExhausted)
	}

	matchID := uuid.New()
	now := time.Now()
	m := Match{
		ID:                  matchID,
		HostID:              params.HostID,
		Status:              StatusScheduled,
		Category:            params.Category,
		Difficulty:          params.Difficulty,
		QuestionDurationSec: duration,
		TotalQuestions:      params.TotalQuestions,
		CreatedAt:           now,
	}

	players := make([]Participant, 0, len(params.Players)+1)
	players = append(players, Participant{
		MatchID:     matchID,
		UserID:      params.HostID,
		DisplayName: params.HostDisplayName,
		JoinedAt:    now,
	})
	for _, ref := range params.Players {
		if ref.UserID == params.HostID {
			continue
		}
		players = append(players, Participant{
			MatchID:     matchID,
			UserID:      ref.UserID,
			DisplayName: ref.DisplayName,
			JoinedAt:    now,
		})
	}

	questions := buildInstances(matchID, pool[:params.TotalQuestions])

	if err := s.store.CreateMatch(ctx, m, players, questions); err != nil {
		return nil, fmt.Errorf("persisting match: %w", err)
	}
	s.logger.Info().
		Str("match_id", matchID.String()).
		Str("host_id", params.HostID.String()).
		Int("questions", params.TotalQuestions).
		Int("players", len(players)).
		Msg("match created")
	return &m, nil
}

// Get returns the durable view of a match with its participants.
func (s *Service) Get(ctx context.Context, matchID uuid.UUID) (*Match, []Participant, error) {
	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}
	participants, err := s.store.GetParticipants(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}
	return m, participants, nil
}

// buildInstances freezes each drawn question into a match-scoped instance
// with a shuffled but stable option order. The shuffle is seeded from the
// match ID and question number so a rebuilt instance list is identical.
func buildInstances(matchID uuid.UUID, pool []SourceQuestion) []QuestionInstance {
	instances := make([]QuestionInstance, len(pool))
	for i, src := range pool {
		number := i + 1
		options := make([]string, 0, len(src.WrongOptions)+1)
		options = append(options, src.CorrectOption)
		options = append(options, src.WrongOptions...)

		rng := rand.New(rand.NewSource(optionSeed(matchID, number)))
		rng.Shuffle(len(options), func(a, b int) {
			options[a], options[b] = options[b], options[a]
		})

		instances[i] = QuestionInstance{
			ID:            uuid.New(),
			MatchID:       matchID,
			Number:        number,
			Prompt:        src.Prompt,
			Options:       options,
			CorrectOption: src.CorrectOption,
			ContentHash:   src.ContentHash,
		}
	}
	return instances
}

func optionSeed(matchID uuid.UUID, number int) int64 {
	h := fnv.New64a()
	h.Write(matchID[:])
	h.Write([]byte{byte(number), byte(number >> 8)})
	return int64(h.Sum64())
}
