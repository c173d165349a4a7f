package question

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizarena/quizarena/internal/question/external"
)

// PoolRepo is the curated question store.
type PoolRepo interface {
	SelectRandom(ctx context.Context, category, difficulty string, n int) ([]Question, error)
	Insert(ctx context.Context, q Question) error
}

// PackCache is the short-lived pack cache in front of external providers.
type PackCache interface {
	Get(ctx context.Context, req PackRequest) ([]Question, error)
	Set(ctx context.Context, req PackRequest, qs []Question) error
}

// ExternalClient fetches questions from an upstream trivia API.
type ExternalClient interface {
	Fetch(ctx context.Context, amount int, difficulty string) ([]external.OpenTDBQuestion, error)
}

// Service assembles question packs: curated pool first, the external
// provider as fallback when the pool runs short. Fallback results are cached
// and folded back into the pool for next time.
type Service struct {
	repo     PoolRepo
	cache    PackCache
	external ExternalClient
	logger   zerolog.Logger
}

func NewService(repo PoolRepo, cache PackCache, externalClient ExternalClient, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		external: externalClient,
		logger:   logger.With().Str("component", "question_service").Logger(),
	}
}

// Pack returns up to req.Amount questions. A short pool is topped up from the
// external provider; an unreachable provider is not fatal as long as the pool
// alone covers the request.
func (s *Service) Pack(ctx context.Context, req PackRequest) ([]Question, error) {
	if req.Amount < 1 {
		return nil, fmt.Errorf("pack amount must be positive, got %d", req.Amount)
	}

	pool, err := s.repo.SelectRandom(ctx, req.Category, req.Difficulty, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("curated pool: %w", err)
	}
	if len(pool) >= req.Amount {
		return pool[:req.Amount], nil
	}

	// Fetch the full pack size externally so duplicates of pool questions
	// can be discarded without running short.
	extra, err := s.fetchExternal(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("pool has %d of %d and external fetch failed: %w", len(pool), req.Amount, err)
	}

	seen := make(map[string]bool, len(pool))
	for _, q := range pool {
		seen[q.ContentHash] = true
	}
	for _, q := range extra {
		if seen[q.ContentHash] {
			continue
		}
		seen[q.ContentHash] = true
		pool = append(pool, q)
		if len(pool) == req.Amount {
			break
		}
	}
	if len(pool) < req.Amount {
		return nil, fmt.Errorf("only %d of %d questions available", len(pool), req.Amount)
	}
	return pool, nil
}

func (s *Service) fetchExternal(ctx context.Context, req PackRequest) ([]Question, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, req)
		if err != nil {
			s.logger.Warn().Err(err).Msg("pack cache read failed")
		} else if len(cached) >= req.Amount {
			return cached, nil
		}
	}
	if s.external == nil {
		return nil, fmt.Errorf("no external provider configured")
	}

	raw, err := s.external.Fetch(ctx, req.Amount, req.Difficulty)
	if err != nil {
		return nil, err
	}

	qs := make([]Question, 0, len(raw))
	for _, r := range raw {
		q := Question{
			ID:            uuid.New(),
			Prompt:        r.Question,
			CorrectOption: r.CorrectAnswer,
			WrongOptions:  r.IncorrectAnswers,
			Category:      req.Category,
			Difficulty:    r.Difficulty,
			ContentHash:   ContentHash(r.Question, r.CorrectAnswer),
		}
		qs = append(qs, q)
		if err := s.repo.Insert(ctx, q); err != nil {
			s.logger.Warn().Err(err).Msg("fold external question into pool failed")
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, req, qs); err != nil {
			s.logger.Warn().Err(err).Msg("pack cache write failed")
		}
	}
	return qs, nil
}
