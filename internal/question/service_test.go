package question

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizarena/quizarena/internal/question/external"
)

type stubRepo struct {
	mu       sync.Mutex
	pool     []Question
	inserted []Question
	err      error
}

func (r *stubRepo) SelectRandom(_ context.Context, _, _ string, n int) ([]Question, error) {
	if r.err != nil {
		return nil, r.err
	}
	if n > len(r.pool) {
		n = len(r.pool)
	}
	return r.pool[:n], nil
}

func (r *stubRepo) Insert(_ context.Context, q Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserted = append(r.inserted, q)
	return nil
}

type memoryCache struct {
	store map[string][]Question
}

func newMemoryCache() *memoryCache {
	return &memoryCache{store: map[string][]Question{}}
}

func (c *memoryCache) key(req PackRequest) string {
	return fmt.Sprintf("%s:%s:%d", req.Category, req.Difficulty, req.Amount)
}

func (c *memoryCache) Get(_ context.Context, req PackRequest) ([]Question, error) {
	return c.store[c.key(req)], nil
}

func (c *memoryCache) Set(_ context.Context, req PackRequest, qs []Question) error {
	c.store[c.key(req)] = qs
	return nil
}

type stubExternal struct {
	calls     int
	questions []external.OpenTDBQuestion
	err       error
}

func (s *stubExternal) Fetch(_ context.Context, amount int, _ string) ([]external.OpenTDBQuestion, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if amount > len(s.questions) {
		amount = len(s.questions)
	}
	return s.questions[:amount], nil
}

func curated(n int) []Question {
	out := make([]Question, n)
	for i := range out {
		prompt := fmt.Sprintf("curated %d", i)
		out[i] = Question{
			ID:            uuid.New(),
			Prompt:        prompt,
			CorrectOption: "yes",
			WrongOptions:  []string{"no", "maybe", "never"},
			ContentHash:   ContentHash(prompt, "yes"),
		}
	}
	return out
}

func upstream(n int) []external.OpenTDBQuestion {
	out := make([]external.OpenTDBQuestion, n)
	for i := range out {
		out[i] = external.OpenTDBQuestion{
			Question:         fmt.Sprintf("external %d", i),
			CorrectAnswer:    "42",
			IncorrectAnswers: []string{"1", "2", "3"},
			Difficulty:       DifficultyMedium,
		}
	}
	return out
}

func TestPackServedFromPoolAlone(t *testing.T) {
	ext := &stubExternal{}
	svc := NewService(&stubRepo{pool: curated(10)}, newMemoryCache(), ext, zerolog.Nop())

	qs, err := svc.Pack(context.Background(), PackRequest{Amount: 5})
	require.NoError(t, err)
	assert.Len(t, qs, 5)
	assert.Zero(t, ext.calls, "external provider consulted despite a sufficient pool")
}

func TestPackToppedUpFromExternal(t *testing.T) {
	repo := &stubRepo{pool: curated(2)}
	ext := &stubExternal{questions: upstream(5)}
	svc := NewService(repo, newMemoryCache(), ext, zerolog.Nop())

	qs, err := svc.Pack(context.Background(), PackRequest{Amount: 5})
	require.NoError(t, err)
	assert.Len(t, qs, 5)
	assert.Equal(t, 1, ext.calls)

	// External questions are folded back into the curated pool.
	repo.mu.Lock()
	assert.Len(t, repo.inserted, 5)
	repo.mu.Unlock()
}

func TestPackExternalFailureWithShortPool(t *testing.T) {
	svc := NewService(&stubRepo{pool: curated(2)}, newMemoryCache(), &stubExternal{err: errors.New("timeout")}, zerolog.Nop())

	_, err := svc.Pack(context.Background(), PackRequest{Amount: 5})
	assert.ErrorContains(t, err, "timeout")
}

func TestPackCacheShieldsExternal(t *testing.T) {
	cache := newMemoryCache()
	ext := &stubExternal{questions: upstream(5)}
	svc := NewService(&stubRepo{}, cache, ext, zerolog.Nop())

	_, err := svc.Pack(context.Background(), PackRequest{Amount: 3})
	require.NoError(t, err)
	require.Equal(t, 1, ext.calls)

	_, err = svc.Pack(context.Background(), PackRequest{Amount: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, ext.calls, "second pack should be served from cache")
}

func TestPackDeduplicatesByContentHash(t *testing.T) {
	pool := curated(2)
	dup := external.OpenTDBQuestion{
		Question:         pool[0].Prompt,
		CorrectAnswer:    "yes",
		IncorrectAnswers: []string{"no", "maybe", "never"},
	}
	ext := &stubExternal{questions: append([]external.OpenTDBQuestion{dup}, upstream(3)...)}
	svc := NewService(&stubRepo{pool: pool}, newMemoryCache(), ext, zerolog.Nop())

	qs, err := svc.Pack(context.Background(), PackRequest{Amount: 4})
	require.NoError(t, err)
	require.Len(t, qs, 4)

	hashes := make(map[string]bool)
	for _, q := range qs {
		assert.False(t, hashes[q.ContentHash], "duplicate question in pack")
		hashes[q.ContentHash] = true
	}
}

func TestPackRejectsZeroAmount(t *testing.T) {
	svc := NewService(&stubRepo{}, newMemoryCache(), &stubExternal{}, zerolog.Nop())

	_, err := svc.Pack(context.Background(), PackRequest{Amount: 0})
	assert.Error(t, err)
}
