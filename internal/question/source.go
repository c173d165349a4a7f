package question

import (
	"context"

	"github.com/quizarena/quizarena/internal/match"
)

// Source adapts the question service to what match creation consumes.
type Source struct {
	svc *Service
}

var _ match.QuestionSource = (*Source)(nil)

func NewSource(svc *Service) *Source {
	return &Source{svc: svc}
}

func (s *Source) FetchRandomQuestions(ctx context.Context, category, difficulty string, n int) ([]match.SourceQuestion, error) {
	qs, err := s.svc.Pack(ctx, PackRequest{Category: category, Difficulty: difficulty, Amount: n})
	if err != nil {
		return nil, err
	}
	out := make([]match.SourceQuestion, len(qs))
	for i, q := range qs {
		out[i] = match.SourceQuestion{
			Prompt:        q.Prompt,
			CorrectOption: q.CorrectOption,
			WrongOptions:  q.WrongOptions,
			ContentHash:   q.ContentHash,
		}
	}
	return out, nil
}
