package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizarena/quizarena/internal/question"
)

// QuestionRepository reads the curated question pool.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository constructs a new question repository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// SelectRandom draws up to n curated questions matching the filters. Empty
// category or difficulty means no filter on that column.
func (r *QuestionRepository) SelectRandom(ctx context.Context, category, difficulty string, n int) ([]question.Question, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, prompt, correct_option, wrong_options, category, difficulty, content_hash
		FROM questions
		WHERE ($1 = '' OR category = $1)
		  AND ($2 = '' OR difficulty = $2)
		ORDER BY random()
		LIMIT $3`, category, difficulty, n)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	defer rows.Close()

	var out []question.Question
	for rows.Next() {
		var q question.Question
		if err := rows.Scan(&q.ID, &q.Prompt, &q.CorrectOption, &q.WrongOptions, &q.Category, &q.Difficulty, &q.ContentHash); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Insert stores one curated question, skipping duplicates by content hash.
func (r *QuestionRepository) Insert(ctx context.Context, q question.Question) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO questions (id, prompt, correct_option, wrong_options, category, difficulty, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (content_hash) DO NOTHING`,
		q.ID, q.Prompt, q.CorrectOption, q.WrongOptions, q.Category, q.Difficulty, q.ContentHash)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}
