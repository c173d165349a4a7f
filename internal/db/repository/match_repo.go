package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizarena/quizarena/internal/match"
)

// MatchRepository implements match.Store over Postgres.
type MatchRepository struct {
	pool *pgxpool.Pool
}

// NewMatchRepository constructs a new match repository.
func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

// CreateMatch persists a match with its players and frozen question
// instances in one transaction.
func (r *MatchRepository) CreateMatch(ctx context.Context, m match.Match, players []match.Participant, questions []match.QuestionInstance) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO matches (id, host_id, status, category, difficulty, question_duration_sec, total_questions, current_question, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			m.ID, m.HostID, m.Status, m.Category, m.Difficulty, m.QuestionDurationSec, m.TotalQuestions, m.CurrentQuestion, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert match: %w", err)
		}

		for _, p := range players {
			_, err = tx.Exec(ctx, `
				INSERT INTO match_players (match_id, user_id, display_name, score, joined_at)
				VALUES ($1, $2, $3, $4, $5)`,
				p.MatchID, p.UserID, p.DisplayName, p.Score, p.JoinedAt)
			if err != nil {
				return fmt.Errorf("insert player %s: %w", p.UserID, err)
			}
		}

		for _, q := range questions {
			_, err = tx.Exec(ctx, `
				INSERT INTO question_instances (id, match_id, number, prompt, options, correct_option, content_hash)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				q.ID, q.MatchID, q.Number, q.Prompt, q.Options, q.CorrectOption, q.ContentHash)
			if err != nil {
				return fmt.Errorf("insert question %d: %w", q.Number, err)
			}
		}
		return nil
	})
}

// GetMatch fetches one match row.
func (r *MatchRepository) GetMatch(ctx context.Context, matchID uuid.UUID) (*match.Match, error) {
	var m match.Match
	err := r.pool.QueryRow(ctx, `
		SELECT id, host_id, status, category, difficulty, question_duration_sec, total_questions, current_question, created_at, started_at, ended_at
		FROM matches WHERE id = $1`, matchID).
		Scan(&m.ID, &m.HostID, &m.Status, &m.Category, &m.Difficulty, &m.QuestionDurationSec,
			&m.TotalQuestions, &m.CurrentQuestion, &m.CreatedAt, &m.StartedAt, &m.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, match.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select match: %w", err)
	}
	return &m, nil
}

// GetParticipants lists a match's players in join order.
func (r *MatchRepository) GetParticipants(ctx context.Context, matchID uuid.UUID) ([]match.Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT match_id, user_id, display_name, score, joined_at
		FROM match_players WHERE match_id = $1 ORDER BY joined_at`, matchID)
	if err != nil {
		return nil, fmt.Errorf("select players: %w", err)
	}
	defer rows.Close()

	var out []match.Participant
	for rows.Next() {
		var p match.Participant
		if err := rows.Scan(&p.MatchID, &p.UserID, &p.DisplayName, &p.Score, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetQuestionInstances lists a match's questions ordered by number.
func (r *MatchRepository) GetQuestionInstances(ctx context.Context, matchID uuid.UUID) ([]match.QuestionInstance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, match_id, number, prompt, options, correct_option, content_hash
		FROM question_instances WHERE match_id = $1 ORDER BY number`, matchID)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	defer rows.Close()

	var out []match.QuestionInstance
	for rows.Next() {
		var q match.QuestionInstance
		if err := rows.Scan(&q.ID, &q.MatchID, &q.Number, &q.Prompt, &q.Options, &q.CorrectOption, &q.ContentHash); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// GetAnswer fetches one participant's answer to one question instance.
func (r *MatchRepository) GetAnswer(ctx context.Context, questionInstanceID, userID uuid.UUID) (*match.Answer, error) {
	var a match.Answer
	err := r.pool.QueryRow(ctx, `
		SELECT question_instance_id, match_id, user_id, question_number, selected_option, is_correct, response_time_ms, points_awarded, created_at
		FROM answers WHERE question_instance_id = $1 AND user_id = $2`, questionInstanceID, userID).
		Scan(&a.QuestionInstanceID, &a.MatchID, &a.UserID, &a.QuestionNumber, &a.SelectedOption,
			&a.IsCorrect, &a.ResponseTimeMs, &a.PointsAwarded, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, match.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select answer: %w", err)
	}
	return &a, nil
}

// InsertAnswer writes the answer row and bumps the live score together. The
// (question_instance_id, user_id) primary key turns a duplicate submission
// into match.ErrAlreadyAnswered.
func (r *MatchRepository) InsertAnswer(ctx context.Context, ans match.Answer, scoreDelta int) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO answers (question_instance_id, match_id, user_id, question_number, selected_option, is_correct, response_time_ms, points_awarded, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			ans.QuestionInstanceID, ans.MatchID, ans.UserID, ans.QuestionNumber, ans.SelectedOption,
			ans.IsCorrect, ans.ResponseTimeMs, ans.PointsAwarded, ans.CreatedAt)
		if err != nil {
			return err
		}
		if scoreDelta != 0 {
			_, err = tx.Exec(ctx, `
				UPDATE match_players SET score = score + $1 WHERE match_id = $2 AND user_id = $3`,
				scoreDelta, ans.MatchID, ans.UserID)
		}
		return err
	})
	if isUniqueViolation(err) {
		return match.ErrAlreadyAnswered
	}
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

// InsertAutoMisses records timeout rows for everyone who did not answer.
// Conflicts are skipped so a retried resolution stays idempotent.
func (r *MatchRepository) InsertAutoMisses(ctx context.Context, answers []match.Answer) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		for _, ans := range answers {
			_, err := tx.Exec(ctx, `
				INSERT INTO answers (question_instance_id, match_id, user_id, question_number, selected_option, is_correct, response_time_ms, points_awarded, created_at)
				VALUES ($1, $2, $3, $4, NULL, FALSE, $5, 0, $6)
				ON CONFLICT (question_instance_id, user_id) DO NOTHING`,
				ans.QuestionInstanceID, ans.MatchID, ans.UserID, ans.QuestionNumber, ans.ResponseTimeMs, ans.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert auto-miss for %s: %w", ans.UserID, err)
			}
		}
		return nil
	})
}

// SetMatchStarted moves a scheduled match to ongoing at question 1.
func (r *MatchRepository) SetMatchStarted(ctx context.Context, matchID uuid.UUID, startedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE matches SET status = $1, started_at = $2, current_question = 1
		WHERE id = $3 AND status = $4`,
		match.StatusOngoing, startedAt, matchID, match.StatusScheduled)
	if err != nil {
		return fmt.Errorf("update match start: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return match.ErrNotScheduled
	}
	return nil
}

// SetCurrentQuestion advances the durable question pointer.
func (r *MatchRepository) SetCurrentQuestion(ctx context.Context, matchID uuid.UUID, number int) error {
	_, err := r.pool.Exec(ctx, `UPDATE matches SET current_question = $1 WHERE id = $2`, number, matchID)
	if err != nil {
		return fmt.Errorf("update current question: %w", err)
	}
	return nil
}

// Settle finishes the match atomically: final status, per-player score rows
// and lifetime stats land in one transaction or not at all.
func (r *MatchRepository) Settle(ctx context.Context, matchID uuid.UUID, endedAt time.Time, scores []match.ScoreRow, stats []match.StatsDelta) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE matches SET status = $1, ended_at = $2 WHERE id = $3 AND status = $4`,
			match.StatusFinished, endedAt, matchID, match.StatusOngoing)
		if err != nil {
			return fmt.Errorf("finish match: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return match.ErrMatchNotOngoing
		}

		for _, s := range scores {
			_, err = tx.Exec(ctx, `
				INSERT INTO match_scores (match_id, user_id, total_score, correct_count, total_questions, avg_response_time_ms, won)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (match_id, user_id) DO UPDATE SET
					total_score = EXCLUDED.total_score,
					correct_count = EXCLUDED.correct_count,
					avg_response_time_ms = EXCLUDED.avg_response_time_ms,
					won = EXCLUDED.won`,
				s.MatchID, s.UserID, s.TotalScore, s.CorrectCount, s.TotalQuestions, s.AvgResponseTimeMs, s.Won)
			if err != nil {
				return fmt.Errorf("insert score for %s: %w", s.UserID, err)
			}
		}

		for _, d := range stats {
			won := 0
			if d.Won {
				won = 1
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO player_stats (user_id, matches_played, wins, total_score, highest_score, average_score, correct_answers, total_answers, avg_response_time_ms, last_played_at)
				VALUES ($1, 1, $2, $3, $3, $3, $4, $5, $6, $7)
				ON CONFLICT (user_id) DO UPDATE SET
					matches_played = player_stats.matches_played + 1,
					wins = player_stats.wins + EXCLUDED.wins,
					total_score = player_stats.total_score + EXCLUDED.total_score,
					highest_score = GREATEST(player_stats.highest_score, EXCLUDED.highest_score),
					average_score = (player_stats.total_score + EXCLUDED.total_score)::double precision
						/ (player_stats.matches_played + 1),
					avg_response_time_ms = CASE
						WHEN player_stats.total_answers + EXCLUDED.total_answers = 0 THEN 0
						ELSE (player_stats.avg_response_time_ms * player_stats.total_answers
							+ EXCLUDED.avg_response_time_ms * EXCLUDED.total_answers)
							/ (player_stats.total_answers + EXCLUDED.total_answers)
					END,
					correct_answers = player_stats.correct_answers + EXCLUDED.correct_answers,
					total_answers = player_stats.total_answers + EXCLUDED.total_answers,
					last_played_at = EXCLUDED.last_played_at`,
				d.UserID, won, d.Score, d.CorrectAnswers, d.TotalAnswers, d.AvgResponseTimeMs, d.PlayedAt)
			if err != nil {
				return fmt.Errorf("upsert stats for %s: %w", d.UserID, err)
			}
		}
		return nil
	})
}

// CancelMatch marks a match canceled. Already-terminal matches are left
// untouched.
func (r *MatchRepository) CancelMatch(ctx context.Context, matchID uuid.UUID, endedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE matches SET status = $1, ended_at = $2
		WHERE id = $3 AND status IN ($4, $5)`,
		match.StatusCanceled, endedAt, matchID, match.StatusScheduled, match.StatusOngoing)
	if err != nil {
		return fmt.Errorf("cancel match: %w", err)
	}
	return nil
}

// DeleteMatchCascade removes a match and its dependents. Child tables declare
// ON DELETE CASCADE, so one delete suffices.
func (r *MatchRepository) DeleteMatchCascade(ctx context.Context, matchID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM matches WHERE id = $1`, matchID)
	if err != nil {
		return fmt.Errorf("delete match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return match.ErrNotFound
	}
	return nil
}

func (r *MatchRepository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
