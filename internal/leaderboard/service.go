package leaderboard

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizarena/quizarena/internal/match"
)

// Ranking windows. Daily keys are date-suffixed and expire on their own.
const (
	WindowAllTime = "alltime"
	WindowDaily   = "daily"
)

const dailyTTL = 48 * time.Hour

// Entry is one ranked row as served to clients.
type Entry struct {
	UserID  string  `json:"user_id"`
	Score   int     `json:"score"`
	Wins    int     `json:"wins"`
	Games   int     `json:"games"`
	Rank    int     `json:"rank"`
	Correct int     `json:"correct"`
	Total   int     `json:"total"`
	Ratio   float64 `json:"ratio"`
}

// Service maintains Redis sorted-set rankings fed from match settlement.
// It satisfies match.Recorder; recording failures never reach the engine.
type Service struct {
	redis  *redis.Client
	clock  func() time.Time
	logger zerolog.Logger
}

var _ match.Recorder = (*Service)(nil)

func NewService(client *redis.Client, logger zerolog.Logger) *Service {
	return &Service{
		redis:  client,
		clock:  time.Now,
		logger: logger.With().Str("component", "leaderboard").Logger(),
	}
}

func (s *Service) zKey(window string) string {
	if window == WindowDaily {
		return fmt.Sprintf("leaderboard:daily:%s", s.clock().UTC().Format("2006-01-02"))
	}
	return "leaderboard:alltime"
}

func (s *Service) metaKey(window, userID string) string {
	return s.zKey(window) + ":meta:" + userID
}

// RecordMatch folds final scores into the all-time and daily rankings. Each
// player's update runs in one pipeline per window.
func (s *Service) RecordMatch(ctx context.Context, matchID uuid.UUID, scores []match.ScoreRow) error {
	for _, window := range []string{WindowAllTime, WindowDaily} {
		for _, row := range scores {
			if err := s.updateWindow(ctx, window, row); err != nil {
				return fmt.Errorf("record match %s: %w", matchID, err)
			}
		}
	}
	return nil
}

func (s *Service) updateWindow(ctx context.Context, window string, row match.ScoreRow) error {
	zKey := s.zKey(window)
	metaKey := s.metaKey(window, row.UserID.String())
	wins := 0
	if row.Won {
		wins = 1
	}

	pipe := s.redis.TxPipeline()
	pipe.ZIncrBy(ctx, zKey, float64(row.TotalScore), row.UserID.String())
	pipe.HIncrBy(ctx, metaKey, "wins", int64(wins))
	pipe.HIncrBy(ctx, metaKey, "games", 1)
	pipe.HIncrBy(ctx, metaKey, "correct", int64(row.CorrectCount))
	pipe.HIncrBy(ctx, metaKey, "questions", int64(row.TotalQuestions))
	if window == WindowDaily {
		pipe.Expire(ctx, zKey, dailyTTL)
		pipe.Expire(ctx, metaKey, dailyTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update window %s: %w", window, err)
	}
	return nil
}

// Top returns the highest-scored entries for a window, best first.
func (s *Service) Top(ctx context.Context, window string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	zKey := s.zKey(window)
	results, err := s.redis.ZRevRangeWithScores(ctx, zKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}

	entries := make([]Entry, 0, len(results))
	for i, z := range results {
		userID := z.Member.(string)
		entry := Entry{
			UserID: userID,
			Score:  int(z.Score),
			Rank:   i + 1,
		}
		meta, err := s.redis.HGetAll(ctx, s.metaKey(window, userID)).Result()
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("leaderboard meta read failed")
		} else {
			entry.Wins = atoi(meta["wins"])
			entry.Games = atoi(meta["games"])
			entry.Correct = atoi(meta["correct"])
			entry.Total = atoi(meta["questions"])
			if entry.Total > 0 {
				entry.Ratio = float64(entry.Correct) / float64(entry.Total)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
