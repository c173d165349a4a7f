package match

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// settlement is everything the end-of-match transaction writes, plus the
// co-winner set derived from the tie-break keys.
type settlement struct {
	scores  []ScoreRow // ranked best first
	stats   []StatsDelta
	winners []uuid.UUID
}

// playerResult is one participant's aggregate over their answer log. Auto-miss
// rows count toward correctness totals but not toward the response-time
// average, which covers answered questions only.
type playerResult struct {
	userID       uuid.UUID
	displayName  string
	totalScore   int
	correctCount int
	answeredMs   int64
	answered     int // submitted answers (auto-misses excluded)
	totalRows    int
}

func (p *playerResult) avgResponseMs() float64 {
	if p.answered == 0 {
		return 0
	}
	return float64(p.answeredMs) / float64(p.answered)
}

// rankLess orders by the settlement tie-break keys: higher score, then higher
// correct count, then lower average response time. Participants with zero
// answered questions sort last on the speed key.
func rankLess(a, b *playerResult) bool {
	if a.totalScore != b.totalScore {
		return a.totalScore > b.totalScore
	}
	if a.correctCount != b.correctCount {
		return a.correctCount > b.correctCount
	}
	if (a.answered == 0) != (b.answered == 0) {
		return b.answered == 0
	}
	return a.avgResponseMs() < b.avgResponseMs()
}

// tiedOnAllKeys reports whether two results are indistinguishable under the
// tie-break keys and therefore co-winners if ranked first.
func tiedOnAllKeys(a, b *playerResult) bool {
	return a.totalScore == b.totalScore &&
		a.correctCount == b.correctCount &&
		(a.answered == 0) == (b.answered == 0) &&
		a.avgResponseMs() == b.avgResponseMs()
}

// computeSettlement aggregates every participant's answer log into the final
// score rows, lifetime-stats deltas and the co-winner set.
func computeSettlement(m *Match, participants map[uuid.UUID]*Participant, log map[uuid.UUID][]*Answer, endedAt time.Time) settlement {
	results := make([]*playerResult, 0, len(participants))
	for userID, p := range participants {
		res := &playerResult{
			userID:      userID,
			displayName: p.DisplayName,
			totalScore:  p.Score,
		}
		for _, ans := range log[userID] {
			res.totalRows++
			if ans.IsCorrect {
				res.correctCount++
			}
			if ans.SelectedOption != nil {
				res.answered++
				res.answeredMs += ans.ResponseTimeMs
			}
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool { return rankLess(results[i], results[j]) })

	var out settlement
	for i, res := range results {
		won := i == 0 || tiedOnAllKeys(res, results[0])
		if won {
			out.winners = append(out.winners, res.userID)
		}
		out.scores = append(out.scores, ScoreRow{
			MatchID:           m.ID,
			UserID:            res.userID,
			TotalScore:        res.totalScore,
			CorrectCount:      res.correctCount,
			TotalQuestions:    m.TotalQuestions,
			AvgResponseTimeMs: res.avgResponseMs(),
			Won:               won,
		})
		out.stats = append(out.stats, StatsDelta{
			UserID:            res.userID,
			Score:             res.totalScore,
			Won:               won,
			CorrectAnswers:    res.correctCount,
			TotalAnswers:      res.totalRows,
			AvgResponseTimeMs: res.avgResponseMs(),
			PlayedAt:          endedAt,
		})
	}
	return out
}
