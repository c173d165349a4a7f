package match

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answerRow(correct bool, responseMs int64) *Answer {
	opt := "a"
	return &Answer{SelectedOption: &opt, IsCorrect: correct, ResponseTimeMs: responseMs}
}

func missRow(responseMs int64) *Answer {
	return &Answer{SelectedOption: nil, IsCorrect: false, ResponseTimeMs: responseMs}
}

func TestSettlementRanksByScore(t *testing.T) {
	m := &Match{ID: uuid.New(), TotalQuestions: 2}
	alice, bob := uuid.New(), uuid.New()
	participants := map[uuid.UUID]*Participant{
		alice: {UserID: alice, DisplayName: "alice", Score: 150},
		bob:   {UserID: bob, DisplayName: "bob", Score: 180},
	}
	log := map[uuid.UUID][]*Answer{
		alice: {answerRow(true, 1000), answerRow(false, 2000)},
		bob:   {answerRow(true, 1500), answerRow(true, 1500)},
	}

	out := computeSettlement(m, participants, log, time.Now())

	require.Len(t, out.scores, 2)
	assert.Equal(t, bob, out.scores[0].UserID)
	assert.True(t, out.scores[0].Won)
	assert.False(t, out.scores[1].Won)
	assert.Equal(t, []uuid.UUID{bob}, out.winners)
}

func TestSettlementStatsCarryMatchScore(t *testing.T) {
	// The lifetime-stats upsert derives highest_score and average_score from
	// the per-match score, so every delta must carry the final total.
	m := &Match{ID: uuid.New(), TotalQuestions: 1}
	a, b := uuid.New(), uuid.New()
	participants := map[uuid.UUID]*Participant{
		a: {UserID: a, Score: 100},
		b: {UserID: b, Score: 96},
	}
	log := map[uuid.UUID][]*Answer{
		a: {answerRow(true, 3000)},
		b: {answerRow(true, 3400)},
	}

	out := computeSettlement(m, participants, log, time.Now())

	require.Len(t, out.stats, 2)
	byUser := map[uuid.UUID]StatsDelta{}
	for _, d := range out.stats {
		byUser[d.UserID] = d
	}
	assert.Equal(t, 100, byUser[a].Score)
	assert.Equal(t, 96, byUser[b].Score)
}

func TestSettlementTieBreakCorrectCount(t *testing.T) {
	m := &Match{ID: uuid.New(), TotalQuestions: 3}
	a, b := uuid.New(), uuid.New()
	participants := map[uuid.UUID]*Participant{
		a: {UserID: a, Score: 100},
		b: {UserID: b, Score: 100},
	}
	// Same score, b answered more questions correctly.
	log := map[uuid.UUID][]*Answer{
		a: {answerRow(true, 1000), missRow(5000), missRow(5000)},
		b: {answerRow(true, 2000), answerRow(true, 2000), missRow(5000)},
	}

	out := computeSettlement(m, participants, log, time.Now())

	assert.Equal(t, b, out.scores[0].UserID)
	assert.Equal(t, []uuid.UUID{b}, out.winners)
}

func TestSettlementTieBreakAvgResponseTime(t *testing.T) {
	m := &Match{ID: uuid.New(), TotalQuestions: 2}
	a, b := uuid.New(), uuid.New()
	participants := map[uuid.UUID]*Participant{
		a: {UserID: a, Score: 100},
		b: {UserID: b, Score: 100},
	}
	log := map[uuid.UUID][]*Answer{
		a: {answerRow(true, 3000), answerRow(false, 3000)},
		b: {answerRow(true, 1000), answerRow(false, 1000)},
	}

	out := computeSettlement(m, participants, log, time.Now())

	assert.Equal(t, b, out.scores[0].UserID)
}

func TestSettlementZeroAnsweredRanksLast(t *testing.T) {
	m := &Match{ID: uuid.New(), TotalQuestions: 1}
	a, b := uuid.New(), uuid.New()
	participants := map[uuid.UUID]*Participant{
		a: {UserID: a, Score: 0},
		b: {UserID: b, Score: 0},
	}
	// Both scored zero, but a at least submitted something.
	log := map[uuid.UUID][]*Answer{
		a: {answerRow(false, 4000)},
		b: {missRow(5000)},
	}

	out := computeSettlement(m, participants, log, time.Now())

	assert.Equal(t, a, out.scores[0].UserID)
	assert.Equal(t, []uuid.UUID{a}, out.winners)
}

func TestSettlementCoWinners(t *testing.T) {
	m := &Match{ID: uuid.New(), TotalQuestions: 1}
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	participants := map[uuid.UUID]*Participant{
		a: {UserID: a, Score: 100},
		b: {UserID: b, Score: 100},
		c: {UserID: c, Score: 50},
	}
	log := map[uuid.UUID][]*Answer{
		a: {answerRow(true, 2000)},
		b: {answerRow(true, 2000)},
		c: {answerRow(true, 9000)},
	}

	out := computeSettlement(m, participants, log, time.Now())

	assert.Len(t, out.winners, 2)
	assert.Contains(t, out.winners, a)
	assert.Contains(t, out.winners, b)
	assert.True(t, out.scores[0].Won)
	assert.True(t, out.scores[1].Won)
	assert.False(t, out.scores[2].Won)
}

func TestSettlementAutoMissesExcludedFromAverage(t *testing.T) {
	m := &Match{ID: uuid.New(), TotalQuestions: 2}
	a := uuid.New()
	participants := map[uuid.UUID]*Participant{a: {UserID: a, Score: 100}}
	log := map[uuid.UUID][]*Answer{
		a: {answerRow(true, 1000), missRow(20000)},
	}

	out := computeSettlement(m, participants, log, time.Now())

	// The 20s timeout does not drag the average; only submitted answers count.
	assert.Equal(t, float64(1000), out.scores[0].AvgResponseTimeMs)
	// But the miss still counts toward lifetime totals.
	assert.Equal(t, 2, out.stats[0].TotalAnswers)
	assert.Equal(t, 1, out.stats[0].CorrectAnswers)
}

func TestSettlementStatsCarryEndedAt(t *testing.T) {
	m := &Match{ID: uuid.New(), TotalQuestions: 1}
	a := uuid.New()
	participants := map[uuid.UUID]*Participant{a: {UserID: a, Score: 10}}
	log := map[uuid.UUID][]*Answer{a: {answerRow(true, 500)}}
	endedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	out := computeSettlement(m, participants, log, endedAt)

	require.Len(t, out.stats, 1)
	assert.Equal(t, endedAt, out.stats[0].PlayedAt)
	assert.True(t, out.stats[0].Won)
}
