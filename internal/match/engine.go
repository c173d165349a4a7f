package match

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizarena/quizarena/internal/match/scoring"
	"github.com/quizarena/quizarena/pkg/ws"
)

// storeOpTimeout bounds each storage call made from the executor.
const storeOpTimeout = 5 * time.Second

// Config holds the engine knobs shared by all matches.
type Config struct {
	AutoAdvanceDelay  time.Duration // between question resolution and the next question
	TickInterval      time.Duration // countdown cadence, 1s in production
	SettlementRetries int
	AcquireTimeout    time.Duration // max wait to hand a command to the executor
	Scoring           scoring.Config
}

func (c Config) withDefaults() Config {
	if c.AutoAdvanceDelay <= 0 {
		c.AutoAdvanceDelay = 3 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.SettlementRetries <= 0 {
		c.SettlementRetries = 5
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 2 * time.Second
	}
	if c.Scoring.BasePoints == 0 {
		c.Scoring = scoring.DefaultConfig()
	}
	return c
}

type cmdKind int

const (
	cmdJoin cmdKind = iota
	cmdLeave
	cmdStart
	cmdSubmit
	cmdAdvance
	cmdDelete
	cmdTick
	cmdExpired
	cmdAutoAdvance
	cmdDetach
	cmdShutdown
)

type command struct {
	kind           cmdKind
	userID         uuid.UUID
	questionNumber int
	selectedOption string
	epoch          int
	remaining      int
	reply          chan error
}

// Engine is the single source of truth for one match's runtime state. All
// mutations pass through its inbox and are handled by one goroutine, so
// operations for a given match are serialized; matches run in parallel.
type Engine struct {
	matchID uuid.UUID

	store    Store
	rooms    Rooms
	recorder Recorder
	cfg      Config
	logger   zerolog.Logger
	clock    func() time.Time
	onStop   func(matchID uuid.UUID)

	inbox chan command
	done  chan struct{}

	// Everything below is owned by the run loop.
	match        *Match
	participants map[uuid.UUID]*Participant
	questions    []QuestionInstance // ordered by Number

	subState    string
	askStart    time.Time
	epoch       int
	timer       *questionTimer
	autoAdvance *time.Timer
	tracker     *scoring.Tracker
	answered    map[uuid.UUID]*Answer   // current question
	answerLog   map[uuid.UUID][]*Answer // whole match, acceptance order
}

// NewEngine builds the executor for one match from its durable state. Call
// Run in its own goroutine.
func NewEngine(m *Match, players []Participant, questions []QuestionInstance, store Store, rooms Rooms, recorder Recorder, cfg Config, logger zerolog.Logger) *Engine {
	cfg = cfg.withDefaults()

	parts := make(map[uuid.UUID]*Participant, len(players))
	for i := range players {
		p := players[i]
		parts[p.UserID] = &p
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].Number < questions[j].Number })

	return &Engine{
		matchID:      m.ID,
		store:        store,
		rooms:        rooms,
		recorder:     recorder,
		cfg:          cfg,
		logger:       logger.With().Str("component", "match_engine").Str("match_id", m.ID.String()).Logger(),
		clock:        time.Now,
		inbox:        make(chan command, 64),
		done:         make(chan struct{}),
		match:        m,
		participants: parts,
		questions:    questions,
		subState:     SubStateResolved,
		tracker:      scoring.NewTracker(cfg.Scoring),
		answered:     make(map[uuid.UUID]*Answer),
		answerLog:    make(map[uuid.UUID][]*Answer),
	}
}

// Run drains the inbox until the engine stops.
func (e *Engine) Run() {
	for {
		select {
		case <-e.done:
			return
		case cmd := <-e.inbox:
			e.handle(cmd)
		}
	}
}

// Done is closed when the engine has stopped.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) stopped() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Public operations. Each funnels onto the executor, waiting at most
// AcquireTimeout for a slot.

func (e *Engine) Join(ctx context.Context, userID uuid.UUID) error {
	return e.do(ctx, command{kind: cmdJoin, userID: userID})
}

func (e *Engine) Leave(ctx context.Context, userID uuid.UUID) error {
	return e.do(ctx, command{kind: cmdLeave, userID: userID})
}

func (e *Engine) Start(ctx context.Context, userID uuid.UUID) error {
	return e.do(ctx, command{kind: cmdStart, userID: userID})
}

func (e *Engine) SubmitAnswer(ctx context.Context, userID uuid.UUID, questionNumber int, selectedOption string) error {
	return e.do(ctx, command{
		kind:           cmdSubmit,
		userID:         userID,
		questionNumber: questionNumber,
		selectedOption: selectedOption,
	})
}

func (e *Engine) Advance(ctx context.Context, userID uuid.UUID) error {
	return e.do(ctx, command{kind: cmdAdvance, userID: userID})
}

func (e *Engine) DeleteIfScheduled(ctx context.Context, userID uuid.UUID) error {
	return e.do(ctx, command{kind: cmdDelete, userID: userID})
}

// NotifyDetach informs the engine that a participant's connection left the
// room. Never blocks the caller beyond inbox handoff.
func (e *Engine) NotifyDetach(userID uuid.UUID) {
	e.post(command{kind: cmdDetach, userID: userID})
}

// Shutdown cancels timers and stops the executor once in-flight work drains.
func (e *Engine) Shutdown() {
	e.post(command{kind: cmdShutdown})
}

func (e *Engine) do(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)

	acquire := time.NewTimer(e.cfg.AcquireTimeout)
	defer acquire.Stop()

	select {
	case e.inbox <- cmd:
	case <-e.done:
		return ErrNotFound
	case <-ctx.Done():
		return ctx.Err()
	case <-acquire.C:
		return ErrBusy
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) post(cmd command) {
	select {
	case e.inbox <- cmd:
	case <-e.done:
	}
}

func (e *Engine) handle(cmd command) {
	var err error
	switch cmd.kind {
	case cmdJoin:
		err = e.handleJoin(cmd.userID)
	case cmdLeave:
		e.rooms.Detach(e.matchID, cmd.userID)
	case cmdStart:
		err = e.handleStart(cmd.userID)
	case cmdSubmit:
		err = e.handleSubmit(cmd.userID, cmd.questionNumber, cmd.selectedOption)
	case cmdAdvance:
		err = e.handleAdvance(cmd.userID)
	case cmdDelete:
		err = e.handleDelete(cmd.userID)
	case cmdTick:
		e.handleTick(cmd.epoch, cmd.remaining)
	case cmdExpired:
		e.handleExpired(cmd.epoch)
	case cmdAutoAdvance:
		e.handleAutoAdvance(cmd.epoch)
	case cmdDetach:
		e.handleDetach(cmd.userID)
	case cmdShutdown:
		e.cancelTimers()
		e.stop()
	}
	if cmd.reply != nil {
		cmd.reply <- err
	}
}

// handleJoin is idempotent: it binds the caller's connection to the room and
// replies with the current public view.
func (e *Engine) handleJoin(userID uuid.UUID) error {
	if e.match.Status == StatusCanceled {
		return ErrCancelled
	}
	if _, ok := e.participants[userID]; !ok {
		return ErrNotAPlayer
	}
	if err := e.rooms.Attach(e.matchID, userID); err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("attach failed")
		return ErrBusy
	}
	e.rooms.SendTo(e.matchID, userID, ws.NewMessage(ws.TypeMatchState, e.snapshot()))
	return nil
}

func (e *Engine) handleStart(userID uuid.UUID) error {
	if userID != e.match.HostID {
		return ErrNotHost
	}
	if e.match.Status != StatusScheduled {
		return ErrNotScheduled
	}
	if len(e.participants) == 0 {
		return ErrNoPlayers
	}

	now := e.clock()
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()
	if err := e.store.SetMatchStarted(ctx, e.matchID, now); err != nil {
		e.logger.Error().Err(err).Msg("persist match start failed")
		return ErrBusy
	}

	e.match.Status = StatusOngoing
	e.match.StartedAt = &now
	e.match.CurrentQuestion = 1

	e.rooms.Broadcast(e.matchID, ws.NewMessage(ws.TypeMatchStarted, ws.MatchStartedPayload{
		MatchID:   e.matchID.String(),
		StartedAt: now.UTC().Format(time.RFC3339),
	}))
	e.beginQuestion()
	e.logger.Info().Int("questions", e.match.TotalQuestions).Msg("match started")
	return nil
}

// beginQuestion enters ASKING for the current question: broadcasts it without
// the correct option, then arms the countdown.
func (e *Engine) beginQuestion() {
	q := e.currentQuestion()
	e.subState = SubStateAsking
	e.askStart = e.clock()
	e.answered = make(map[uuid.UUID]*Answer)
	e.tracker.Reset()
	e.epoch++

	e.rooms.Broadcast(e.matchID, ws.NewMessage(ws.TypeQuestionNew, e.publicQuestion(q)))
	e.rooms.Broadcast(e.matchID, ws.NewMessage(ws.TypeTimerStart, ws.TimerPayload{
		MatchID:          e.matchID.String(),
		QuestionNumber:   q.Number,
		TimeRemainingSec: e.match.QuestionDurationSec,
	}))

	e.timer = startQuestionTimer(e, e.epoch, e.match.QuestionDurationSec, e.cfg.TickInterval)
}

func (e *Engine) handleSubmit(userID uuid.UUID, questionNumber int, selectedOption string) error {
	if e.match.Status != StatusOngoing {
		return ErrMatchNotOngoing
	}
	p, ok := e.participants[userID]
	if !ok {
		return ErrNotAParticipant
	}
	if e.subState != SubStateAsking || questionNumber != e.match.CurrentQuestion {
		if _, dup := e.answered[userID]; dup && questionNumber == e.match.CurrentQuestion {
			return ErrAlreadyAnswered
		}
		return ErrWrongQuestion
	}
	if _, dup := e.answered[userID]; dup {
		return ErrAlreadyAnswered
	}

	q := e.currentQuestion()
	if !optionOf(q, selectedOption) {
		return ErrOptionNotRecognised
	}

	elapsed := e.clock().Sub(e.askStart)
	isCorrect := selectedOption == q.CorrectOption
	points := 0
	if isCorrect {
		points = e.tracker.Points(elapsed)
	}

	opt := selectedOption
	ans := Answer{
		QuestionInstanceID: q.ID,
		MatchID:            e.matchID,
		UserID:             userID,
		QuestionNumber:     q.Number,
		SelectedOption:     &opt,
		IsCorrect:          isCorrect,
		ResponseTimeMs:     elapsed.Milliseconds(),
		PointsAwarded:      points,
		CreatedAt:          e.clock(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()
	if err := e.store.InsertAnswer(ctx, ans, points); err != nil {
		if err == ErrAlreadyAnswered {
			return err
		}
		e.logger.Error().Err(err).Str("user_id", userID.String()).Msg("persist answer failed")
		return ErrBusy
	}

	if isCorrect {
		e.tracker.Observe(elapsed)
	}
	p.Score += points
	e.answered[userID] = &ans
	e.answerLog[userID] = append(e.answerLog[userID], &ans)
	answersAccepted.Inc()

	e.rooms.SendTo(e.matchID, userID, ws.NewMessage(ws.TypeAnswerConfirmed, ws.AnswerConfirmedPayload{
		MatchID:        e.matchID.String(),
		QuestionNumber: q.Number,
		IsCorrect:      isCorrect,
		CorrectOption:  q.CorrectOption,
		PointsAwarded:  points,
		NewScore:       p.Score,
	}))
	e.rooms.BroadcastExcept(e.matchID, userID, ws.NewMessage(ws.TypeAnswerReceived, ws.AnswerReceivedPayload{
		MatchID:        e.matchID.String(),
		QuestionNumber: q.Number,
		UserID:         userID.String(),
	}))

	if e.everyActiveAnswered() {
		e.resolveQuestion()
	}
	return nil
}

// everyActiveAnswered reports whether each participant has either answered
// the current question or has no live connection left to answer from.
func (e *Engine) everyActiveAnswered() bool {
	for userID := range e.participants {
		if _, ok := e.answered[userID]; ok {
			continue
		}
		if e.rooms.IsAttached(e.matchID, userID) {
			return false
		}
	}
	return true
}

func (e *Engine) handleTick(epoch, remaining int) {
	if epoch != e.epoch || e.subState != SubStateAsking || e.match.Status != StatusOngoing {
		return
	}
	e.rooms.Broadcast(e.matchID, ws.NewMessage(ws.TypeTimerTick, ws.TimerPayload{
		MatchID:          e.matchID.String(),
		QuestionNumber:   e.match.CurrentQuestion,
		TimeRemainingSec: remaining,
	}))
}

func (e *Engine) handleExpired(epoch int) {
	if epoch != e.epoch || e.subState != SubStateAsking || e.match.Status != StatusOngoing {
		return
	}
	e.rooms.Broadcast(e.matchID, ws.NewMessage(ws.TypeTimerExpired, ws.TimerPayload{
		MatchID:          e.matchID.String(),
		QuestionNumber:   e.match.CurrentQuestion,
		TimeRemainingSec: 0,
	}))
	e.resolveQuestion()
}

func (e *Engine) handleDetach(userID uuid.UUID) {
	if e.match.Status == StatusOngoing && e.subState == SubStateAsking && e.everyActiveAnswered() {
		e.resolveQuestion()
		return
	}
	if e.terminal() && e.rooms.ActiveCount(e.matchID) == 0 {
		e.stop()
	}
}

// resolveQuestion enters RESOLVED: records auto-misses for non-answerers,
// reveals the correct option with the ranked scoreboard, then either settles
// the match or schedules the next question.
func (e *Engine) resolveQuestion() {
	e.cancelQuestionTimer()
	q := e.currentQuestion()

	var misses []Answer
	for userID := range e.participants {
		if _, ok := e.answered[userID]; ok {
			continue
		}
		miss := Answer{
			QuestionInstanceID: q.ID,
			MatchID:            e.matchID,
			UserID:             userID,
			QuestionNumber:     q.Number,
			SelectedOption:     nil,
			IsCorrect:          false,
			ResponseTimeMs:     int64(e.match.QuestionDurationSec) * 1000,
			PointsAwarded:      0,
			CreatedAt:          e.clock(),
		}
		misses = append(misses, miss)
	}
	if len(misses) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
		if err := e.store.InsertAutoMisses(ctx, misses); err != nil {
			e.logger.Error().Err(err).Int("count", len(misses)).Msg("persist auto-misses failed")
		}
		cancel()
		for i := range misses {
			miss := misses[i]
			e.answered[miss.UserID] = &miss
			e.answerLog[miss.UserID] = append(e.answerLog[miss.UserID], &miss)
		}
	}

	e.subState = SubStateResolved
	e.rooms.Broadcast(e.matchID, ws.NewMessage(ws.TypeQuestionEnded, ws.QuestionEndedPayload{
		MatchID:        e.matchID.String(),
		QuestionNumber: q.Number,
		CorrectOption:  q.CorrectOption,
		Scoreboard:     e.scoreboard(),
	}))

	if e.match.CurrentQuestion >= e.match.TotalQuestions {
		e.settle()
		return
	}

	epoch := e.epoch
	e.autoAdvance = time.AfterFunc(e.cfg.AutoAdvanceDelay, func() {
		e.post(command{kind: cmdAutoAdvance, epoch: epoch})
	})
}

func (e *Engine) handleAutoAdvance(epoch int) {
	if epoch != e.epoch || e.subState != SubStateResolved || e.match.Status != StatusOngoing {
		return
	}
	e.nextQuestion()
}

// handleAdvance lets the host skip the auto-advance delay. Advancing during
// ASKING is rejected; a question resolves only by consensus or expiry.
func (e *Engine) handleAdvance(userID uuid.UUID) error {
	if e.match.Status != StatusOngoing {
		return ErrMatchNotOngoing
	}
	if userID != e.match.HostID {
		return ErrNotHost
	}
	if e.subState != SubStateResolved {
		return ErrWrongSubState
	}
	if e.autoAdvance != nil {
		e.autoAdvance.Stop()
		e.autoAdvance = nil
	}
	e.nextQuestion()
	return nil
}

func (e *Engine) nextQuestion() {
	e.match.CurrentQuestion++

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	if err := e.store.SetCurrentQuestion(ctx, e.matchID, e.match.CurrentQuestion); err != nil {
		e.logger.Warn().Err(err).Int("question", e.match.CurrentQuestion).Msg("persist current question failed")
	}
	cancel()

	e.beginQuestion()
}

// settle runs the end-of-match transaction with jittered exponential backoff.
// On exhaustion the match is canceled in a fresh transaction and a terminal
// event is emitted.
func (e *Engine) settle() {
	endedAt := e.clock()
	result := computeSettlement(e.match, e.participants, e.answerLog, endedAt)

	var err error
	for attempt := 0; attempt < e.cfg.SettlementRetries; attempt++ {
		if attempt > 0 {
			settlementRetries.Inc()
			if !e.sleep(settlementBackoff(attempt)) {
				return
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
		err = e.store.Settle(ctx, e.matchID, endedAt, result.scores, result.stats)
		cancel()
		if err == nil {
			break
		}
		e.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("settlement attempt failed")
	}

	if err != nil {
		e.logger.Error().Err(err).Msg("settlement exhausted, canceling match")
		ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
		if cancelErr := e.store.CancelMatch(ctx, e.matchID, endedAt); cancelErr != nil {
			e.logger.Error().Err(cancelErr).Msg("cancel after failed settlement also failed")
		}
		cancel()
		e.match.Status = StatusCanceled
		e.match.EndedAt = &endedAt
		e.rooms.Broadcast(e.matchID, ws.NewMessage(ws.TypeMatchFinished, ws.MatchFinishedPayload{
			MatchID:    e.matchID.String(),
			Scoreboard: e.scoreboard(),
			Aborted:    true,
		}))
		e.stop()
		return
	}

	e.match.Status = StatusFinished
	e.match.EndedAt = &endedAt

	winners := make([]string, len(result.winners))
	for i, w := range result.winners {
		winners[i] = w.String()
	}
	e.rooms.Broadcast(e.matchID, ws.NewMessage(ws.TypeMatchFinished, ws.MatchFinishedPayload{
		MatchID:    e.matchID.String(),
		Scoreboard: e.scoreboard(),
		Winners:    winners,
	}))
	e.logger.Info().Strs("winners", winners).Msg("match settled")

	if e.recorder != nil {
		scores := result.scores
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
			defer cancel()
			if err := e.recorder.RecordMatch(ctx, e.matchID, scores); err != nil {
				e.logger.Warn().Err(err).Msg("leaderboard record failed")
			}
		}()
	}

	if e.rooms.ActiveCount(e.matchID) == 0 {
		e.stop()
	}
}

// settlementBackoff returns the pre-jitter delay before the given retry
// attempt: 100ms, 400ms, then capped at 1.6s.
func settlementBackoff(attempt int) time.Duration {
	d := 100 * time.Millisecond
	for i := 1; i < attempt; i++ {
		d *= 4
		if d >= 1600*time.Millisecond {
			return 1600 * time.Millisecond
		}
	}
	return d
}

// sleep waits with +/-50% jitter, aborting early if the engine stops.
func (e *Engine) sleep(d time.Duration) bool {
	jittered := time.Duration(float64(d) * (0.5 + rand.Float64()))
	t := time.NewTimer(jittered)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-e.done:
		return false
	}
}

func (e *Engine) handleDelete(userID uuid.UUID) error {
	if userID != e.match.HostID {
		return ErrNotHost
	}
	if e.match.Status != StatusScheduled {
		return ErrNotScheduled
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()
	if err := e.store.DeleteMatchCascade(ctx, e.matchID); err != nil {
		e.logger.Error().Err(err).Msg("delete match failed")
		return ErrBusy
	}

	e.rooms.CloseRoom(e.matchID)
	e.stop()
	e.logger.Info().Msg("scheduled match deleted")
	return nil
}

func (e *Engine) cancelQuestionTimer() {
	if e.timer != nil {
		e.timer.cancel()
		e.timer = nil
	}
	e.epoch++
}

func (e *Engine) cancelTimers() {
	e.cancelQuestionTimer()
	if e.autoAdvance != nil {
		e.autoAdvance.Stop()
		e.autoAdvance = nil
	}
}

func (e *Engine) terminal() bool {
	return e.match.Status == StatusFinished || e.match.Status == StatusCanceled
}

func (e *Engine) stop() {
	if e.stopped() {
		return
	}
	e.cancelTimers()
	close(e.done)
	if e.onStop != nil {
		e.onStop(e.matchID)
	}
}

func (e *Engine) currentQuestion() *QuestionInstance {
	n := e.match.CurrentQuestion
	if n < 1 || n > len(e.questions) {
		return nil
	}
	return &e.questions[n-1]
}

func optionOf(q *QuestionInstance, selected string) bool {
	for _, opt := range q.Options {
		if opt == selected {
			return true
		}
	}
	return false
}

// publicQuestion strips the correct option and content hash from a question.
func (e *Engine) publicQuestion(q *QuestionInstance) ws.QuestionPayload {
	return ws.QuestionPayload{
		MatchID:        e.matchID.String(),
		QuestionNumber: q.Number,
		TotalQuestions: e.match.TotalQuestions,
		Prompt:         q.Prompt,
		Options:        q.Options,
	}
}

// scoreboard ranks participants best first under the tie-break keys.
func (e *Engine) scoreboard() []ws.PlayerScore {
	results := make([]*playerResult, 0, len(e.participants))
	for userID, p := range e.participants {
		res := &playerResult{
			userID:      userID,
			displayName: p.DisplayName,
			totalScore:  p.Score,
		}
		for _, ans := range e.answerLog[userID] {
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

	board := make([]ws.PlayerScore, len(results))
	for i, res := range results {
		board[i] = ws.PlayerScore{
			UserID:      res.userID.String(),
			DisplayName: res.displayName,
			Score:       res.totalScore,
			Rank:        i + 1,
		}
	}
	return board
}

// snapshot builds the public view for a joiner. The current question, when
// present, carries no correct option; a reconnecting participant sees the
// real remaining time, not a reset countdown.
func (e *Engine) snapshot() ws.MatchStatePayload {
	state := ws.MatchStatePayload{
		MatchID:        e.matchID.String(),
		Status:         e.match.Status,
		HostID:         e.match.HostID.String(),
		QuestionNumber: e.match.CurrentQuestion,
		TotalQuestions: e.match.TotalQuestions,
		Players:        e.scoreboard(),
	}
	if e.match.Status == StatusOngoing && e.subState == SubStateAsking {
		if q := e.currentQuestion(); q != nil {
			pub := e.publicQuestion(q)
			state.CurrentQuestion = &pub
			remaining := e.match.QuestionDurationSec - int(e.clock().Sub(e.askStart)/time.Second)
			if remaining < 0 {
				remaining = 0
			}
			state.TimeRemainingSec = remaining
		}
	}
	return state
}
