package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
	"quiz-match-service/internal/infra/memory"
	"quiz-match-service/internal/protocol"
)

type event struct {
	protocol.Envelope
}

func (e event) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Payload, v))
}

// recorder is an EventSink that exposes events in order on a channel.
type recorder struct {
	events chan event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan event, 256)}
}

func (r *recorder) Publish(_ string, frame []byte) {
	var e event
	if err := json.Unmarshal(frame, &e); err != nil {
		panic(err)
	}
	r.events <- e
}

func (r *recorder) next(t *testing.T, typ protocol.Type) event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-r.events:
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func (r *recorder) quiet(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.events:
		t.Fatalf("unexpected event %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

type harness struct {
	svc     *app.MatchService
	store   *memory.MatchStore
	results *memory.ResultStore
	events  *recorder
	clock   *clockwork.FakeClock
}

func newHarness(t *testing.T, closeWhenAllAnswered bool) *harness {
	t.Helper()
	h := &harness{
		store:   memory.NewMatchStore(),
		results: memory.NewResultStore(),
		events:  newRecorder(),
		clock:   clockwork.NewFakeClock(),
	}
	repo := memory.NewQuestionSetRepository(memory.NewStaticQuestionSetLoader(map[string]domain.QuestionSet{
		"set-1": {ID: "set-1", Questions: questions()},
	}), time.Minute)
	h.svc = app.NewMatchService(h.store, h.results, repo, app.NewGateway(h.events), domain.MatchConfig{
		Kind:                 "ranked",
		Scoring:              domain.ScoringConfig{BasePoints: 100, TimeBonusMax: 50},
		GracePeriod:          time.Second,
		CloseWhenAllAnswered: closeWhenAllAnswered,
	}, app.WithClock(h.clock))
	return h
}

func (h *harness) start(t *testing.T, players ...string) string {
	t.Helper()
	ctx := context.Background()
	id, err := h.svc.CreateMatchFromSet(ctx, players, "set-1")
	require.NoError(t, err)
	require.NoError(t, h.svc.StartMatch(ctx, id))
	h.events.next(t, protocol.TypeMatchStart)
	h.events.next(t, protocol.TypeQuestion)
	return id
}

func (h *harness) submit(matchID, userID string, seq int, questionID, choiceID string) error {
	_, err := h.svc.SubmitAnswer(context.Background(), matchID, domain.Answer{
		UserID:     userID,
		Seq:        seq,
		QuestionID: questionID,
		ChoiceID:   choiceID,
		ClientTs:   h.clock.Now().UnixMilli(),
	})
	return err
}

func scoresOf(t *testing.T, e event) map[string]int {
	t.Helper()
	var update protocol.ScoreUpdate
	e.decode(t, &update)
	out := make(map[string]int, len(update.PlayerScores))
	for _, s := range update.PlayerScores {
		out[s.UserID] = s.Score
	}
	return out
}

func TestExampleScenario(t *testing.T) {
	h := newHarness(t, false)
	id := h.start(t, "A", "B", "C")

	h.clock.Advance(2 * time.Second)
	require.NoError(t, h.submit(id, "A", 0, "q1", "c2"))
	require.NoError(t, h.submit(id, "B", 0, "q1", "c1"))

	h.clock.Advance(8500 * time.Millisecond)
	require.NoError(t, h.submit(id, "C", 0, "q1", "c2"))

	h.clock.Advance(500 * time.Millisecond)
	update := h.events.next(t, protocol.TypeScoreUpdate)
	assert.Equal(t, map[string]int{"A": 140, "B": 0, "C": 100}, scoresOf(t, update))

	// A late retry for Q1 never counts. Q1 is already closed and Q2 open, so
	// the sequence check fires before the deadline check.
	err := h.submit(id, "A", 0, "q1", "c2")
	reason, rejected := domain.RejectReasonOf(err)
	require.True(t, rejected, "expected rejection, got %v", err)
	assert.Equal(t, domain.ReasonStaleOrFutureQuestion, reason)

	var q protocol.Question
	h.events.next(t, protocol.TypeQuestion).decode(t, &q)
	assert.Equal(t, 1, q.Seq)

	h.clock.Advance(11 * time.Second)
	assert.Equal(t, map[string]int{"A": 140, "B": 0, "C": 100}, scoresOf(t, h.events.next(t, protocol.TypeScoreUpdate)))

	var end protocol.MatchEnd
	h.events.next(t, protocol.TypeMatchEnd).decode(t, &end)
	assert.Equal(t, string(domain.EndCompleted), end.Reason)
	require.Len(t, end.FinalScores, 3)
	assert.Equal(t, protocol.FinalScore{UserID: "A", Score: 140, Rank: 1}, end.FinalScores[0])
	assert.Equal(t, protocol.FinalScore{UserID: "C", Score: 100, Rank: 2}, end.FinalScores[1])
	assert.Equal(t, protocol.FinalScore{UserID: "B", Score: 0, Rank: 3}, end.FinalScores[2])

	res, ok := h.results.Find(id)
	require.True(t, ok)
	assert.Equal(t, "ranked", res.Kind)
	assert.Len(t, res.Answers, 3)

	_, ok = h.store.Get(id)
	assert.False(t, ok, "finished match must be evicted")
}

func TestConcurrentDuplicatesAcceptOnce(t *testing.T) {
	h := newHarness(t, false)
	id := h.start(t, "A", "B")

	const attempts = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		dups     int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.submit(id, "A", 0, "q1", "c2")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrDuplicateSubmission):
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, attempts-1, dups)
}

func TestClosedSeqIsStale(t *testing.T) {
	h := newHarness(t, false)
	id := h.start(t, "A")

	h.clock.Advance(11 * time.Second)
	h.events.next(t, protocol.TypeScoreUpdate)
	h.events.next(t, protocol.TypeQuestion)

	assert.ErrorIs(t, h.submit(id, "A", 0, "q1", "c2"), domain.ErrStaleOrFutureQuestion)
	assert.ErrorIs(t, h.submit(id, "A", 5, "q1", "c2"), domain.ErrStaleOrFutureQuestion)
	assert.ErrorIs(t, h.submit(id, "A", 1, "q1", "c2"), domain.ErrQuestionMismatch)
	assert.NoError(t, h.submit(id, "A", 1, "q2", "c1"))
}

func TestCloseWhenAllAnswered(t *testing.T) {
	h := newHarness(t, true)
	id := h.start(t, "A", "B")

	require.NoError(t, h.submit(id, "A", 0, "q1", "c2"))
	h.events.quiet(t)
	require.NoError(t, h.submit(id, "B", 0, "q1", "c2"))

	assert.Equal(t, map[string]int{"A": 150, "B": 150}, scoresOf(t, h.events.next(t, protocol.TypeScoreUpdate)))
	var q protocol.Question
	h.events.next(t, protocol.TypeQuestion).decode(t, &q)
	assert.Equal(t, 1, q.Seq)

	// Only the timer of seq 1 is still pending.
	h.clock.Advance(11 * time.Second)
	h.events.next(t, protocol.TypeScoreUpdate)
	h.events.next(t, protocol.TypeMatchEnd)
}

func TestTerminateCancelsTimer(t *testing.T) {
	h := newHarness(t, false)
	id := h.start(t, "A", "B")
	ctx := context.Background()

	require.NoError(t, h.svc.TerminateMatch(ctx, id, domain.EndAdmin))
	var end protocol.MatchEnd
	h.events.next(t, protocol.TypeMatchEnd).decode(t, &end)
	assert.Equal(t, "admin", end.Reason)

	h.clock.Advance(time.Minute)
	h.events.quiet(t)

	require.NoError(t, h.svc.TerminateMatch(ctx, id, domain.EndAdmin), "terminate is idempotent")
	assert.ErrorIs(t, h.submit(id, "A", 0, "q1", "c2"), domain.ErrMatchNotFound)
	assert.Len(t, h.results.Results(), 1)
}

func TestLifecycleErrors(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	_, err := h.svc.CreateMatch(ctx, []string{"A"}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	_, err = h.svc.CreateMatch(ctx, nil, questions())
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	_, err = h.svc.CreateMatch(ctx, []string{"A", "A"}, questions())
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	_, err = h.svc.CreateMatchFromSet(ctx, []string{"A"}, "missing")
	assert.ErrorIs(t, err, domain.ErrQuestionSetNotFound)

	assert.ErrorIs(t, h.svc.StartMatch(ctx, "missing"), domain.ErrMatchNotFound)

	id, err := h.svc.CreateMatch(ctx, []string{"A"}, questions())
	require.NoError(t, err)
	assert.ErrorIs(t, h.submit(id, "A", 0, "q1", "c2"), domain.ErrMatchNotRunning)
	assert.ErrorIs(t, h.svc.TerminateMatch(ctx, id, domain.EndAdmin), domain.ErrNotStarted)

	require.NoError(t, h.svc.StartMatch(ctx, id))
	assert.ErrorIs(t, h.svc.StartMatch(ctx, id), domain.ErrAlreadyStarted)
	assert.ErrorIs(t, h.submit(id, "Z", 0, "q1", "c2"), domain.ErrUnknownPlayer)
}

func TestScoresAndSeqAreMonotonic(t *testing.T) {
	h := newHarness(t, false)
	id := h.start(t, "A", "B")

	last := map[string]int{}
	lastSeq := 0
	for seq, q := range questions() {
		h.clock.Advance(time.Duration(seq+1) * time.Second)
		_ = h.submit(id, "A", seq, q.ID, q.CorrectChoiceID)
		_ = h.submit(id, "B", seq, q.ID, "c2")
		h.clock.Advance(11 * time.Second)

		for user, score := range scoresOf(t, h.events.next(t, protocol.TypeScoreUpdate)) {
			assert.GreaterOrEqual(t, score, last[user], "score of %s decreased", user)
			last[user] = score
		}
		if seq+1 < len(questions()) {
			var next protocol.Question
			h.events.next(t, protocol.TypeQuestion).decode(t, &next)
			assert.Greater(t, next.Seq, lastSeq)
			lastSeq = next.Seq
		}
	}
	h.events.next(t, protocol.TypeMatchEnd)
}

func TestEventSequenceIncreases(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	id, err := h.svc.CreateMatch(ctx, []string{"A"}, questions())
	require.NoError(t, err)
	require.NoError(t, h.svc.StartMatch(ctx, id))

	first := h.events.next(t, protocol.TypeMatchStart)
	second := h.events.next(t, protocol.TypeQuestion)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
}

func TestShutdownTerminatesRunningMatches(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	running := h.start(t, "A")
	waiting, err := h.svc.CreateMatch(ctx, []string{"B"}, questions())
	require.NoError(t, err)

	require.NoError(t, h.svc.Shutdown(ctx))

	res, ok := h.results.Find(running)
	require.True(t, ok)
	assert.Equal(t, domain.EndShutdown, res.Reason)
	_, ok = h.results.Find(waiting)
	assert.False(t, ok, "waiting matches are discarded, not recorded")
	assert.Empty(t, h.store.List())
}

func TestSnapshotHidesAnswerKey(t *testing.T) {
	h := newHarness(t, false)
	id := h.start(t, "A")

	snap, err := h.svc.Snapshot(context.Background(), id)
	require.NoError(t, err)
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correct")
	assert.Equal(t, domain.StatusRunning, snap.Status)
}

func questions() []domain.Question {
	return []domain.Question{
		{
			ID:              "q1",
			Text:            "What is 2 + 2?",
			Choices:         []domain.Choice{{ID: "c1", Text: "3"}, {ID: "c2", Text: "4"}},
			CorrectChoiceID: "c2",
			DurationMs:      10000,
		},
		{
			ID:              "q2",
			Text:            "What is 3 + 3?",
			Choices:         []domain.Choice{{ID: "c1", Text: "6"}, {ID: "c2", Text: "7"}},
			CorrectChoiceID: "c1",
			DurationMs:      10000,
		},
	}
}
