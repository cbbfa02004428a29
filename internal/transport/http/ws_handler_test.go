package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/auth"
	"quiz-match-service/internal/domain"
	"quiz-match-service/internal/infra/memory"
	"quiz-match-service/internal/protocol"
)

type testEnv struct {
	service *app.MatchService
	results *memory.ResultStore
	clock   *clockwork.FakeClock
	tokens  *auth.Manager
	admin   string
	server  *httptest.Server
}

func newTestEnv(t *testing.T, terminateWhenAbandoned bool) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClock()
	results := memory.NewResultStore()
	repo := memory.NewQuestionSetRepository(memory.NewStaticQuestionSetLoader(map[string]domain.QuestionSet{
		"set-1": {ID: "set-1", Questions: sampleQuestions()},
	}), time.Minute)

	hub := NewHub(DefaultHubConfig())
	service := app.NewMatchService(memory.NewMatchStore(), results, repo, app.NewGateway(hub), domain.MatchConfig{
		Kind:        "test",
		Scoring:     domain.ScoringConfig{BasePoints: 100, TimeBonusMax: 50},
		GracePeriod: time.Second,
	}, app.WithClock(clock))
	tokens := auth.NewManager("secret", time.Hour)

	admin, err := tokens.IssueAdmin("ops")
	if err != nil {
		t.Fatalf("issue admin token: %v", err)
	}

	router := NewRouter(NewAdminHandler(service, tokens), NewWSHandler(service, hub, tokens, terminateWhenAbandoned),
		[]string{"https://play.example"})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{service: service, results: results, clock: clock, tokens: tokens, admin: admin, server: server}
}

func (e *testEnv) startMatch(t *testing.T, players ...string) string {
	t.Helper()
	ctx := context.Background()
	id, err := e.service.CreateMatchFromSet(ctx, players, "set-1")
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	if err := e.service.StartMatch(ctx, id); err != nil {
		t.Fatalf("start match: %v", err)
	}
	return id
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (e *testEnv) join(t *testing.T, matchID, userID string) *websocket.Conn {
	t.Helper()
	token, err := e.tokens.Issue(userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	conn := e.dial(t)
	send(t, conn, protocol.TypeJoinMatch, protocol.JoinMatch{MatchID: matchID, AuthToken: token})
	return conn
}

func TestWebSocketAnswerFlow(t *testing.T) {
	env := newTestEnv(t, false)
	matchID := env.startMatch(t, "u1", "u2")
	conn := env.join(t, matchID, "u1")

	readUntil(t, conn, protocol.TypeMatchStart)
	var q protocol.Question
	readUntil(t, conn, protocol.TypeQuestion).decode(t, &q)
	if q.Seq != 0 || q.QuestionID != "q1" {
		t.Fatalf("unexpected catch-up question: %+v", q)
	}

	answer := protocol.Answer{MatchID: matchID, Seq: 0, QuestionID: "q1", ChoiceID: "c2", ClientTs: 1}
	send(t, conn, protocol.TypeAnswer, answer)
	var res protocol.AnswerResult
	readUntil(t, conn, protocol.TypeAnswerResult).decode(t, &res)
	if !res.Recorded {
		t.Fatalf("expected first answer recorded")
	}

	send(t, conn, protocol.TypeAnswer, answer)
	readUntil(t, conn, protocol.TypeAnswerResult).decode(t, &res)
	if res.Recorded {
		t.Fatalf("expected duplicate answer not recorded")
	}

	env.clock.Advance(11 * time.Second)

	var update protocol.ScoreUpdate
	frame := readUntil(t, conn, protocol.TypeScoreUpdate)
	frame.decode(t, &update)
	if frame.Seq == 0 {
		t.Fatalf("expected live event to carry a sequence number")
	}
	scores := map[string]int{}
	for _, s := range update.PlayerScores {
		scores[s.UserID] = s.Score
	}
	if scores["u1"] != 150 || scores["u2"] != 0 {
		t.Fatalf("unexpected scores: %+v", scores)
	}

	readUntil(t, conn, protocol.TypeQuestion).decode(t, &q)
	if q.Seq != 1 {
		t.Fatalf("expected second question, got seq %d", q.Seq)
	}
}

func TestWebSocketRejectsNonPlayer(t *testing.T) {
	env := newTestEnv(t, false)
	matchID := env.startMatch(t, "u1", "u2")
	conn := env.join(t, matchID, "intruder")

	var e protocol.Error
	readUntil(t, conn, protocol.TypeError).decode(t, &e)
	if !strings.Contains(e.Message, "not a player") {
		t.Fatalf("unexpected error: %q", e.Message)
	}
}

func TestWebSocketRequiresJoinFirst(t *testing.T) {
	env := newTestEnv(t, false)
	matchID := env.startMatch(t, "u1")
	conn := env.dial(t)

	send(t, conn, protocol.TypeAnswer, protocol.Answer{MatchID: matchID, QuestionID: "q1", ChoiceID: "c2"})
	var e protocol.Error
	readUntil(t, conn, protocol.TypeError).decode(t, &e)
	if !strings.Contains(e.Message, "JOIN_MATCH") {
		t.Fatalf("unexpected error: %q", e.Message)
	}
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	env := newTestEnv(t, false)
	matchID := env.startMatch(t, "u1")
	conn := env.dial(t)

	send(t, conn, protocol.TypeJoinMatch, protocol.JoinMatch{MatchID: matchID, AuthToken: "garbage"})
	readUntil(t, conn, protocol.TypeError)
}

func TestAbandonedMatchIsTerminated(t *testing.T) {
	env := newTestEnv(t, true)
	matchID := env.startMatch(t, "u1")
	conn := env.join(t, matchID, "u1")
	readUntil(t, conn, protocol.TypeQuestion)

	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if res, ok := env.results.Find(matchID); ok {
			if res.Reason != domain.EndAbandoned {
				t.Fatalf("expected abandoned, got %s", res.Reason)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("match was not terminated after all clients left")
}

type frame struct {
	protocol.Envelope
}

func (f frame) decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Payload, v); err != nil {
		t.Fatalf("decode %s payload: %v", f.Type, err)
	}
}

func send(t *testing.T, conn *websocket.Conn, typ protocol.Type, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := conn.WriteJSON(protocol.Envelope{Type: typ, Payload: raw}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil skips frames until one of type expect arrives.
func readUntil(t *testing.T, conn *websocket.Conn, expect protocol.Type) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read waiting for %s: %v", expect, err)
		}
		if f.Type == expect {
			return f
		}
	}
}

func sampleQuestions() []domain.Question {
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
