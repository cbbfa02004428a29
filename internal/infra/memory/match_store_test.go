package memory

import (
	"context"
	"testing"
	"time"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
)

func TestMatchStoreLifecycle(t *testing.T) {
	store := NewMatchStore()
	repo := NewQuestionSetRepository(NewStaticQuestionSetLoader(map[string]domain.QuestionSet{
		"set-1": sampleSet(),
	}), time.Minute)
	service := app.NewMatchService(store, NewResultStore(), repo, app.NewGateway(), domain.MatchConfig{})

	ctx := context.Background()
	id, err := service.CreateMatchFromSet(ctx, []string{"u1", "u2"}, "set-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	match, ok := store.Get(id)
	if !ok {
		t.Fatalf("expected match present")
	}
	if got := len(store.List()); got != 1 {
		t.Fatalf("expected 1 live match, got %d", got)
	}
	if err := store.Add(match); err != domain.ErrMatchExists {
		t.Fatalf("expected ErrMatchExists, got %v", err)
	}

	if err := service.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, ok := store.Get(id); ok {
		t.Fatalf("expected waiting match discarded on shutdown")
	}
}

func TestResultStoreAppends(t *testing.T) {
	store := NewResultStore()
	_ = store.AppendResult(context.Background(), domain.MatchResult{MatchID: "m1"})
	_ = store.AppendResult(context.Background(), domain.MatchResult{MatchID: "m2"})

	if got := len(store.Results()); got != 2 {
		t.Fatalf("expected 2 results, got %d", got)
	}
	if _, ok := store.Find("m2"); !ok {
		t.Fatalf("expected m2 result")
	}
}
