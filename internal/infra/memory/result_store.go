package memory

import (
	"context"
	"sync"

	"quiz-match-service/internal/domain"
)

// ResultStore keeps match results in an append-only slice. Useful for demos and tests.
type ResultStore struct {
	mu      sync.RWMutex
	results []domain.MatchResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{}
}

func (s *ResultStore) AppendResult(_ context.Context, result domain.MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// Results returns a copy of everything appended so far.
func (s *ResultStore) Results() []domain.MatchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.MatchResult(nil), s.results...)
}

// Find returns the result for matchID, if written.
func (s *ResultStore) Find(matchID string) (domain.MatchResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.results {
		if r.MatchID == matchID {
			return r, true
		}
	}
	return domain.MatchResult{}, false
}
