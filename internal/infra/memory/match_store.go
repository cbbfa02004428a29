package memory

import (
	"sync"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
)

// MatchStore is an in-memory implementation of app.MatchStore.
type MatchStore struct {
	mu      sync.RWMutex
	matches map[string]*app.LiveMatch
}

func NewMatchStore() *MatchStore {
	return &MatchStore{
		matches: make(map[string]*app.LiveMatch),
	}
}

func (s *MatchStore) Add(match *app.LiveMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[match.ID()]; ok {
		return domain.ErrMatchExists
	}
	s.matches[match.ID()] = match
	return nil
}

func (s *MatchStore) Get(matchID string) (*app.LiveMatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	match, ok := s.matches[matchID]
	return match, ok
}

func (s *MatchStore) Delete(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, matchID)
}

func (s *MatchStore) List() []*app.LiveMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.LiveMatch, 0, len(s.matches))
	for _, m := range s.matches {
		out = append(out, m)
	}
	return out
}
