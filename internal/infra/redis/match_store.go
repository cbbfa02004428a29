package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
)

// MatchStore is a Redis-aware implementation of app.MatchStore.
// Notes:
//   - Match actors are process-local, so the authoritative registry is still
//     an in-memory map.
//   - Redis records which instance owns each live match so a router can send
//     a player's socket to the right instance.
type MatchStore struct {
	client   *redis.Client
	ttl      time.Duration
	instance string

	mu      sync.RWMutex
	matches map[string]*app.LiveMatch
}

func NewMatchStore(client *redis.Client, ttl time.Duration, instance string) *MatchStore {
	return &MatchStore{
		client:   client,
		ttl:      ttl,
		instance: instance,
		matches:  make(map[string]*app.LiveMatch),
	}
}

func (s *MatchStore) Add(match *app.LiveMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[match.ID()]; ok {
		return domain.ErrMatchExists
	}

	ok, err := s.client.SetNX(context.Background(), Key(match.ID()), s.instance, s.ttl).Result()
	if err != nil {
		// best-effort ownership marker; the match still runs locally
		log.Warn().Err(err).Str("match_id", match.ID()).Msg("mark match owner")
	} else if !ok {
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
	if _, ok := s.matches[matchID]; !ok {
		return
	}
	delete(s.matches, matchID)
	_ = s.client.Del(context.Background(), Key(matchID)).Err()
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

// Instance is the id this store marks its matches with.
func (s *MatchStore) Instance() string {
	return s.instance
}

// Owner returns the instance that runs matchID, if any instance does.
func (s *MatchStore) Owner(ctx context.Context, matchID string) (string, bool, error) {
	owner, err := s.client.Get(ctx, Key(matchID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return owner, true, nil
}

// Key is the Redis key that marks a live match.
func Key(matchID string) string {
	return "quiz:match:" + matchID
}
