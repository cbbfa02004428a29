package app

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"quiz-match-service/internal/domain"
)

// Clock is the authoritative time source. In production use clockwork.NewRealClock(),
// in tests a clockwork fake clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) clockwork.Timer
}

// MatchStore is the keyed registry of live matches (in-memory, Redis-marked, etc).
type MatchStore interface {
	Add(match *LiveMatch) error
	Get(matchID string) (*LiveMatch, bool)
	Delete(matchID string)
	List() []*LiveMatch
}

// ResultStore appends final match records. Implementations must never update a written record.
type ResultStore interface {
	AppendResult(ctx context.Context, result domain.MatchResult) error
}

// QuestionSetRepository loads question content (from cache/backing store).
type QuestionSetRepository interface {
	GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// EventSink receives encoded server frames for a match. Publish must not block the caller for long.
type EventSink interface {
	Publish(matchID string, frame []byte)
}
