package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"quiz-match-service/internal/domain"
)

const defaultPersistTimeout = 5 * time.Second

// MatchService is the match lifecycle controller: it creates, starts and
// terminates matches and routes answers to the owning match.
type MatchService struct {
	store          MatchStore
	results        ResultStore
	questions      QuestionSetRepository
	gateway        *Gateway
	clock          Clock
	cfg            domain.MatchConfig
	persistTimeout time.Duration
	newID          func() string
}

// Option customizes a MatchService.
type Option func(*MatchService)

// WithClock replaces the real clock, mainly for deterministic tests.
func WithClock(c Clock) Option {
	return func(s *MatchService) { s.clock = c }
}

// WithPersistTimeout bounds how long terminate waits for the result store.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *MatchService) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// WithIDGenerator replaces uuid-based match ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *MatchService) { s.newID = fn }
}

func NewMatchService(store MatchStore, results ResultStore, questions QuestionSetRepository, gateway *Gateway, cfg domain.MatchConfig, opts ...Option) *MatchService {
	s := &MatchService{
		store:          store,
		results:        results,
		questions:      questions,
		gateway:        gateway,
		clock:          clockwork.NewRealClock(),
		cfg:            cfg,
		persistTimeout: defaultPersistTimeout,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateMatch builds a waiting match and registers it in the live store.
func (s *MatchService) CreateMatch(_ context.Context, players []string, questions []domain.Question) (string, error) {
	m, err := domain.NewMatch(s.newID(), players, questions, s.cfg, s.clock.Now())
	if err != nil {
		return "", err
	}

	lm := newLiveMatch(s, m)
	if err := s.store.Add(lm); err != nil {
		lm.post(lm.stop)
		return "", err
	}

	log.Info().
		Str("match_id", m.ID).
		Strs("players", players).
		Int("questions", len(questions)).
		Msg("match created")
	return m.ID, nil
}

// CreateMatchFromSet loads a stored question set and creates a match from it.
func (s *MatchService) CreateMatchFromSet(ctx context.Context, players []string, setID string) (string, error) {
	set, err := s.questions.GetQuestionSet(ctx, setID)
	if err != nil {
		return "", err
	}
	return s.CreateMatch(ctx, players, set.Questions)
}

// StartMatch moves a waiting match to running and opens the first window.
func (s *MatchService) StartMatch(ctx context.Context, matchID string) error {
	lm, ok := s.store.Get(matchID)
	if !ok {
		return domain.ErrMatchNotFound
	}
	return lm.do(ctx, lm.start)
}

// SubmitAnswer stamps the arrival time and hands the answer to the match.
// A nil error means the submission was recorded.
func (s *MatchService) SubmitAnswer(ctx context.Context, matchID string, a domain.Answer) (domain.Submission, error) {
	receivedAt := s.clock.Now()

	lm, ok := s.store.Get(matchID)
	if !ok {
		return domain.Submission{}, domain.ErrMatchNotFound
	}

	var sub domain.Submission
	err := lm.do(ctx, func() error {
		var err error
		sub, err = lm.submit(a, receivedAt)
		return err
	})
	if reason, rejected := domain.RejectReasonOf(err); rejected {
		log.Info().
			Str("match_id", matchID).
			Str("user_id", a.UserID).
			Int("seq", a.Seq).
			Str("question_id", a.QuestionID).
			Str("reason", string(reason)).
			Time("received_at", receivedAt).
			Int64("client_ts", a.ClientTs).
			Msg("answer rejected")
	}
	return sub, err
}

// TerminateMatch finishes a running match. Terminating a finished or evicted
// match is a no-op; a waiting match cannot skip running.
func (s *MatchService) TerminateMatch(ctx context.Context, matchID string, reason domain.EndReason) error {
	lm, ok := s.store.Get(matchID)
	if !ok {
		return nil
	}
	err := lm.do(ctx, func() error {
		if lm.match.Status == domain.StatusWaiting {
			return domain.ErrNotStarted
		}
		lm.finish(reason)
		return nil
	})
	if errors.Is(err, domain.ErrMatchNotFound) {
		return nil
	}
	return err
}

// Snapshot returns a copy of the match's visible state.
func (s *MatchService) Snapshot(ctx context.Context, matchID string) (domain.MatchSnapshot, error) {
	lm, ok := s.store.Get(matchID)
	if !ok {
		return domain.MatchSnapshot{}, domain.ErrMatchNotFound
	}
	var snap domain.MatchSnapshot
	err := lm.do(ctx, func() error {
		snap = lm.match.Snapshot()
		return nil
	})
	return snap, err
}

// Shutdown terminates every running match and discards waiting ones.
func (s *MatchService) Shutdown(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, lm := range s.store.List() {
		lm := lm
		g.Go(func() error {
			err := s.TerminateMatch(ctx, lm.ID(), domain.EndShutdown)
			if errors.Is(err, domain.ErrNotStarted) {
				err = lm.do(ctx, lm.discard)
			}
			if errors.Is(err, domain.ErrMatchNotFound) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}
