package app

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quiz-match-service/internal/domain"
)

const inboxSize = 64

// LiveMatch owns one match and serializes every operation on it through a
// single goroutine. Nothing outside that goroutine touches the match state.
type LiveMatch struct {
	id  string
	svc *MatchService

	// owned by the run goroutine
	match *domain.Match
	timer clockwork.Timer
	done  bool

	inbox   chan func()
	stopped chan struct{}
	// fault is written before stopped is closed
	fault error
}

func newLiveMatch(svc *MatchService, m *domain.Match) *LiveMatch {
	lm := &LiveMatch{
		id:      m.ID,
		svc:     svc,
		match:   m,
		inbox:   make(chan func(), inboxSize),
		stopped: make(chan struct{}),
	}
	go lm.run()
	return lm
}

// ID returns the match id.
func (lm *LiveMatch) ID() string {
	return lm.id
}

// Done is closed once the match has finished or been discarded.
func (lm *LiveMatch) Done() <-chan struct{} {
	return lm.stopped
}

func (lm *LiveMatch) run() {
	defer close(lm.stopped)
	for !lm.done {
		cmd := <-lm.inbox
		lm.exec(cmd)
	}
}

func (lm *LiveMatch) exec(cmd func()) {
	defer func() {
		if r := recover(); r != nil {
			lm.abort(fmt.Errorf("%w: %v", domain.ErrInvariantViolation, r))
		}
	}()
	cmd()
}

// do runs fn on the match goroutine and waits for its result. Once fn is
// queued it always runs, so ctx only bounds the wait for a queue slot.
func (lm *LiveMatch) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	cmd := func() { reply <- fn() }

	select {
	case lm.inbox <- cmd:
	case <-lm.stopped:
		return domain.ErrMatchNotFound
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-lm.stopped:
		select {
		case err := <-reply:
			return err
		default:
		}
		if lm.fault != nil {
			return lm.fault
		}
		return domain.ErrMatchNotFound
	}
}

// post queues fn without waiting. Used by timers.
func (lm *LiveMatch) post(fn func()) {
	select {
	case lm.inbox <- fn:
	case <-lm.stopped:
	}
}

// abort force-terminates the match after an internal invariant violation.
// It must never take down anything but this match.
func (lm *LiveMatch) abort(cause error) {
	log.Error().Err(cause).Str("match_id", lm.id).Msg("force-terminating match")
	lm.fault = cause

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("match_id", lm.id).Msg("terminate after fault failed")
			lm.stopTimer()
			lm.match.Status = domain.StatusFinished
			lm.svc.store.Delete(lm.id)
			lm.done = true
		}
	}()
	lm.finish(domain.EndInternalError)
}

// stop ends the goroutine of a match that was never registered.
func (lm *LiveMatch) stop() {
	lm.done = true
}

func (lm *LiveMatch) stopTimer() {
	if lm.timer != nil {
		lm.timer.Stop()
		lm.timer = nil
	}
}
