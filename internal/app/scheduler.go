package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"quiz-match-service/internal/domain"
)

// The methods below run only on the match goroutine.

func (lm *LiveMatch) start() error {
	m := lm.match
	if m.Status != domain.StatusWaiting {
		return domain.ErrAlreadyStarted
	}
	m.Status = domain.StatusRunning
	m.StartedAt = lm.svc.clock.Now()

	log.Info().
		Str("match_id", m.ID).
		Int("players", len(m.Players)).
		Int("questions", len(m.Questions)).
		Msg("match started")

	lm.svc.gateway.BroadcastMatchStart(m)
	lm.openWindow(0)
	return nil
}

// openWindow stamps the window from the server clock and schedules its
// closure after duration + grace.
func (lm *LiveMatch) openWindow(seq int) {
	m := lm.match
	if m.Status != domain.StatusRunning {
		return
	}
	if seq < m.Seq || seq >= len(m.Questions) || (m.Window != nil && !m.Window.Closed) {
		lm.abort(fmt.Errorf("%w: open window %d at seq %d", domain.ErrInvariantViolation, seq, m.Seq))
		return
	}

	q := m.Questions[seq]
	w := &domain.Window{
		Seq:         seq,
		QuestionID:  q.ID,
		OpenedAt:    lm.svc.clock.Now(),
		Duration:    q.Duration(),
		Grace:       m.Config.GracePeriod,
		Submissions: make(map[string]domain.Submission, len(m.Players)),
	}
	m.Seq = seq
	m.Window = w

	lm.timer = lm.svc.clock.AfterFunc(w.Duration+w.Grace, func() {
		lm.post(func() { lm.closeWindow(seq) })
	})

	log.Debug().
		Str("match_id", m.ID).
		Int("seq", seq).
		Str("question_id", q.ID).
		Time("deadline", w.Deadline()).
		Msg("window opened")

	lm.svc.gateway.BroadcastQuestion(m, w)
}

// closeWindow scores the window and advances the match. It is a no-op for a
// window that is already closed, not current, or for a finished match.
func (lm *LiveMatch) closeWindow(seq int) {
	m := lm.match
	if m.Status != domain.StatusRunning {
		return
	}
	w := m.Window
	if w == nil || w.Seq != seq || w.Closed {
		log.Debug().Str("match_id", m.ID).Int("seq", seq).Msg("ignoring close for inactive window")
		return
	}
	if w.OpenedAt.IsZero() {
		lm.abort(fmt.Errorf("%w: window %d has no open time", domain.ErrInvariantViolation, seq))
		return
	}

	w.Closed = true
	lm.stopTimer()
	lm.applyScores(w)
	m.Window = nil

	log.Debug().
		Str("match_id", m.ID).
		Int("seq", seq).
		Int("submissions", len(w.Submissions)).
		Msg("window closed")

	lm.svc.gateway.BroadcastScoreUpdate(m)

	if seq+1 < len(m.Questions) {
		lm.openWindow(seq + 1)
		return
	}
	lm.finish(domain.EndCompleted)
}

// applyScores is the only place player scores change. Players without a
// submission implicitly get zero for the window.
func (lm *LiveMatch) applyScores(w *domain.Window) {
	m := lm.match
	q := m.Questions[w.Seq]
	for _, p := range m.Players {
		sub, ok := w.Submissions[p.UserID]
		if !ok {
			continue
		}
		points, correct := Score(sub, w, q, m.Config.Scoring)
		latency := Latency(sub, w)

		p.Score += points
		if correct {
			p.CorrectLatency += latency
		}
		p.LastAnsweredSeq = w.Seq

		m.Audit = append(m.Audit, domain.AnswerAudit{
			Seq:        w.Seq,
			QuestionID: q.ID,
			UserID:     p.UserID,
			ChoiceID:   sub.ChoiceID,
			ReceivedAt: sub.ReceivedAt,
			LatencyMs:  latency.Milliseconds(),
			Correct:    correct,
			Points:     points,
		})
	}
}

func (lm *LiveMatch) submit(a domain.Answer, receivedAt time.Time) (domain.Submission, error) {
	sub, err := acceptSubmission(lm.match, a, receivedAt)
	if err != nil {
		return sub, err
	}

	m := lm.match
	if m.Config.CloseWhenAllAnswered && len(m.Window.Submissions) == len(m.Players) {
		lm.closeWindow(m.Window.Seq)
	}
	return sub, nil
}

// finish ends the match: cancel the timer, rank, persist, announce, evict.
func (lm *LiveMatch) finish(reason domain.EndReason) {
	m := lm.match
	if m.Status == domain.StatusFinished {
		lm.done = true
		return
	}

	lm.stopTimer()
	m.Status = domain.StatusFinished
	m.EndedAt = lm.svc.clock.Now()
	m.EndReason = reason
	m.Window = nil

	standings := Rank(m.Players)
	result := domain.MatchResult{
		MatchID:   m.ID,
		Kind:      m.Config.Kind,
		Reason:    reason,
		StartedAt: m.StartedAt,
		EndedAt:   m.EndedAt,
		Standings: standings,
		Answers:   append([]domain.AnswerAudit(nil), m.Audit...),
	}

	ctx, cancel := context.WithTimeout(context.Background(), lm.svc.persistTimeout)
	if err := lm.svc.results.AppendResult(ctx, result); err != nil {
		log.Error().Err(err).Str("match_id", m.ID).Msg("persist match result")
	}
	cancel()

	lm.svc.gateway.BroadcastMatchEnd(m, standings)
	lm.svc.store.Delete(m.ID)
	lm.done = true

	log.Info().
		Str("match_id", m.ID).
		Str("reason", string(reason)).
		Int("answers", len(result.Answers)).
		Msg("match finished")
}

// discard drops a match that never started.
func (lm *LiveMatch) discard() error {
	if lm.match.Status != domain.StatusWaiting {
		return domain.ErrAlreadyStarted
	}
	lm.svc.store.Delete(lm.id)
	lm.done = true
	return nil
}
