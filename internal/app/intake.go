package app

import (
	"time"

	"quiz-match-service/internal/domain"
)

// acceptSubmission validates an answer against the active window and records it.
// Checks run in a fixed order and the first failure wins. receivedAt is the
// server arrival time; the client timestamp plays no part here.
func acceptSubmission(m *domain.Match, a domain.Answer, receivedAt time.Time) (domain.Submission, error) {
	if m.Status != domain.StatusRunning {
		return domain.Submission{}, domain.ErrMatchNotRunning
	}

	w := m.Window
	if w == nil || w.Closed || a.Seq != w.Seq {
		return domain.Submission{}, domain.ErrStaleOrFutureQuestion
	}
	if a.QuestionID != w.QuestionID {
		return domain.Submission{}, domain.ErrQuestionMismatch
	}

	player, ok := m.Player(a.UserID)
	if !ok {
		return domain.Submission{}, domain.ErrUnknownPlayer
	}
	if _, dup := w.Submissions[a.UserID]; dup || player.LastAnsweredSeq >= w.Seq {
		return domain.Submission{}, domain.ErrDuplicateSubmission
	}

	if receivedAt.Before(w.OpenedAt) || receivedAt.After(w.Deadline()) {
		return domain.Submission{}, domain.ErrOutsideAcceptanceWindow
	}

	sub := domain.Submission{
		UserID:     a.UserID,
		ChoiceID:   a.ChoiceID,
		ReceivedAt: receivedAt,
		ClientTs:   a.ClientTs,
	}
	w.Submissions[a.UserID] = sub
	return sub, nil
}
