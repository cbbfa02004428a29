package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is returned when a match cannot be built from the given players/questions.
	ErrInvalidConfiguration = errors.New("invalid match configuration")
	// ErrMatchNotFound is returned for match ids that are not live.
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchExists is returned when a match id is already registered.
	ErrMatchExists = errors.New("match already exists")
	// ErrAlreadyStarted is returned when starting a match that left the waiting state.
	ErrAlreadyStarted = errors.New("match already started")
	// ErrNotStarted is returned when terminating a match that never ran.
	ErrNotStarted = errors.New("match not started")
	// ErrQuestionSetNotFound indicates the question set could not be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrInvariantViolation marks internal bugs; the affected match is force-terminated.
	ErrInvariantViolation = errors.New("internal invariant violation")
)

// RejectReason explains why Answer Intake refused a submission.
type RejectReason string

const (
	ReasonMatchNotRunning         RejectReason = "MatchNotRunning"
	ReasonStaleOrFutureQuestion   RejectReason = "StaleOrFutureQuestion"
	ReasonQuestionMismatch        RejectReason = "QuestionMismatch"
	ReasonUnknownPlayer           RejectReason = "UnknownPlayer"
	ReasonDuplicateSubmission     RejectReason = "DuplicateSubmission"
	ReasonOutsideAcceptanceWindow RejectReason = "OutsideAcceptanceWindow"
)

// Rejection is the error returned for an expected, non-fatal submission refusal.
type Rejection struct {
	Reason RejectReason
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("submission rejected: %s", r.Reason)
}

// Is makes rejections comparable by reason.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Reason == r.Reason
}

var (
	ErrMatchNotRunning         = &Rejection{Reason: ReasonMatchNotRunning}
	ErrStaleOrFutureQuestion   = &Rejection{Reason: ReasonStaleOrFutureQuestion}
	ErrQuestionMismatch        = &Rejection{Reason: ReasonQuestionMismatch}
	ErrUnknownPlayer           = &Rejection{Reason: ReasonUnknownPlayer}
	ErrDuplicateSubmission     = &Rejection{Reason: ReasonDuplicateSubmission}
	ErrOutsideAcceptanceWindow = &Rejection{Reason: ReasonOutsideAcceptanceWindow}
)

// RejectReasonOf extracts the rejection reason from err, if any.
func RejectReasonOf(err error) (RejectReason, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}
