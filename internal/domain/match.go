package domain

import (
	"fmt"
	"time"
)

// Match is the in-memory state of one live match. It is not safe for
// concurrent use; the owning actor serializes every access.
type Match struct {
	ID        string
	Questions []Question
	Players   []*Player
	Seq       int
	Status    MatchStatus
	Window    *Window
	Config    MatchConfig
	CreatedAt time.Time
	StartedAt time.Time
	EndedAt   time.Time
	EndReason EndReason
	Audit     []AnswerAudit

	players map[string]*Player
}

// NewMatch validates the inputs and builds a waiting match at sequence 0.
func NewMatch(id string, userIDs []string, questions []Question, cfg MatchConfig, now time.Time) (*Match, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrInvalidConfiguration)
	}
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: no players", ErrInvalidConfiguration)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Match{
		ID:        id,
		Questions: make([]Question, len(questions)),
		Players:   make([]*Player, 0, len(userIDs)),
		Status:    StatusWaiting,
		Config:    cfg,
		CreatedAt: now,
		players:   make(map[string]*Player, len(userIDs)),
	}

	for _, uid := range userIDs {
		if uid == "" {
			return nil, fmt.Errorf("%w: empty player id", ErrInvalidConfiguration)
		}
		if _, dup := m.players[uid]; dup {
			return nil, fmt.Errorf("%w: duplicate player %q", ErrInvalidConfiguration, uid)
		}
		p := &Player{UserID: uid, LastAnsweredSeq: -1}
		m.players[uid] = p
		m.Players = append(m.Players, p)
	}

	if err := validateQuestions(questions); err != nil {
		return nil, err
	}
	for i, q := range questions {
		// copy choices so callers cannot mutate the match through a shared slice
		q.Choices = append([]Choice(nil), q.Choices...)
		m.Questions[i] = q
	}
	return m, nil
}

// Validate reports whether every question of the set could run in a match.
func (s QuestionSet) Validate() error {
	if len(s.Questions) == 0 {
		return fmt.Errorf("%w: question set %q is empty", ErrInvalidConfiguration, s.ID)
	}
	return validateQuestions(s.Questions)
}

func validateQuestions(questions []Question) error {
	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if q.ID == "" || len(q.Choices) == 0 {
			return fmt.Errorf("%w: question %d has no id or choices", ErrInvalidConfiguration, i)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question %q", ErrInvalidConfiguration, q.ID)
		}
		seen[q.ID] = struct{}{}
		if q.DurationMs <= 0 || q.DurationMs > MaxQuestionDurationMs {
			return fmt.Errorf("%w: question %q duration must be within (0, %d] ms", ErrInvalidConfiguration, q.ID, MaxQuestionDurationMs)
		}
		if !q.HasChoice(q.CorrectChoiceID) {
			return fmt.Errorf("%w: question %q correct choice not among choices", ErrInvalidConfiguration, q.ID)
		}
	}
	return nil
}

func (c MatchConfig) validate() error {
	sc := c.Scoring
	if sc.BasePoints < 0 || sc.BasePoints > MaxPoints || sc.TimeBonusMax < 0 || sc.TimeBonusMax > MaxPoints {
		return fmt.Errorf("%w: scoring values must be within [0, %d]", ErrInvalidConfiguration, MaxPoints)
	}
	if c.GracePeriod < 0 || c.GracePeriod > MaxGracePeriod {
		return fmt.Errorf("%w: grace period must be within [0, %s]", ErrInvalidConfiguration, MaxGracePeriod)
	}
	return nil
}

// Player looks up a participant by user id.
func (m *Match) Player(userID string) (*Player, bool) {
	p, ok := m.players[userID]
	return p, ok
}

// Scores returns scores in player order.
func (m *Match) Scores() []PlayerScore {
	out := make([]PlayerScore, 0, len(m.Players))
	for _, p := range m.Players {
		out = append(out, PlayerScore{UserID: p.UserID, Score: p.Score})
	}
	return out
}

// PlayerIDs returns user ids in player order.
func (m *Match) PlayerIDs() []string {
	out := make([]string, 0, len(m.Players))
	for _, p := range m.Players {
		out = append(out, p.UserID)
	}
	return out
}

// View builds the client-facing view of question seq at the given open time.
func (m *Match) View(seq int, openedAt time.Time) QuestionView {
	q := m.Questions[seq]
	return QuestionView{
		Seq:        seq,
		QuestionID: q.ID,
		Text:       q.Text,
		Choices:    append([]Choice(nil), q.Choices...),
		DurationMs: q.DurationMs,
		StartAt:    openedAt.UTC(),
	}
}

// Snapshot copies the externally visible state.
func (m *Match) Snapshot() MatchSnapshot {
	s := MatchSnapshot{
		MatchID:   m.ID,
		Status:    m.Status,
		Seq:       m.Seq,
		Players:   m.PlayerIDs(),
		Scores:    m.Scores(),
		StartedAt: m.StartedAt,
	}
	if m.Window != nil && !m.Window.Closed {
		v := m.View(m.Window.Seq, m.Window.OpenedAt)
		s.Current = &v
	}
	return s
}
