package domain

import "time"

// MatchStatus is the lifecycle state of a match: waiting -> running -> finished.
type MatchStatus string

const (
	StatusWaiting  MatchStatus = "waiting"
	StatusRunning  MatchStatus = "running"
	StatusFinished MatchStatus = "finished"
)

// EndReason records why a match finished.
type EndReason string

const (
	EndCompleted     EndReason = "completed"
	EndAbandoned     EndReason = "abandoned"
	EndAdmin         EndReason = "admin"
	EndShutdown      EndReason = "shutdown"
	EndInternalError EndReason = "internal_error"
)

// Choice is one selectable answer of a question.
type Choice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is immutable once a match is constructed. CorrectChoiceID never leaves the server.
type Question struct {
	ID              string   `json:"id"`
	Text            string   `json:"text"`
	Choices         []Choice `json:"choices"`
	CorrectChoiceID string   `json:"correctChoiceId"`
	DurationMs      int64    `json:"durationMs"`
}

// Duration returns the nominal answer window length.
func (q Question) Duration() time.Duration {
	return time.Duration(q.DurationMs) * time.Millisecond
}

// HasChoice reports whether id is one of the question's choices.
func (q Question) HasChoice(id string) bool {
	for _, c := range q.Choices {
		if c.ID == id {
			return true
		}
	}
	return false
}

// QuestionSet is a stored, reusable list of questions.
type QuestionSet struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// Player is a participant entry. Score, LastAnsweredSeq and CorrectLatency
// change only when a window is scored.
type Player struct {
	UserID          string
	Score           int
	LastAnsweredSeq int
	CorrectLatency  time.Duration
}

// Submission is a recorded answer. ReceivedAt is the server arrival time;
// ClientTs is telemetry and never used for decisions.
type Submission struct {
	UserID     string
	ChoiceID   string
	ReceivedAt time.Time
	ClientTs   int64
}

// Window is the live answer-acceptance span of one question.
type Window struct {
	Seq         int
	QuestionID  string
	OpenedAt    time.Time
	Duration    time.Duration
	Grace       time.Duration
	Submissions map[string]Submission
	Closed      bool
}

// Deadline is the last instant a submission may arrive.
func (w *Window) Deadline() time.Time {
	return w.OpenedAt.Add(w.Duration + w.Grace)
}

// Upper bounds on match inputs. They keep every score computation well
// inside int64 and every window inside a time.Duration.
const (
	MaxPoints             = 1_000_000
	MaxQuestionDurationMs = int64(time.Hour / time.Millisecond)
	MaxGracePeriod        = time.Minute
)

// ScoringConfig holds the baseline scoring rule parameters.
type ScoringConfig struct {
	BasePoints   int `yaml:"basePoints"`
	TimeBonusMax int `yaml:"timeBonusMax"`
}

// MatchConfig is fixed per match at creation.
type MatchConfig struct {
	Kind                 string
	Scoring              ScoringConfig
	GracePeriod          time.Duration
	CloseWhenAllAnswered bool
}

// Answer is an inbound ANSWER after authentication.
type Answer struct {
	UserID     string
	Seq        int
	QuestionID string
	ChoiceID   string
	ClientTs   int64
}

// AnswerAudit is one scored submission kept for dispute resolution.
type AnswerAudit struct {
	Seq        int       `json:"seq"`
	QuestionID string    `json:"questionId"`
	UserID     string    `json:"userId"`
	ChoiceID   string    `json:"choiceId"`
	ReceivedAt time.Time `json:"receivedAt"`
	LatencyMs  int64     `json:"latencyMs"`
	Correct    bool      `json:"correct"`
	Points     int       `json:"points"`
}

// PlayerScore is the wire-friendly score of one player.
type PlayerScore struct {
	UserID string `json:"userId"`
	Score  int    `json:"score"`
}

// Standing is a ranked final position.
type Standing struct {
	UserID           string `json:"userId"`
	Score            int    `json:"score"`
	Rank             int    `json:"rank"`
	CorrectLatencyMs int64  `json:"correctLatencyMs"`
}

// MatchResult is the append-only record written when a match ends.
type MatchResult struct {
	MatchID   string        `json:"matchId"`
	Kind      string        `json:"kind"`
	Reason    EndReason     `json:"reason"`
	StartedAt time.Time     `json:"startedAt"`
	EndedAt   time.Time     `json:"endedAt"`
	Standings []Standing    `json:"standings"`
	Answers   []AnswerAudit `json:"answers"`
}

// QuestionView is a question as clients may see it.
type QuestionView struct {
	Seq        int       `json:"seq"`
	QuestionID string    `json:"questionId"`
	Text       string    `json:"text"`
	Choices    []Choice  `json:"choices"`
	DurationMs int64     `json:"durationMs"`
	StartAt    time.Time `json:"startAtUtc"`
}

// MatchSnapshot is a read-only copy of live match state.
type MatchSnapshot struct {
	MatchID   string        `json:"matchId"`
	Status    MatchStatus   `json:"status"`
	Seq       int           `json:"seq"`
	Players   []string      `json:"players"`
	Scores    []PlayerScore `json:"scores"`
	StartedAt time.Time     `json:"startedAt"`
	Current   *QuestionView `json:"current,omitempty"`
}
