// Package protocol defines the JSON wire messages exchanged with match clients.
// Both directions are closed sets: every message kind is a concrete type here.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quiz-match-service/internal/domain"
)

// Type identifies a message kind on the wire.
type Type string

const (
	TypeMatchStart   Type = "MATCH_START"
	TypeQuestion     Type = "QUESTION"
	TypeScoreUpdate  Type = "SCORE_UPDATE"
	TypeMatchEnd     Type = "MATCH_END"
	TypeAnswerResult Type = "ANSWER_RESULT"
	TypeError        Type = "ERROR"

	TypeJoinMatch Type = "JOIN_MATCH"
	TypeAnswer    Type = "ANSWER"
)

// ErrUnknownType is returned by DecodeClient for message kinds clients may not send.
var ErrUnknownType = errors.New("unknown message type")

// ServerMessage is implemented only by the server -> client payloads below.
type ServerMessage interface {
	Type() Type
	serverMessage()
}

// ClientMessage is implemented only by the client -> server payloads below.
type ClientMessage interface {
	Type() Type
	clientMessage()
}

type MatchStart struct {
	MatchID string    `json:"matchId"`
	Players []string  `json:"players"`
	StartAt time.Time `json:"startAtUtc"`
}

type Question struct {
	Seq        int             `json:"seq"`
	QuestionID string          `json:"questionId"`
	Text       string          `json:"text"`
	Choices    []domain.Choice `json:"choices"`
	DurationMs int64           `json:"durationMs"`
	StartAt    time.Time       `json:"startAtUtc"`
}

type ScoreUpdate struct {
	PlayerScores []domain.PlayerScore `json:"playerScores"`
}

type FinalScore struct {
	UserID string `json:"userId"`
	Score  int    `json:"score"`
	Rank   int    `json:"rank"`
}

type MatchEnd struct {
	MatchID     string       `json:"matchId"`
	FinalScores []FinalScore `json:"finalScores"`
	Reason      string       `json:"reason"`
}

// AnswerResult is sent only to the submitting user. It deliberately carries no rejection reason.
type AnswerResult struct {
	Seq        int    `json:"seq"`
	QuestionID string `json:"questionId"`
	Recorded   bool   `json:"recorded"`
}

type Error struct {
	Message string `json:"message"`
}

type JoinMatch struct {
	MatchID   string `json:"matchId"`
	AuthToken string `json:"authToken"`
}

// Answer carries ClientTs for telemetry only.
type Answer struct {
	MatchID    string `json:"matchId"`
	Seq        int    `json:"seq"`
	QuestionID string `json:"questionId"`
	ChoiceID   string `json:"choiceId"`
	ClientTs   int64  `json:"clientTs"`
}

func (MatchStart) Type() Type   { return TypeMatchStart }
func (Question) Type() Type     { return TypeQuestion }
func (ScoreUpdate) Type() Type  { return TypeScoreUpdate }
func (MatchEnd) Type() Type     { return TypeMatchEnd }
func (AnswerResult) Type() Type { return TypeAnswerResult }
func (Error) Type() Type        { return TypeError }
func (JoinMatch) Type() Type    { return TypeJoinMatch }
func (Answer) Type() Type       { return TypeAnswer }

func (MatchStart) serverMessage()   {}
func (Question) serverMessage()     {}
func (ScoreUpdate) serverMessage()  {}
func (MatchEnd) serverMessage()     {}
func (AnswerResult) serverMessage() {}
func (Error) serverMessage()        {}

func (JoinMatch) clientMessage() {}
func (Answer) clientMessage()    {}

// Envelope is the framing used for every message. Seq is set on server events only.
type Envelope struct {
	Type    Type            `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeServer frames msg with the given event sequence number.
func EncodeServer(seq uint64, msg ServerMessage) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msg.Type(), err)
	}
	return json.Marshal(Envelope{Type: msg.Type(), Seq: seq, Payload: payload})
}

// DecodeClient parses a client frame into its concrete message type.
func DecodeClient(data []byte) (ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case TypeJoinMatch:
		var m JoinMatch
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return m, nil
	case TypeAnswer:
		var m Answer
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// NewQuestion converts a domain view; the correct choice is not part of the view.
func NewQuestion(v domain.QuestionView) Question {
	return Question{
		Seq:        v.Seq,
		QuestionID: v.QuestionID,
		Text:       v.Text,
		Choices:    v.Choices,
		DurationMs: v.DurationMs,
		StartAt:    v.StartAt,
	}
}

// NewMatchEnd converts final standings.
func NewMatchEnd(matchID string, reason domain.EndReason, standings []domain.Standing) MatchEnd {
	scores := make([]FinalScore, 0, len(standings))
	for _, s := range standings {
		scores = append(scores, FinalScore{UserID: s.UserID, Score: s.Score, Rank: s.Rank})
	}
	return MatchEnd{MatchID: matchID, FinalScores: scores, Reason: string(reason)}
}
