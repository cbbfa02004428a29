package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"quiz-match-service/internal/domain"
	"quiz-match-service/internal/protocol"
)

// Gateway fans one logical event out to every sink exactly once, stamping a
// per-match event sequence number for client-side ordering. It never mutates
// match state and never fails the caller.
type Gateway struct {
	sinks []EventSink

	mu   sync.Mutex
	seqs map[string]uint64
}

func NewGateway(sinks ...EventSink) *Gateway {
	return &Gateway{
		sinks: sinks,
		seqs:  make(map[string]uint64),
	}
}

func (g *Gateway) BroadcastMatchStart(m *domain.Match) {
	g.emit(m.ID, protocol.MatchStart{
		MatchID: m.ID,
		Players: m.PlayerIDs(),
		StartAt: m.StartedAt.UTC(),
	}, false)
}

func (g *Gateway) BroadcastQuestion(m *domain.Match, w *domain.Window) {
	g.emit(m.ID, protocol.NewQuestion(m.View(w.Seq, w.OpenedAt)), false)
}

func (g *Gateway) BroadcastScoreUpdate(m *domain.Match) {
	g.emit(m.ID, protocol.ScoreUpdate{PlayerScores: m.Scores()}, false)
}

func (g *Gateway) BroadcastMatchEnd(m *domain.Match, standings []domain.Standing) {
	g.emit(m.ID, protocol.NewMatchEnd(m.ID, m.EndReason, standings), true)
}

func (g *Gateway) emit(matchID string, msg protocol.ServerMessage, last bool) {
	g.mu.Lock()
	g.seqs[matchID]++
	seq := g.seqs[matchID]
	if last {
		delete(g.seqs, matchID)
	}
	g.mu.Unlock()

	frame, err := protocol.EncodeServer(seq, msg)
	if err != nil {
		log.Error().Err(err).Str("match_id", matchID).Str("type", string(msg.Type())).Msg("encode event")
		return
	}
	for _, sink := range g.sinks {
		g.publish(sink, matchID, frame)
	}
	log.Debug().
		Str("match_id", matchID).
		Str("type", string(msg.Type())).
		Uint64("event_seq", seq).
		Msg("event broadcasted")
}

func (g *Gateway) publish(sink EventSink, matchID string, frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("match_id", matchID).Msg("event sink panicked")
		}
	}()
	sink.Publish(matchID, frame)
}
