package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quiz-match-service/internal/domain"
	"quiz-match-service/internal/protocol"
)

// MatchService is the part of app.MatchService the transport layer drives.
type MatchService interface {
	CreateMatch(ctx context.Context, players []string, questions []domain.Question) (string, error)
	CreateMatchFromSet(ctx context.Context, players []string, setID string) (string, error)
	StartMatch(ctx context.Context, matchID string) error
	SubmitAnswer(ctx context.Context, matchID string, a domain.Answer) (domain.Submission, error)
	TerminateMatch(ctx context.Context, matchID string, reason domain.EndReason) error
	Snapshot(ctx context.Context, matchID string) (domain.MatchSnapshot, error)
}

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// MatchLocator reports which instance hosts a live match.
type MatchLocator interface {
	Instance() string
	Owner(ctx context.Context, matchID string) (string, bool, error)
}

type WSHandler struct {
	service  MatchService
	hub      *Hub
	verifier TokenVerifier
	locator  MatchLocator
}

// NewWSHandler wires the WebSocket endpoint. With terminateWhenAbandoned a
// running match whose last connection drops is terminated as abandoned.
func NewWSHandler(service MatchService, hub *Hub, verifier TokenVerifier, terminateWhenAbandoned bool) *WSHandler {
	h := &WSHandler{service: service, hub: hub, verifier: verifier}
	if terminateWhenAbandoned {
		hub.OnEmpty(h.abandon)
	}
	return h
}

// WithLocator makes JOIN_MATCH for a match hosted by another instance fail
// with an error naming that instance instead of a plain "not found".
func (h *WSHandler) WithLocator(l MatchLocator) *WSHandler {
	h.locator = l
	return h
}

// ServeWS upgrades the request, expects JOIN_MATCH as the first message and
// then routes ANSWER messages to the match until the client disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	cfg := h.hub.cfg
	ws.SetReadLimit(cfg.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	ctx := r.Context()
	matchID, userID, err := h.join(ctx, ws)
	if err != nil {
		log.Info().Err(err).Str("remote", r.RemoteAddr).Msg("join rejected")
		h.writeDirect(ws, protocol.Error{Message: err.Error()})
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "join rejected"),
			time.Now().Add(cfg.WriteTimeout))
		ws.Close()
		return
	}

	c := h.hub.register(ws, matchID, userID)
	go h.hub.writePump(c)
	defer h.hub.unregister(c)

	h.catchUp(ctx, c)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		h.handleMessage(ctx, c, data)
	}
}

var (
	errJoinRequired = errors.New("first message must be JOIN_MATCH")
	errNotAPlayer   = errors.New("user is not a player of this match")
)

func (h *WSHandler) join(ctx context.Context, ws *websocket.Conn) (string, string, error) {
	_, data, err := ws.ReadMessage()
	if err != nil {
		return "", "", err
	}
	msg, err := protocol.DecodeClient(data)
	if err != nil {
		return "", "", err
	}
	jm, ok := msg.(protocol.JoinMatch)
	if !ok {
		return "", "", errJoinRequired
	}

	userID, err := h.verifier.Verify(jm.AuthToken)
	if err != nil {
		return "", "", err
	}
	snap, err := h.service.Snapshot(ctx, jm.MatchID)
	if errors.Is(err, domain.ErrMatchNotFound) {
		return "", "", h.locate(ctx, jm.MatchID, err)
	}
	if err != nil {
		return "", "", err
	}
	if !slices.Contains(snap.Players, userID) {
		return "", "", errNotAPlayer
	}
	return jm.MatchID, userID, nil
}

func (h *WSHandler) locate(ctx context.Context, matchID string, notFound error) error {
	if h.locator == nil {
		return notFound
	}
	owner, ok, err := h.locator.Owner(ctx, matchID)
	if err != nil {
		log.Warn().Err(err).Str("match_id", matchID).Msg("look up match owner")
		return notFound
	}
	if !ok || owner == h.locator.Instance() {
		return notFound
	}
	return fmt.Errorf("match %s is hosted by instance %s", matchID, owner)
}

// catchUp sends the current match context to a freshly joined connection.
// Catch-up frames carry no event seq; live frames may arrive around them.
func (h *WSHandler) catchUp(ctx context.Context, c *connection) {
	snap, err := h.service.Snapshot(ctx, c.matchID)
	if err != nil || snap.Status != domain.StatusRunning {
		return
	}
	h.send(c, protocol.MatchStart{
		MatchID: snap.MatchID,
		Players: snap.Players,
		StartAt: snap.StartedAt.UTC(),
	})
	if snap.Current != nil {
		h.send(c, protocol.NewQuestion(*snap.Current))
	}
}

func (h *WSHandler) handleMessage(ctx context.Context, c *connection, data []byte) {
	msg, err := protocol.DecodeClient(data)
	if err != nil {
		h.send(c, protocol.Error{Message: err.Error()})
		return
	}

	switch m := msg.(type) {
	case protocol.JoinMatch:
		h.send(c, protocol.Error{Message: "already joined"})
	case protocol.Answer:
		if m.MatchID != "" && m.MatchID != c.matchID {
			h.send(c, protocol.Error{Message: "answer for another match"})
			return
		}
		_, err := h.service.SubmitAnswer(ctx, c.matchID, domain.Answer{
			UserID:     c.userID,
			Seq:        m.Seq,
			QuestionID: m.QuestionID,
			ChoiceID:   m.ChoiceID,
			ClientTs:   m.ClientTs,
		})
		// An evicted match has finished since this connection joined.
		_, rejected := domain.RejectReasonOf(err)
		if err != nil && !rejected && !errors.Is(err, domain.ErrMatchNotFound) {
			h.send(c, protocol.Error{Message: err.Error()})
			return
		}
		h.send(c, protocol.AnswerResult{Seq: m.Seq, QuestionID: m.QuestionID, Recorded: err == nil})
	}
}

func (h *WSHandler) send(c *connection, msg protocol.ServerMessage) {
	frame, err := protocol.EncodeServer(0, msg)
	if err != nil {
		log.Error().Err(err).Str("type", string(msg.Type())).Msg("encode message")
		return
	}
	if !h.hub.unicast(c, frame) {
		log.Debug().Str("connection_id", c.id).Str("type", string(msg.Type())).Msg("dropping unicast frame")
	}
}

// writeDirect is only valid before the write pump owns the socket.
func (h *WSHandler) writeDirect(ws *websocket.Conn, msg protocol.ServerMessage) {
	frame, err := protocol.EncodeServer(0, msg)
	if err != nil {
		return
	}
	_ = ws.SetWriteDeadline(time.Now().Add(h.hub.cfg.WriteTimeout))
	_ = ws.WriteMessage(websocket.TextMessage, frame)
}

func (h *WSHandler) abandon(matchID string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.hub.cfg.WriteTimeout)
	defer cancel()

	snap, err := h.service.Snapshot(ctx, matchID)
	if err != nil || snap.Status != domain.StatusRunning {
		return
	}
	// A client may have reconnected between the drop and now.
	if h.hub.Connections(matchID) > 0 {
		return
	}
	if err := h.service.TerminateMatch(ctx, matchID, domain.EndAbandoned); err != nil {
		log.Warn().Err(err).Str("match_id", matchID).Msg("terminate abandoned match")
		return
	}
	log.Info().Str("match_id", matchID).Msg("match abandoned by all clients")
}
