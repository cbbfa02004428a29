// Package natsbus mirrors match events onto NATS so other instances,
// spectator relays and audit consumers can follow a match.
package natsbus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "match.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Publisher is an app.EventSink backed by core NATS.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

func Connect(cfg Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("quiz-match-service"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewPublisher(nc, cfg.SubjectPrefix), nil
}

func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultConfig().SubjectPrefix
	}
	return &Publisher{nc: nc, prefix: prefix}
}

// Publish hands the frame to the NATS client buffer; delivery is the transport's concern.
func (p *Publisher) Publish(matchID string, frame []byte) {
	if err := p.nc.Publish(p.Subject(matchID), frame); err != nil {
		log.Warn().Err(err).Str("match_id", matchID).Msg("publish match event to NATS")
	}
}

// Subject is the subject events for matchID are published on.
func (p *Publisher) Subject(matchID string) string {
	return fmt.Sprintf("%s.%s", p.prefix, matchID)
}

// Subscribe delivers every frame of matchID to fn. Use "*" to follow all matches.
func (p *Publisher) Subscribe(matchID string, fn func(frame []byte)) (*nats.Subscription, error) {
	sub, err := p.nc.Subscribe(p.Subject(matchID), func(msg *nats.Msg) {
		fn(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", p.Subject(matchID), err)
	}
	return sub, nil
}

// Close flushes pending events and closes the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
