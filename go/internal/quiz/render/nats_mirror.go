package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/quiz/session"
	"github.com/mcdev12/quizlive/go/internal/quiz/transport"
)

// Publisher is the subset of *nats.Conn used by the mirror
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSConfig holds configuration for the NATS connection
type NATSConfig struct {
	URL           string
	Subject       string
	JetStream     bool
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default NATS configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Subject:       "quiz.session",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// ConnectNATS dials NATS with logging reconnect handlers
func ConnectNATS(config NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("quizlive-client"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
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

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// jetStreamPublisher publishes asynchronously so the session loop never waits for acks
type jetStreamPublisher struct {
	js jetstream.JetStream
}

// NewJetStreamPublisher publishes through JetStream. A stream must cover the mirror subjects.
func NewJetStreamPublisher(nc *nats.Conn) (Publisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return &jetStreamPublisher{js: js}, nil
}

func (p *jetStreamPublisher) Publish(subject string, data []byte) error {
	_, err := p.js.PublishAsync(subject, data)
	return err
}

// NATSMirror publishes session output so other processes can follow a player's session.
// Snapshots go to <subject>.<player>, status to <subject>.<player>.status and
// operation errors to <subject>.<player>.errors.
type NATSMirror struct {
	pub     Publisher
	subject string
	player  string
}

// NewNATSMirror mirrors to subject. player identifies this client until the
// coordinator assigns an id.
func NewNATSMirror(pub Publisher, subject, player string) *NATSMirror {
	return &NATSMirror{pub: pub, subject: subject, player: player}
}

func (m *NATSMirror) Render(snapshot session.Snapshot) {
	if snapshot.LocalPlayerID != "" {
		m.player = snapshot.LocalPlayerID
	}
	m.publish(m.base(), snapshot)
}

func (m *NATSMirror) Status(status transport.Status) {
	m.publish(m.base()+".status", map[string]transport.Status{"status": status})
}

func (m *NATSMirror) OperationError(err session.OperationError) {
	m.publish(m.base()+".errors", err)
}

func (m *NATSMirror) base() string {
	return m.subject + "." + subjectToken(m.player)
}

func (m *NATSMirror) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to marshal mirror payload")
		return
	}
	if err := m.pub.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to publish to NATS")
	}
}

// subjectToken makes an id safe to use as one NATS subject token
func subjectToken(id string) string {
	if id == "" {
		return "anonymous"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, id)
}
