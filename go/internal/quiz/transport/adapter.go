package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Status is the observable connection phase
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusError      Status = "error"
)

// ErrClosed is returned by Send after Close
var ErrClosed = errors.New("transport closed")

// Receiver gets inbound frames and status transitions.
// Calls come from transport goroutines and must not block for long.
type Receiver interface {
	HandleFrame(frame []byte)
	HandleStatus(status Status)
}

// Config holds configuration for the coordinator connection
type Config struct {
	Endpoint       string
	PlayerID       string // sent as ?playerId= when set
	RetryDelay     time.Duration
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBufferSize int
}

// DefaultConfig returns default connection configuration
func DefaultConfig() Config {
	return Config{
		Endpoint:       "ws://localhost:8000/ws",
		RetryDelay:     300 * time.Millisecond,
		DialTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBufferSize: 256,
	}
}

// Option configures an Adapter
type Option func(*Adapter)

// WithClock sets the clock driving the send-retry delay
func WithClock(clock clockwork.Clock) Option {
	return func(a *Adapter) { a.clock = clock }
}

func WithMetrics(metrics MetricsCollector) Option {
	return func(a *Adapter) { a.metrics = metrics }
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(a *Adapter) { a.dialer = dialer }
}

// Adapter owns the single websocket connection to the coordinator.
// It never reconnects on its own; Connect or a pending Send does.
type Adapter struct {
	config   Config
	receiver Receiver
	clock    clockwork.Clock
	metrics  MetricsCollector
	dialer   *websocket.Dialer

	// reportMu keeps receiver status calls in the same order as the transitions
	reportMu sync.Mutex

	mu       sync.Mutex
	status   Status
	link     *link
	pending  [][]byte
	retrying bool
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
}

// link is one established connection and its pumps
type link struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	opened time.Time
}

// New creates an adapter in the closed state. Nothing is dialed until Connect or Send.
func New(config Config, receiver Receiver, opts ...Option) *Adapter {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Adapter{
		config:   config,
		receiver: receiver,
		clock:    clockwork.NewRealClock(),
		metrics:  &NoOpMetricsCollector{},
		status:   StatusClosed,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.dialer == nil {
		a.dialer = &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: config.DialTimeout,
		}
	}
	return a
}

// Status returns the current connection phase
func (a *Adapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Connect starts a connection attempt unless one is open or in progress.
func (a *Adapter) Connect() {
	a.mu.Lock()
	if a.closed || a.status == StatusConnecting || a.status == StatusOpen {
		a.mu.Unlock()
		return
	}
	a.status = StatusConnecting
	a.mu.Unlock()

	go a.dial()
}

// Send writes a frame on the open connection. Without one, the frame is queued,
// a connection attempt is started, and delivery is retried every RetryDelay.
func (a *Adapter) Send(frame []byte) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}

	if a.status == StatusOpen && a.link != nil && len(a.pending) == 0 {
		l := a.link
		ok := l.enqueue(frame)
		a.mu.Unlock()
		if !ok {
			log.Warn().Str("connection_id", l.id).Msg("send buffer full, dropping frame")
		}
		return nil
	}

	a.pending = append(a.pending, frame)
	startRetry := !a.retrying
	a.retrying = true
	queued := len(a.pending)
	a.mu.Unlock()

	log.Debug().Int("queued", queued).Msg("connection not open, frame queued for retry")

	a.Connect()
	if startRetry {
		go a.retryLoop()
	}
	return nil
}

// Close shuts the connection and stops retries. The adapter cannot be reused.
func (a *Adapter) Close() error {
	var l *link
	a.transition(func() (Status, bool) {
		if a.closed {
			return "", false
		}
		a.closed = true
		l = a.link
		a.link = nil
		a.pending = nil
		prev := a.status
		a.status = StatusClosed
		return StatusClosed, prev != StatusClosed
	})
	a.cancel()

	if l != nil {
		l.shutdown()
		log.Info().Str("connection_id", l.id).Msg("connection closed")
	}
	return nil
}

// transition mutates state under mu and reports the resulting status, if any, in order.
func (a *Adapter) transition(fn func() (Status, bool)) {
	a.reportMu.Lock()
	defer a.reportMu.Unlock()

	a.mu.Lock()
	status, report := fn()
	a.mu.Unlock()

	if report {
		a.receiver.HandleStatus(status)
	}
}

func (a *Adapter) dial() {
	a.transition(func() (Status, bool) {
		return StatusConnecting, !a.closed && a.status == StatusConnecting
	})

	endpoint, err := a.endpoint()
	if err != nil {
		log.Error().Err(err).Str("endpoint", a.config.Endpoint).Msg("invalid endpoint")
		a.fail()
		return
	}

	ctx, cancel := context.WithTimeout(a.ctx, a.config.DialTimeout)
	defer cancel()

	start := time.Now()
	conn, _, err := a.dialer.DialContext(ctx, endpoint, nil)
	a.metrics.RecordDial(err == nil, time.Since(start))
	if err != nil {
		log.Warn().Err(err).Str("endpoint", endpoint).Msg("failed to connect")
		a.fail()
		return
	}

	l := &link{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, a.config.SendBufferSize),
		done:   make(chan struct{}),
		opened: time.Now(),
	}

	accepted := false
	a.transition(func() (Status, bool) {
		if a.closed {
			return "", false
		}
		accepted = true
		a.link = l
		a.status = StatusOpen
		return StatusOpen, true
	})
	if !accepted {
		conn.Close()
		return
	}

	go a.writePump(l)
	go a.readPump(l)

	log.Info().
		Str("connection_id", l.id).
		Str("endpoint", endpoint).
		Msg("connection established")
}

func (a *Adapter) fail() {
	a.transition(func() (Status, bool) {
		if a.closed {
			return "", false
		}
		a.status = StatusError
		return StatusError, true
	})
}

// teardown detaches l if it is still the current link and reports the final status
func (a *Adapter) teardown(l *link, status Status) {
	a.transition(func() (Status, bool) {
		if a.link != l {
			return "", false
		}
		a.link = nil
		if a.closed {
			return "", false
		}
		a.status = status
		return status, true
	})
	l.shutdown()
}

func (a *Adapter) endpoint() (string, error) {
	u, err := url.Parse(a.config.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("parse endpoint: unsupported scheme %q", u.Scheme)
	}
	if a.config.PlayerID != "" {
		q := u.Query()
		q.Set("playerId", a.config.PlayerID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// retryLoop flushes queued frames once the connection is open, re-triggering
// Connect every RetryDelay until then.
func (a *Adapter) retryLoop() {
	for {
		timer := a.clock.NewTimer(a.config.RetryDelay)
		select {
		case <-a.ctx.Done():
			stopAndDrainTimer(timer)
			return
		case <-timer.Chan():
		}

		a.mu.Lock()
		if a.closed {
			a.retrying = false
			a.mu.Unlock()
			return
		}
		if a.status == StatusOpen && a.link != nil {
			l := a.link
			dropped := 0
			for _, frame := range a.pending {
				if !l.enqueue(frame) {
					dropped++
				}
			}
			flushed := len(a.pending) - dropped
			a.pending = nil
			a.retrying = false
			a.mu.Unlock()

			log.Debug().
				Str("connection_id", l.id).
				Int("flushed", flushed).
				Int("dropped", dropped).
				Msg("queued frames sent")
			return
		}
		queued := len(a.pending)
		a.mu.Unlock()

		a.metrics.RecordSendRetry()
		log.Debug().Int("queued", queued).Msg("connection still not open, retrying")
		a.Connect()
	}
}

func (a *Adapter) writePump(l *link) {
	ticker := time.NewTicker(a.config.PingInterval)
	defer func() {
		ticker.Stop()
		l.conn.Close()
	}()

	for {
		select {
		case <-l.done:
			l.conn.SetWriteDeadline(time.Now().Add(a.config.WriteTimeout))
			l.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case frame := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(a.config.WriteTimeout))
			if err := l.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", l.id).
					Msg("failed to write message to WebSocket")
				a.teardown(l, StatusError)
				return
			}
			a.metrics.RecordFrameSent()

		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(a.config.WriteTimeout))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", l.id).
					Msg("failed to send ping")
				a.teardown(l, StatusError)
				return
			}
		}
	}
}

func (a *Adapter) readPump(l *link) {
	l.conn.SetReadLimit(a.config.MaxMessageSize)
	l.conn.SetReadDeadline(time.Now().Add(a.config.ReadTimeout))
	l.conn.SetPongHandler(func(string) error {
		l.conn.SetReadDeadline(time.Now().Add(a.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			status := StatusError
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				status = StatusClosed
			} else {
				select {
				case <-l.done:
					// closed locally
				default:
					log.Warn().
						Err(err).
						Str("connection_id", l.id).
						Dur("uptime", time.Since(l.opened)).
						Msg("connection lost")
				}
			}
			a.teardown(l, status)
			return
		}

		a.metrics.RecordFrameReceived()
		a.receiver.HandleFrame(message)
		l.conn.SetReadDeadline(time.Now().Add(a.config.ReadTimeout))
	}
}

func (l *link) enqueue(frame []byte) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.send <- frame:
		return true
	default:
		return false
	}
}

func (l *link) shutdown() {
	l.once.Do(func() { close(l.done) })
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
