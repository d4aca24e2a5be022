package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/quiz/protocol"
	"github.com/mcdev12/quizlive/go/internal/quiz/transport"
)

// ErrAlreadyRunning is returned when Run is called twice on the same controller
var ErrAlreadyRunning = errors.New("controller already running")

const inboxSize = 64

// Transport is the outbound side of the coordinator connection
type Transport interface {
	Connect()
	Send(frame []byte) error
}

// message is anything processed by the controller loop
type message interface{ isMessage() }

type (
	frameMsg      struct{ data []byte }
	statusMsg     struct{ status transport.Status }
	tickMsg       struct{ gen uint64 }
	connectMsg    struct{}
	createRoomMsg struct{ name string }
	joinRoomMsg   struct{ name, pin string }
	startGameMsg  struct{}
	answerMsg     struct{ optionIndex int }
	leaveRoomMsg  struct{}
	finishMsg     struct{}
	inspectMsg    struct{ reply chan inspection }
)

func (frameMsg) isMessage()      {}
func (statusMsg) isMessage()     {}
func (tickMsg) isMessage()       {}
func (connectMsg) isMessage()    {}
func (createRoomMsg) isMessage() {}
func (joinRoomMsg) isMessage()   {}
func (startGameMsg) isMessage()  {}
func (answerMsg) isMessage()     {}
func (leaveRoomMsg) isMessage()  {}
func (finishMsg) isMessage()     {}
func (inspectMsg) isMessage()    {}

type inspection struct {
	snapshot    Snapshot
	timerActive bool
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithClock sets the clock for the question timer and keepalive
func WithClock(clock clockwork.Clock) ControllerOption {
	return func(c *Controller) { c.clock = clock }
}

// WithKeepalive sends an application ping every interval while the connection is open
func WithKeepalive(interval time.Duration) ControllerOption {
	return func(c *Controller) { c.keepalive = interval }
}

// Controller owns one Session and serializes every change to it on a single
// goroutine. Frames, status changes, timer ticks and user intents are all
// queued on the inbox and applied in arrival order.
type Controller struct {
	sink      Sink
	clock     clockwork.Clock
	keepalive time.Duration

	inbox   chan message
	done    chan struct{}
	running atomic.Bool

	// owned by the loop
	session       Session
	status        transport.Status
	timer         *QuestionTimer
	lastOperation protocol.Action
	transport     Transport
}

// NewController creates a controller in the idle pre-join state
func NewController(sink Sink, opts ...ControllerOption) *Controller {
	c := &Controller{
		sink:    sink,
		clock:   clockwork.NewRealClock(),
		inbox:   make(chan message, inboxSize),
		done:    make(chan struct{}),
		session: NewSession(),
		status:  transport.StatusClosed,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.timer = newQuestionTimer(c.clock, c.deliverTick)
	return c
}

// Run processes the inbox until ctx is cancelled. Intents issued before Run are buffered.
func (c *Controller) Run(ctx context.Context, t Transport) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	c.transport = t
	defer close(c.done)
	defer c.timer.Cancel()

	var keepalive <-chan time.Time
	if c.keepalive > 0 {
		ticker := c.clock.NewTicker(c.keepalive)
		defer ticker.Stop()
		keepalive = ticker.Chan()
	}

	log.Info().Msg("session controller started")
	c.render()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session controller shutting down")
			return nil
		case <-keepalive:
			if c.status == transport.StatusOpen {
				c.send(protocol.Ping{})
			}
		case m := <-c.inbox:
			c.handle(m)
		}
	}
}

// HandleFrame queues an inbound frame
func (c *Controller) HandleFrame(frame []byte) { c.enqueue(frameMsg{data: frame}) }

// HandleStatus queues a connection status change
func (c *Controller) HandleStatus(status transport.Status) { c.enqueue(statusMsg{status: status}) }

// Connect asks the transport to connect; a no-op while connected or connecting
func (c *Controller) Connect() { c.enqueue(connectMsg{}) }

func (c *Controller) CreateRoom(name string) { c.enqueue(createRoomMsg{name: name}) }

func (c *Controller) JoinRoom(name, pin string) { c.enqueue(joinRoomMsg{name: name, pin: pin}) }

func (c *Controller) StartGame() { c.enqueue(startGameMsg{}) }

// Answer submits the zero-based option index for the active question
func (c *Controller) Answer(optionIndex int) { c.enqueue(answerMsg{optionIndex: optionIndex}) }

func (c *Controller) LeaveRoom() { c.enqueue(leaveRoomMsg{}) }

// Finish switches to the local finished screen
func (c *Controller) Finish() { c.enqueue(finishMsg{}) }

func (c *Controller) enqueue(m message) bool {
	select {
	case c.inbox <- m:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) deliverTick(gen uint64, stop <-chan struct{}) bool {
	select {
	case c.inbox <- tickMsg{gen: gen}:
		return true
	case <-stop:
		return false
	case <-c.done:
		return false
	}
}

// inspect returns the current snapshot from the loop
func (c *Controller) inspect(ctx context.Context) (inspection, error) {
	reply := make(chan inspection, 1)
	if !c.enqueue(inspectMsg{reply: reply}) {
		return inspection{}, context.Canceled
	}
	select {
	case in := <-reply:
		return in, nil
	case <-ctx.Done():
		return inspection{}, ctx.Err()
	}
}

func (c *Controller) handle(m message) {
	switch m := m.(type) {
	case frameMsg:
		ev, err := protocol.Decode(m.data)
		if err != nil {
			log.Debug().Err(err).Msg("dropping inbound frame")
			return
		}
		c.applyEvent(ev)

	case statusMsg:
		c.status = m.status
		log.Info().Str("status", string(m.status)).Msg("connection status changed")
		c.sink.Status(m.status)

	case tickMsg:
		if !c.timer.Current(m.gen) {
			log.Debug().Uint64("generation", m.gen).Msg("dropping stale timer tick")
			return
		}
		s, action := Tick(c.session)
		c.commit(s, action)

	case connectMsg:
		c.transport.Connect()

	case createRoomMsg:
		s, cmd, ok := CreateRoom(c.session, m.name)
		c.forward(s, cmd, ok, TimerKeep)

	case joinRoomMsg:
		s, cmd, ok := JoinRoom(c.session, m.name, m.pin)
		c.forward(s, cmd, ok, TimerKeep)

	case startGameMsg:
		s, cmd, ok := StartGame(c.session)
		c.forward(s, cmd, ok, TimerKeep)

	case answerMsg:
		s, cmd, ok := SubmitAnswer(c.session, m.optionIndex)
		c.forward(s, cmd, ok, TimerKeep)

	case leaveRoomMsg:
		s, cmd, ok := LeaveRoom(c.session)
		c.forward(s, cmd, ok, TimerStop)

	case finishMsg:
		c.commit(Finish(c.session), TimerStop)

	case inspectMsg:
		m.reply <- inspection{
			snapshot:    c.session.Snapshot(c.status),
			timerActive: c.timer.Active(),
		}
	}
}

func (c *Controller) applyEvent(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.ServerError:
		log.Info().
			Str("operation", string(c.lastOperation)).
			Str("code", e.Code).
			Msg("operation rejected by coordinator")
		c.sink.OperationError(OperationError{
			Operation: c.lastOperation,
			Code:      e.Code,
			Message:   e.Message,
		})
		return

	case protocol.Pong:
		log.Debug().Msg("pong received")
		return

	case protocol.RoundEnded:
		log.Debug().Msg("round ended")
		return
	}

	s, action := Apply(c.session, ev)
	c.commit(s, action)
}

func (c *Controller) forward(s Session, cmd protocol.Command, ok bool, action TimerAction) {
	if !ok {
		log.Debug().Msg("intent dropped by local guard")
		return
	}
	c.commit(s, action)
	c.send(cmd)
}

func (c *Controller) send(cmd protocol.Command) {
	frame, err := protocol.EncodeCommand(cmd)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode command")
		return
	}
	if cmd.Action() != protocol.ActionPing {
		c.lastOperation = cmd.Action()
	}
	if err := c.transport.Send(frame); err != nil {
		log.Warn().Err(err).Str("action", string(cmd.Action())).Msg("failed to send command")
	}
}

func (c *Controller) commit(s Session, action TimerAction) {
	c.session = s
	switch action {
	case TimerRestart:
		gen := c.timer.Start()
		log.Debug().Uint64("generation", gen).Int("duration", s.RemainingSeconds).Msg("question timer started")
	case TimerStop:
		c.timer.Cancel()
	}
	c.render()
}

func (c *Controller) render() {
	c.sink.Render(c.session.Snapshot(c.status))
}
