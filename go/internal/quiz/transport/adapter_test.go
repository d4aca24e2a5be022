package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type recordingReceiver struct {
	mu       sync.Mutex
	frames   []string
	statuses []Status
}

func (r *recordingReceiver) HandleFrame(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, string(frame))
}

func (r *recordingReceiver) HandleStatus(status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recordingReceiver) getStatuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func (r *recordingReceiver) getFrames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

func (r *recordingReceiver) last() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return ""
	}
	return r.statuses[len(r.statuses)-1]
}

// coordinator is a minimal websocket peer standing in for the quiz server
type coordinator struct {
	server   *httptest.Server
	dials    atomic.Int32
	queries  chan url.Values
	conns    chan *websocket.Conn
	received chan string
}

func newCoordinator(t *testing.T) *coordinator {
	t.Helper()
	c := &coordinator{
		queries:  make(chan url.Values, 8),
		conns:    make(chan *websocket.Conn, 8),
		received: make(chan string, 32),
	}
	upgrader := websocket.Upgrader{}
	c.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c.queries <- r.URL.Query()
		c.conns <- conn
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			c.received <- string(msg)
		}
	}))
	t.Cleanup(c.server.Close)
	return c
}

func (c *coordinator) endpoint() string {
	return "ws" + strings.TrimPrefix(c.server.URL, "http") + "/ws"
}

func (c *coordinator) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-c.conns:
		return conn
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

func (c *coordinator) nextFrame(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-c.received:
		return msg
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for frame")
		return ""
	}
}

func testConfig(endpoint string) Config {
	cfg := DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.DialTimeout = time.Second
	return cfg
}

func newTestAdapter(t *testing.T, cfg Config, opts ...Option) (*Adapter, *recordingReceiver) {
	t.Helper()
	rec := &recordingReceiver{}
	a := New(cfg, rec, opts...)
	t.Cleanup(func() { a.Close() })
	return a, rec
}

func TestConnectTwiceDialsOnce(t *testing.T) {
	coord := newCoordinator(t)
	a, rec := newTestAdapter(t, testConfig(coord.endpoint()))

	a.Connect()
	a.Connect()

	require.Eventually(t, func() bool { return rec.last() == StatusOpen }, waitFor, 5*time.Millisecond)
	a.Connect()

	coord.nextConn(t)
	assert.Equal(t, int32(1), coord.dials.Load())
	assert.Equal(t, []Status{StatusConnecting, StatusOpen}, rec.getStatuses())
	assert.Equal(t, StatusOpen, a.Status())
}

func TestPlayerIDQueryParameter(t *testing.T) {
	coord := newCoordinator(t)
	cfg := testConfig(coord.endpoint())
	cfg.PlayerID = "p1"
	a, _ := newTestAdapter(t, cfg)

	a.Connect()

	select {
	case q := <-coord.queries:
		assert.Equal(t, "p1", q.Get("playerId"))
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for handshake")
	}
}

func TestSendWhenOpen(t *testing.T) {
	coord := newCoordinator(t)
	metrics := NewCounterMetrics()
	a, rec := newTestAdapter(t, testConfig(coord.endpoint()), WithMetrics(metrics))

	a.Connect()
	require.Eventually(t, func() bool { return rec.last() == StatusOpen }, waitFor, 5*time.Millisecond)

	require.NoError(t, a.Send([]byte(`{"action":"start_game","payload":{}}`)))
	assert.Equal(t, `{"action":"start_game","payload":{}}`, coord.nextFrame(t))

	assert.Eventually(t, func() bool { return metrics.Snapshot().FramesSent == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, int64(0), metrics.Snapshot().SendRetries)
}

func TestSendBeforeOpenIsRetriedAfterDelay(t *testing.T) {
	coord := newCoordinator(t)
	clock := clockwork.NewFakeClock()
	a, rec := newTestAdapter(t, testConfig(coord.endpoint()), WithClock(clock))

	require.NoError(t, a.Send([]byte(`{"action":"create_room","payload":{"name":"Ana"}}`)))
	require.NoError(t, a.Send([]byte(`{"action":"start_game","payload":{}}`)))

	require.Eventually(t, func() bool { return rec.last() == StatusOpen }, waitFor, 5*time.Millisecond)
	coord.nextConn(t)

	select {
	case msg := <-coord.received:
		t.Fatalf("frame sent before retry delay elapsed: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(300 * time.Millisecond)

	assert.Equal(t, `{"action":"create_room","payload":{"name":"Ana"}}`, coord.nextFrame(t))
	assert.Equal(t, `{"action":"start_game","payload":{}}`, coord.nextFrame(t))
	assert.Equal(t, int32(1), coord.dials.Load())
}

func TestRetryReconnectsAfterFailedDial(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	endpoint := "ws" + strings.TrimPrefix(dead.URL, "http") + "/ws"
	dead.Close()

	clock := clockwork.NewFakeClock()
	metrics := NewCounterMetrics()
	a, rec := newTestAdapter(t, testConfig(endpoint), WithClock(clock), WithMetrics(metrics))

	require.NoError(t, a.Send([]byte(`{"action":"leave_room","payload":{}}`)))
	require.Eventually(t, func() bool { return rec.last() == StatusError }, waitFor, 5*time.Millisecond)
	assert.Equal(t, int64(1), metrics.Snapshot().Dials)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(300 * time.Millisecond)

	require.Eventually(t, func() bool { return metrics.Snapshot().Dials == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, int64(1), metrics.Snapshot().SendRetries)
	assert.Equal(t, int64(2), metrics.Snapshot().DialFailures)
}

func TestNoAutomaticReconnect(t *testing.T) {
	coord := newCoordinator(t)
	a, rec := newTestAdapter(t, testConfig(coord.endpoint()))

	a.Connect()
	conn := coord.nextConn(t)
	require.Eventually(t, func() bool { return rec.last() == StatusOpen }, waitFor, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	require.Eventually(t, func() bool { return rec.last() == StatusClosed }, waitFor, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), coord.dials.Load())

	a.Connect()
	coord.nextConn(t)
	require.Eventually(t, func() bool { return rec.last() == StatusOpen }, waitFor, 5*time.Millisecond)
	assert.Equal(t, int32(2), coord.dials.Load())
}

func TestDroppedConnectionReportsError(t *testing.T) {
	coord := newCoordinator(t)
	a, rec := newTestAdapter(t, testConfig(coord.endpoint()))

	a.Connect()
	conn := coord.nextConn(t)
	require.Eventually(t, func() bool { return rec.last() == StatusOpen }, waitFor, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return rec.last() == StatusError }, waitFor, 5*time.Millisecond)
	assert.Equal(t, StatusError, a.Status())
}

func TestInboundFramesReachReceiver(t *testing.T) {
	coord := newCoordinator(t)
	a, rec := newTestAdapter(t, testConfig(coord.endpoint()))

	a.Connect()
	conn := coord.nextConn(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"room_joined","payload":{"playerId":"p1"}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong","payload":{}}`)))

	require.Eventually(t, func() bool { return len(rec.getFrames()) == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{
		`{"type":"room_joined","payload":{"playerId":"p1"}}`,
		`{"type":"pong","payload":{}}`,
	}, rec.getFrames())
}

func TestClose(t *testing.T) {
	coord := newCoordinator(t)
	a, rec := newTestAdapter(t, testConfig(coord.endpoint()))

	a.Connect()
	coord.nextConn(t)
	require.Eventually(t, func() bool { return rec.last() == StatusOpen }, waitFor, 5*time.Millisecond)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	assert.Equal(t, []Status{StatusConnecting, StatusOpen, StatusClosed}, rec.getStatuses())
	assert.ErrorIs(t, a.Send([]byte(`{}`)), ErrClosed)

	a.Connect()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), coord.dials.Load())
	assert.Equal(t, StatusClosed, a.Status())
}

func TestInvalidEndpoint(t *testing.T) {
	a, rec := newTestAdapter(t, testConfig("http://localhost:1/ws"))

	a.Connect()

	require.Eventually(t, func() bool { return rec.last() == StatusError }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []Status{StatusConnecting, StatusError}, rec.getStatuses())
}
