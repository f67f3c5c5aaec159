package broadcast

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)          {}
func (m *mockLogger) Info(msg string, args ...any)           {}
func (m *mockLogger) Warn(msg string, args ...any)           {}
func (m *mockLogger) Error(msg string, args ...any)          {}
func (m *mockLogger) With(args ...any) types.Logger          { return m }
func (m *mockLogger) WithError(err error) types.Logger       { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

var errConnClosed = errors.New("use of closed connection")

// fakeConn records written frames. When gate is set, writes block until it
// or the connection is closed. delay slows every write down.
type fakeConn struct {
	mu         sync.Mutex
	frames     []domain.Envelope
	closed     bool
	shut       chan struct{}
	gate       chan struct{}
	delay      time.Duration
	released   bool
	lateWrites int
}

func (c *fakeConn) shutdown() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shut == nil {
		c.shut = make(chan struct{})
	}
	return c.shut
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-c.shutdown():
			return errConnClosed
		}
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		c.lateWrites++
		return errConnClosed
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.shut == nil {
		c.shut = make(chan struct{})
	}
	close(c.shut)
	return nil
}

// release marks the transport as handed back to its pool, like the
// websocket middleware does once the handler returns.
func (c *fakeConn) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
}

func (c *fakeConn) writesAfterRelease() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lateWrites
}

func (c *fakeConn) received() []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Envelope, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *fakeConn) ofType(eventType string) []domain.Envelope {
	var out []domain.Envelope
	for _, env := range c.received() {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

// waitFrames waits until conn has received n frames of eventType.
func waitFrames(t *testing.T, conn *fakeConn, eventType string, n int) []domain.Envelope {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(conn.ofType(eventType)) >= n
	}, time.Second, 5*time.Millisecond, "waiting for %d %s frames", n, eventType)
	return conn.ofType(eventType)
}

// settle gives writer goroutines time to flush before asserting absence.
func settle() {
	time.Sleep(30 * time.Millisecond)
}

func decodeMessage(t *testing.T, env domain.Envelope) domain.Message {
	t.Helper()
	var msg domain.Message
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	return msg
}

// testCore wires a hub, registry and presence broadcaster like NewModule does.
type testCore struct {
	hub      *Hub
	registry *ConnectionRegistry
	fanout   *MessageFanout
}

func newTestCore() *testCore {
	logger := &mockLogger{}
	hub := NewHub(16, logger)
	registry := NewConnectionRegistry()
	registry.AddListener(NewPresenceBroadcaster(hub, logger))
	return &testCore{
		hub:      hub,
		registry: registry,
		fanout:   NewMessageFanout(hub, registry, logger),
	}
}

// connect attaches a connection and, when userID is set, authenticates it.
func (c *testCore) connect(t *testing.T, connID, userID string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	require.NoError(t, c.hub.Attach(connID, conn))
	if userID != "" {
		c.registry.Register(userID, "name-"+userID, connID)
	}
	return conn
}
