package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/modules/broadcast"
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

// fakeConn records the envelopes written to it.
type fakeConn struct {
	mu     sync.Mutex
	frames []domain.Envelope
	closed bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, env)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) ofType(eventType string) []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Envelope
	for _, env := range c.frames {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

func waitFrames(t *testing.T, conn *fakeConn, eventType string, n int) []domain.Envelope {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(conn.ofType(eventType)) >= n
	}, time.Second, 5*time.Millisecond, "waiting for %d %s frames", n, eventType)
	return conn.ofType(eventType)
}

func settle() {
	time.Sleep(30 * time.Millisecond)
}

func decode[T any](t *testing.T, env domain.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// fakeIdentity accepts tokens of the form "token-<userID>".
type fakeIdentity struct{}

func (fakeIdentity) Verify(_ context.Context, token string) (*domain.User, error) {
	userID, ok := strings.CutPrefix(token, "token-")
	if !ok || userID == "" {
		return nil, domain.ErrInvalidToken
	}
	return &domain.User{ID: userID, Username: "name-" + userID}, nil
}

// GetUser knows every id except those starting with "ghost".
func (fakeIdentity) GetUser(_ context.Context, userID string) (*domain.User, error) {
	if strings.HasPrefix(userID, "ghost") {
		return nil, domain.NewError(domain.ErrNotFound, "User not found")
	}
	return &domain.User{ID: userID, Username: "name-" + userID}, nil
}

// offlineRecorder captures the rooms of a connection at the moment its
// user's offline edge fires.
type offlineRecorder struct {
	hub    *broadcast.Hub
	roomID string
	mu     sync.Mutex
	seen   []offlineState
}

type offlineState struct {
	connID string
	rooms  []string
	inRoom bool
	count  int
}

func (r *offlineRecorder) UserOnline(broadcast.Transition)           {}
func (r *offlineRecorder) Registered(broadcast.Transition, []string) {}

func (r *offlineRecorder) UserOffline(t broadcast.Transition) {
	state := offlineState{
		connID: t.ConnID,
		rooms:  r.hub.Rooms(t.ConnID),
		inRoom: r.hub.InRoom(t.ConnID, r.roomID),
		count:  r.hub.RoomClientCount(r.roomID),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, state)
}

func (r *offlineRecorder) states() []offlineState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]offlineState(nil), r.seen...)
}

// fakeStore keeps messages in memory with the sender checks of the real store.
type fakeStore struct {
	mu        sync.Mutex
	messages  map[string]*domain.Message
	order     []string
	creates   int
	failWrite error
	private   map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages: make(map[string]*domain.Message),
		private:  make(map[string]bool),
	}
}

func (s *fakeStore) CreateMessage(_ context.Context, msg *domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.failWrite != nil {
		return nil, s.failWrite
	}
	saved := *msg
	s.messages[msg.ID] = &saved
	s.order = append(s.order, msg.ID)
	out := saved
	return &out, nil
}

func (s *fakeStore) mutate(messageID, userID string, apply func(*domain.Message) error) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return nil, s.failWrite
	}
	msg, ok := s.messages[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	if msg.SenderID != userID {
		return nil, domain.ErrNotSender
	}
	if err := apply(msg); err != nil {
		return nil, err
	}
	out := *msg
	return &out, nil
}

func (s *fakeStore) EditMessage(_ context.Context, messageID, editorID, content string) (*domain.Message, error) {
	return s.mutate(messageID, editorID, func(m *domain.Message) error {
		if m.Deleted {
			return domain.ErrMessageDeleted
		}
		m.ApplyEdit(content, time.Now().UTC())
		return nil
	})
}

func (s *fakeStore) DeleteMessage(_ context.Context, messageID, requesterID string) (*domain.Message, error) {
	return s.mutate(messageID, requesterID, func(m *domain.Message) error {
		if !m.Deleted {
			m.ApplyDelete(time.Now().UTC())
		}
		return nil
	})
}

func (s *fakeStore) MayJoin(_ context.Context, _, channelID string) (bool, error) {
	if channelID == "missing" {
		return false, domain.ErrChannelNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.private[channelID], nil
}

func (s *fakeStore) conversation(a, b string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, id := range s.order {
		m := s.messages[id]
		if (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a) {
			out = append(out, *m)
		}
	}
	return out
}

func (s *fakeStore) createCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

type harness struct {
	svc   *Service
	bcast *broadcast.BroadcastModule
	store *fakeStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := &mockLogger{}
	bcast := broadcast.NewModule(logger)
	st := newFakeStore()
	svc := NewService(Config{
		Identity:   fakeIdentity{},
		Messages:   st,
		Membership: st,
		Hub:        bcast.Hub(),
		Registry:   bcast.Registry(),
		Fanout:     bcast.Fanout(),
		Logger:     logger,
	})
	t.Cleanup(func() { _ = bcast.Stop(context.Background()) })
	return &harness{svc: svc, bcast: bcast, store: st}
}

// open attaches an anonymous connection.
func (h *harness) open(t *testing.T, connID string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	require.NoError(t, h.svc.Connect(connID, conn))
	return conn
}

// login opens a connection and authenticates it as userID.
func (h *harness) login(t *testing.T, connID, userID string) *fakeConn {
	t.Helper()
	conn := h.open(t, connID)
	_, err := h.svc.Authenticate(context.Background(), connID, "token-"+userID)
	require.NoError(t, err)
	waitFrames(t, conn, domain.EventAuthenticated, 1)
	return conn
}

// dispatch sends a frame through the inbound dispatcher.
func (h *harness) dispatch(t *testing.T, connID, eventType string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(domain.Envelope{Type: eventType, Data: raw})
	require.NoError(t, err)
	h.svc.Dispatch(context.Background(), connID, frame)
}
