package broadcast

import (
	"testing"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(t *testing.T, eventType string) []byte {
	t.Helper()
	f, err := domain.EncodeFrame(eventType, domain.ErrorNotice{Message: eventType})
	require.NoError(t, err)
	return f
}

func TestHub_AttachDetach(t *testing.T) {
	hub := NewHub(4, &mockLogger{})

	require.NoError(t, hub.Attach("c1", &fakeConn{}))
	assert.ErrorIs(t, hub.Attach("c1", &fakeConn{}), ErrDuplicateConnection)
	assert.Equal(t, 1, hub.ClientCount())

	assert.True(t, hub.Detach("c1"))
	assert.False(t, hub.Detach("c1"))
	assert.Equal(t, 0, hub.ClientCount())
	assert.False(t, hub.Send("c1", frame(t, "x")))
}

func TestHub_BindKeepsFirstIdentity(t *testing.T) {
	hub := NewHub(4, &mockLogger{})
	require.NoError(t, hub.Attach("c1", &fakeConn{}))

	_, _, ok := hub.Identity("c1")
	assert.False(t, ok, "new connection is unbound")

	require.NoError(t, hub.Bind("c1", "u1", "alice"))
	assert.ErrorIs(t, hub.Bind("c1", "u2", "bob"), ErrAlreadyBound)
	assert.ErrorIs(t, hub.Bind("missing", "u2", "bob"), ErrUnknownConnection)

	userID, username, ok := hub.Identity("c1")
	require.True(t, ok)
	assert.Equal(t, "u1", userID)
	assert.Equal(t, "alice", username)
}

func TestHub_Rooms(t *testing.T) {
	hub := NewHub(4, &mockLogger{})
	require.NoError(t, hub.Attach("c1", &fakeConn{}))
	require.NoError(t, hub.Attach("c2", &fakeConn{}))

	assert.True(t, hub.Join("c1", "r1"))
	assert.True(t, hub.Join("c1", "r2"))
	assert.True(t, hub.Join("c1", "r1"))
	assert.True(t, hub.Join("c2", "r1"))
	assert.False(t, hub.Join("missing", "r1"))

	assert.Equal(t, 2, hub.RoomClientCount("r1"))
	assert.Equal(t, []string{"r1", "r2"}, hub.Rooms("c1"))

	assert.True(t, hub.Leave("c2", "r1"))
	assert.False(t, hub.Leave("c2", "r1"))
	assert.Equal(t, 1, hub.RoomClientCount("r1"))

	assert.Equal(t, []string{"r1", "r2"}, hub.LeaveAll("c1"))
	assert.Equal(t, 0, hub.RoomCount())
	assert.False(t, hub.InRoom("c1", "r1"))
}

func TestHub_SendToRoomExcept(t *testing.T) {
	hub := NewHub(4, &mockLogger{})
	a, b := &fakeConn{}, &fakeConn{}
	require.NoError(t, hub.Attach("a", a))
	require.NoError(t, hub.Attach("b", b))
	hub.Join("a", "r1")
	hub.Join("b", "r1")

	assert.Equal(t, 1, hub.SendToRoom("r1", frame(t, "typing"), "a"))
	waitFrames(t, b, "typing", 1)
	settle()
	assert.Empty(t, a.received())
}

func TestHub_SendToConnsDeduplicates(t *testing.T) {
	hub := NewHub(4, &mockLogger{})
	a := &fakeConn{}
	require.NoError(t, hub.Attach("a", a))

	assert.Equal(t, 1, hub.SendToConns([]string{"a", "a", "missing"}, frame(t, "dm")))
	waitFrames(t, a, "dm", 1)
	settle()
	assert.Len(t, a.received(), 1)
}

func TestHub_BroadcastBoundSkipsAnonymous(t *testing.T) {
	hub := NewHub(4, &mockLogger{})
	bound, anon := &fakeConn{}, &fakeConn{}
	require.NoError(t, hub.Attach("bound", bound))
	require.NoError(t, hub.Attach("anon", anon))
	require.NoError(t, hub.Bind("bound", "u1", "alice"))

	assert.Equal(t, 1, hub.BroadcastBound(frame(t, "presence"), ""))
	waitFrames(t, bound, "presence", 1)
	settle()
	assert.Empty(t, anon.received())
}

func TestHub_SlowSubscriberDoesNotStallOthers(t *testing.T) {
	hub := NewHub(2, &mockLogger{})
	slow := &fakeConn{gate: make(chan struct{})}
	fast := &fakeConn{}
	require.NoError(t, hub.Attach("slow", slow))
	require.NoError(t, hub.Attach("fast", fast))
	hub.Join("slow", "r1")
	hub.Join("fast", "r1")

	f := frame(t, "msg")
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			hub.SendToRoom("r1", f, "")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendToRoom blocked on a stalled subscriber")
	}
	waitFrames(t, fast, "msg", 1)
	close(slow.gate)
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(4, &mockLogger{})
	conn := &fakeConn{}
	require.NoError(t, hub.Attach("c1", conn))

	hub.Close()
	hub.Close()

	assert.Equal(t, 0, hub.ClientCount())
	assert.ErrorIs(t, hub.Attach("c2", &fakeConn{}), ErrHubClosed)
	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.True(t, conn.closed)
}

func TestHub_DetachStopsWritesBeforeReturning(t *testing.T) {
	f := frame(t, "msg")
	for trial := 0; trial < 20; trial++ {
		hub := NewHub(128, &mockLogger{})
		conn := &fakeConn{delay: 100 * time.Microsecond}
		require.NoError(t, hub.Attach("c1", conn))
		for i := 0; i < 64; i++ {
			hub.Send("c1", f)
		}

		require.True(t, hub.Detach("c1"))
		conn.release()

		settle()
		require.Zero(t, conn.writesAfterRelease(), "trial %d: frame written after Detach returned", trial)
		assert.False(t, hub.Send("c1", f))
	}
}

func TestHub_DetachUnblocksStalledWriter(t *testing.T) {
	hub := NewHub(4, &mockLogger{})
	stalled := &fakeConn{gate: make(chan struct{})}
	require.NoError(t, hub.Attach("c1", stalled))
	hub.Send("c1", frame(t, "msg"))
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		hub.Detach("c1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * stopWait):
		t.Fatal("Detach did not return while a write was stuck")
	}
	stalled.mu.Lock()
	defer stalled.mu.Unlock()
	assert.True(t, stalled.closed, "a stuck write is unblocked by closing the transport")
}
