package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/modules/broadcast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("success sends snapshot", func(t *testing.T) {
		h := newHarness(t)
		h.login(t, "a1", "alice")
		b := h.login(t, "b1", "bob")

		got := decode[domain.Authenticated](t, b.ofType(domain.EventAuthenticated)[0])
		assert.True(t, got.Success)
		assert.Equal(t, "bob", got.UserID)
		assert.Equal(t, []string{"alice", "bob"}, got.OnlineUserIDs)
	})

	t.Run("bad token leaves connection anonymous", func(t *testing.T) {
		h := newHarness(t)
		conn := h.open(t, "a1")

		_, err := h.svc.Authenticate(ctx, "a1", "garbage")
		require.ErrorIs(t, err, domain.ErrAuthentication)

		got := decode[domain.Authenticated](t, waitFrames(t, conn, domain.EventAuthenticated, 1)[0])
		assert.False(t, got.Success)
		assert.Equal(t, "Invalid token", got.Message)
		assert.False(t, h.bcast.Registry().IsOnline("alice"))

		_, _, bound := h.bcast.Hub().Identity("a1")
		assert.False(t, bound)
	})

	t.Run("second authenticate is rejected", func(t *testing.T) {
		h := newHarness(t)
		conn := h.login(t, "a1", "alice")

		_, err := h.svc.Authenticate(ctx, "a1", "token-bob")
		require.ErrorIs(t, err, ErrAlreadyAuthenticated)

		frames := waitFrames(t, conn, domain.EventAuthenticated, 2)
		assert.False(t, decode[domain.Authenticated](t, frames[1]).Success)
		userID, _, _ := h.bcast.Hub().Identity("a1")
		assert.Equal(t, "alice", userID)
	})

	t.Run("bare token payload", func(t *testing.T) {
		h := newHarness(t)
		conn := h.open(t, "a1")
		h.dispatch(t, "a1", domain.EventAuthenticate, "token-alice")

		got := decode[domain.Authenticated](t, waitFrames(t, conn, domain.EventAuthenticated, 1)[0])
		assert.True(t, got.Success)
	})
}

func TestAnonymousConnectionIsGated(t *testing.T) {
	h := newHarness(t)
	member := h.login(t, "b1", "bob")
	h.dispatch(t, "b1", domain.EventJoinChannel, domain.RoomRequest{RoomID: "c1"})
	anon := h.open(t, "x1")

	h.dispatch(t, "x1", domain.EventJoinChannel, domain.RoomRequest{RoomID: "c1"})
	h.dispatch(t, "x1", domain.EventSendMessage, domain.SendMessageRequest{ChannelID: "c1", Content: "hi"})
	h.dispatch(t, "x1", domain.EventTyping, domain.TypingRequest{RoomID: "c1", IsTyping: true})
	h.dispatch(t, "x1", domain.EventLeaveChannel, domain.RoomRequest{RoomID: "c1"})

	errs := waitFrames(t, anon, domain.EventMessageError, 2)
	for _, env := range errs {
		assert.Equal(t, "Authentication required.", decode[domain.ErrorNotice](t, env).Message)
	}
	settle()
	assert.Len(t, anon.ofType(domain.EventMessageError), 2, "leave and typing are silent")
	assert.Empty(t, member.ofType(domain.EventNewMessage))
	assert.Empty(t, member.ofType(domain.EventUserTyping))
	assert.Zero(t, h.store.createCount())
}

func TestJoinChannel(t *testing.T) {
	h := newHarness(t)
	h.store.private["secret"] = true
	conn := h.login(t, "a1", "alice")

	tests := []struct {
		name    string
		room    string
		wantErr error
	}{
		{name: "public channel", room: "c1"},
		{name: "private channel", room: "secret", wantErr: domain.ErrChannelForbidden},
		{name: "unknown channel", room: "missing", wantErr: domain.ErrChannelNotFound},
		{name: "empty room", room: "", wantErr: ErrRoomRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.svc.JoinChannel(context.Background(), "a1", tt.room)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.False(t, h.bcast.Hub().InRoom("a1", tt.room))
				return
			}
			require.NoError(t, err)
			assert.True(t, h.bcast.Hub().InRoom("a1", tt.room))
		})
	}

	h.dispatch(t, "a1", domain.EventJoinChannel, "secret")
	notice := decode[domain.ErrorNotice](t, waitFrames(t, conn, domain.EventMessageError, 1)[0])
	assert.Equal(t, "Cannot join private channel.", notice.Message)
}

func TestChannelMessagesArriveInOrder(t *testing.T) {
	h := newHarness(t)
	a := h.login(t, "a1", "alice")
	b := h.login(t, "b1", "bob")
	h.dispatch(t, "a1", domain.EventJoinChannel, domain.RoomRequest{RoomID: "c1"})
	h.dispatch(t, "b1", domain.EventJoinChannel, domain.RoomRequest{RoomID: "c1"})

	h.dispatch(t, "a1", domain.EventSendMessage, domain.SendMessageRequest{ChannelID: "c1", Content: "hi"})
	h.dispatch(t, "a1", domain.EventSendMessage, domain.SendMessageRequest{ChannelID: "c1", Content: "there"})

	for _, conn := range []*fakeConn{a, b} {
		frames := waitFrames(t, conn, domain.EventNewMessage, 2)
		require.Len(t, frames, 2)
		first := decode[domain.Message](t, frames[0])
		assert.Equal(t, "hi", first.Content)
		assert.Equal(t, "alice", first.SenderID)
		assert.Equal(t, "name-alice", first.SenderName)
		assert.Equal(t, domain.KindText, first.Kind)
		assert.Equal(t, "there", decode[domain.Message](t, frames[1]).Content)
	}
}

func TestConcurrentSendersShareOneOrder(t *testing.T) {
	h := newHarness(t)
	senders := []string{"alice", "bob", "carol"}
	conns := make([]*fakeConn, len(senders))
	for i, user := range senders {
		connID := user + "-conn"
		conns[i] = h.login(t, connID, user)
		require.NoError(t, h.svc.JoinChannel(context.Background(), connID, "c1"))
	}

	const perSender = 20
	var wg sync.WaitGroup
	for _, user := range senders {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := h.svc.SendMessage(context.Background(), user+"-conn", domain.SendMessageRequest{
					ChannelID: "c1",
					Content:   fmt.Sprintf("%s-%d", user, i),
				})
				assert.NoError(t, err)
			}
		}(user)
	}
	wg.Wait()

	total := perSender * len(senders)
	for _, conn := range conns {
		frames := waitFrames(t, conn, domain.EventNewMessage, total)
		ids := make([]string, 0, len(frames))
		for _, env := range frames {
			ids = append(ids, decode[domain.Message](t, env).ID)
		}
		assert.Equal(t, h.store.order, ids, "every subscriber sees store order")
	}
}

func TestPrivateMessageReachesEveryDeviceAndEchoes(t *testing.T) {
	h := newHarness(t)
	a := h.login(t, "a1", "alice")
	b1 := h.login(t, "b1", "bob")
	b2 := h.login(t, "b2", "bob")
	other := h.login(t, "c1", "carol")

	h.dispatch(t, "a1", domain.EventPrivateMessage, domain.SendMessageRequest{RecipientID: "bob", Content: "psst"})

	for _, conn := range []*fakeConn{a, b1, b2} {
		frames := waitFrames(t, conn, domain.EventPrivateMessage, 1)
		assert.Equal(t, "psst", decode[domain.Message](t, frames[0]).Content)
	}
	settle()
	for _, conn := range []*fakeConn{a, b1, b2} {
		assert.Len(t, conn.ofType(domain.EventPrivateMessage), 1)
	}
	assert.Empty(t, other.ofType(domain.EventPrivateMessage))
}

func TestPrivateMessageToOfflineRecipient(t *testing.T) {
	h := newHarness(t)
	a := h.login(t, "a1", "alice")

	msg, err := h.svc.SendMessage(context.Background(), "a1", domain.SendMessageRequest{RecipientID: "bob", Content: "later"})
	require.NoError(t, err)

	frames := waitFrames(t, a, domain.EventPrivateMessage, 1)
	assert.Equal(t, msg.ID, decode[domain.Message](t, frames[0]).ID, "sender still gets the echo")

	history := h.store.conversation("bob", "alice")
	require.Len(t, history, 1)
	assert.Equal(t, "later", history[0].Content)

	b := h.login(t, "b1", "bob")
	settle()
	assert.Empty(t, b.ofType(domain.EventPrivateMessage), "no redelivery on reconnect")
}

func TestSendMessageValidation(t *testing.T) {
	h := newHarness(t)
	conn := h.login(t, "a1", "alice")
	require.NoError(t, h.svc.JoinChannel(context.Background(), "a1", "c1"))

	tests := []struct {
		name    string
		req     domain.SendMessageRequest
		wantMsg string
	}{
		{
			name: "oversized attachment",
			req: domain.SendMessageRequest{
				ChannelID: "c1", Content: "look", MessageType: domain.KindImage,
				Attachment: &domain.Attachment{Name: "big.png", MimeType: "image/png", Size: domain.MaxAttachmentSize + 1},
			},
			wantMsg: "File size exceeds 5MB limit.",
		},
		{
			name:    "both targets",
			req:     domain.SendMessageRequest{ChannelID: "c1", RecipientID: "bob", Content: "hi"},
			wantMsg: "Message must target exactly one channel or recipient.",
		},
		{
			name:    "blank content",
			req:     domain.SendMessageRequest{ChannelID: "c1", Content: "   "},
			wantMsg: "Message content is required.",
		},
		{
			name:    "channel not joined",
			req:     domain.SendMessageRequest{ChannelID: "c2", Content: "hi"},
			wantMsg: ErrNotInRoom.Message,
		},
		{
			name:    "unknown recipient",
			req:     domain.SendMessageRequest{RecipientID: "ghost", Content: "hi"},
			wantMsg: ErrRecipientNotFound.Message,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.dispatch(t, "a1", domain.EventSendMessage, tt.req)
			frames := waitFrames(t, conn, domain.EventMessageError, i+1)
			assert.Equal(t, tt.wantMsg, decode[domain.ErrorNotice](t, frames[i]).Message)
		})
	}
	assert.Zero(t, h.store.createCount(), "nothing reaches the store")
	assert.Empty(t, conn.ofType(domain.EventNewMessage))
}

func TestStoreFailureIsReportedToSenderOnly(t *testing.T) {
	h := newHarness(t)
	a := h.login(t, "a1", "alice")
	b := h.login(t, "b1", "bob")
	for _, id := range []string{"a1", "b1"} {
		require.NoError(t, h.svc.JoinChannel(context.Background(), id, "c1"))
	}
	h.store.failWrite = domain.NewError(domain.ErrStore, "database is locked")

	h.dispatch(t, "a1", domain.EventSendMessage, domain.SendMessageRequest{ChannelID: "c1", Content: "hi"})

	notice := decode[domain.ErrorNotice](t, waitFrames(t, a, domain.EventMessageError, 1)[0])
	assert.Equal(t, "Failed to send message", notice.Message)
	settle()
	assert.Empty(t, a.ofType(domain.EventNewMessage))
	assert.Empty(t, b.ofType(domain.EventNewMessage))
	assert.Empty(t, b.ofType(domain.EventMessageError))
}

func TestEditMessage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.login(t, "a1", "alice")
	b := h.login(t, "b1", "bob")
	for _, id := range []string{"a1", "b1"} {
		require.NoError(t, h.svc.JoinChannel(ctx, id, "c1"))
	}
	msg, err := h.svc.SendMessage(ctx, "a1", domain.SendMessageRequest{ChannelID: "c1", Content: "helo"})
	require.NoError(t, err)

	t.Run("non-sender is rejected without fanout", func(t *testing.T) {
		h.dispatch(t, "b1", domain.EventEditMessage, domain.EditMessageRequest{MessageID: msg.ID, NewContent: "hijacked"})

		notice := decode[domain.ErrorNotice](t, waitFrames(t, b, domain.EventMessageError, 1)[0])
		assert.Equal(t, domain.ErrNotSender.Message, notice.Message)
		settle()
		assert.Empty(t, a.ofType(domain.EventMessageEdited))
		assert.Empty(t, b.ofType(domain.EventMessageEdited))
		assert.Empty(t, a.ofType(domain.EventMessageError))
	})

	t.Run("sender edit reaches the room", func(t *testing.T) {
		h.dispatch(t, "a1", domain.EventEditMessage, domain.EditMessageRequest{MessageID: msg.ID, NewContent: "hello"})

		for _, conn := range []*fakeConn{a, b} {
			edited := decode[domain.Message](t, waitFrames(t, conn, domain.EventMessageEdited, 1)[0])
			assert.Equal(t, msg.ID, edited.ID)
			assert.Equal(t, "hello", edited.Content)
			assert.True(t, edited.Edited)
		}
	})

	t.Run("unknown message", func(t *testing.T) {
		_, err := h.svc.EditMessage(ctx, "a1", domain.EditMessageRequest{MessageID: "nope", NewContent: "x"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestDeleteMessageIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.login(t, "a1", "alice")
	b := h.login(t, "b1", "bob")

	msg, err := h.svc.SendMessage(ctx, "a1", domain.SendMessageRequest{
		RecipientID: "bob",
		Content:     "see attached",
		MessageType: domain.KindFile,
		Attachment:  &domain.Attachment{Name: "notes.txt", MimeType: "text/plain", Size: 12},
	})
	require.NoError(t, err)

	first, err := h.svc.DeleteMessage(ctx, "a1", msg.ID)
	require.NoError(t, err)
	second, err := h.svc.DeleteMessage(ctx, "a1", msg.ID)
	require.NoError(t, err)

	for _, got := range []*domain.Message{first, second} {
		assert.Equal(t, domain.Tombstone, got.Content)
		assert.Nil(t, got.Attachment)
		assert.True(t, got.Deleted)
	}
	assert.Equal(t, first, second)

	for _, conn := range []*fakeConn{a, b} {
		frames := waitFrames(t, conn, domain.EventMessageDeleted, 2)
		deleted := decode[domain.Message](t, frames[0])
		assert.Equal(t, domain.Tombstone, deleted.Content)
		assert.Nil(t, deleted.Attachment)
	}

	_, err = h.svc.EditMessage(ctx, "a1", domain.EditMessageRequest{MessageID: msg.ID, NewContent: "back"})
	assert.ErrorIs(t, err, domain.ErrMessageDeleted)

	_, err = h.svc.DeleteMessage(ctx, "b1", msg.ID)
	assert.ErrorIs(t, err, domain.ErrNotSender)
}

func TestTypingExcludesSender(t *testing.T) {
	h := newHarness(t)
	a := h.login(t, "a1", "alice")
	b := h.login(t, "b1", "bob")
	outsider := h.login(t, "c1", "carol")
	for _, id := range []string{"a1", "b1"} {
		require.NoError(t, h.svc.JoinChannel(context.Background(), id, "room"))
	}

	h.dispatch(t, "a1", domain.EventTyping, domain.TypingRequest{RoomID: "room", IsTyping: true})

	got := decode[domain.Typing](t, waitFrames(t, b, domain.EventUserTyping, 1)[0])
	assert.Equal(t, domain.Typing{UserID: "alice", Username: "name-alice", RoomID: "room", IsTyping: true}, got)
	settle()
	assert.Empty(t, a.ofType(domain.EventUserTyping))
	assert.Empty(t, outsider.ofType(domain.EventUserTyping))

	assert.Zero(t, h.svc.Typing("c1", domain.TypingRequest{RoomID: "room", IsTyping: true}), "outside the room")
}

func TestDisconnect(t *testing.T) {
	h := newHarness(t)
	watcher := h.login(t, "w1", "walt")
	h.login(t, "a1", "alice")
	h.login(t, "a2", "alice")
	require.NoError(t, h.svc.JoinChannel(context.Background(), "a1", "c1"))
	waitFrames(t, watcher, domain.EventUserOnline, 1)

	assert.True(t, h.svc.Disconnect("a1"))
	assert.False(t, h.svc.Disconnect("a1"), "second disconnect is a no-op")
	_, _, attached := h.bcast.Hub().Identity("a1")
	assert.False(t, attached)
	assert.Zero(t, h.bcast.Hub().RoomClientCount("c1"))
	assert.True(t, h.bcast.Registry().IsOnline("alice"), "second device keeps alice online")

	settle()
	assert.Empty(t, watcher.ofType(domain.EventUserOffline))

	assert.True(t, h.svc.Disconnect("a2"))
	offline := decode[domain.Presence](t, waitFrames(t, watcher, domain.EventUserOffline, 1)[0])
	assert.Equal(t, domain.Presence{UserID: "alice", Username: "name-alice"}, offline)
	assert.False(t, h.bcast.Registry().IsOnline("alice"))
}

func TestDisconnectLeavesRoomsBeforeOffline(t *testing.T) {
	h := newHarness(t)
	h.login(t, "a1", "alice")
	for _, room := range []string{"c1", "c2"} {
		require.NoError(t, h.svc.JoinChannel(context.Background(), "a1", room))
	}
	recorder := &offlineRecorder{hub: h.bcast.Hub(), roomID: "c1"}
	h.bcast.Registry().AddListener(recorder)

	require.True(t, h.svc.Disconnect("a1"))

	states := recorder.states()
	require.Len(t, states, 1, "offline fires exactly once")
	assert.Equal(t, "a1", states[0].connID)
	assert.Empty(t, states[0].rooms, "rooms left before the offline edge")
	assert.False(t, states[0].inRoom)
	assert.Zero(t, states[0].count)
}

func TestAuthenticateOnDetachedConnection(t *testing.T) {
	h := newHarness(t)
	h.open(t, "a1")
	h.bcast.Hub().Detach("a1")

	_, err := h.svc.Authenticate(context.Background(), "a1", "token-alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, broadcast.ErrUnknownConnection)
	assert.False(t, h.bcast.Registry().IsOnline("alice"), "registration is rolled back")
	_, ok := h.bcast.Registry().UserOf("a1")
	assert.False(t, ok)
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)
	conn := &fakeConn{}
	session, err := h.svc.Open("s1", conn)
	require.NoError(t, err)
	assert.Equal(t, "s1", session.ID())

	_, err = h.svc.Open("s1", &fakeConn{})
	assert.Error(t, err, "connection ids are unique")

	session.Handle(context.Background(), []byte(`{"type":"authenticate","data":{"token":"token-alice"}}`))
	waitFrames(t, conn, domain.EventAuthenticated, 1)
	assert.True(t, h.bcast.Registry().IsOnline("alice"))

	session.Handle(context.Background(), []byte(`nonsense`))
	session.Handle(context.Background(), []byte(`{"type":"shout"}`))
	errs := waitFrames(t, conn, domain.EventMessageError, 2)
	assert.Equal(t, "Invalid message format", decode[domain.ErrorNotice](t, errs[0]).Message)
	assert.Equal(t, "Unknown message type: shout", decode[domain.ErrorNotice](t, errs[1]).Message)

	session.Close()
	session.Close()
	assert.False(t, h.bcast.Registry().IsOnline("alice"))
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	locks := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("k")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Zero(t, locks.size())
}

func TestConversationLockKeyIsSymmetric(t *testing.T) {
	ab := conversationLockKey(&domain.Message{SenderID: "a", RecipientID: "b"})
	ba := conversationLockKey(&domain.Message{SenderID: "b", RecipientID: "a"})
	assert.Equal(t, ab, ba)
	assert.NotEqual(t, ab, conversationLockKey(&domain.Message{ChannelID: "a:b"}))
}
