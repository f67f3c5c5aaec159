package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/realtime-chat/events"
	"github.com/go-monolith/mono/pkg/types"
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

type touchCall struct {
	userID string
	at     time.Time
}

type mockRecorder struct {
	mu    sync.Mutex
	calls []touchCall
	err   error
}

func (r *mockRecorder) TouchLastSeen(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, touchCall{userID: userID, at: at})
	return r.err
}

func TestActivityModule_Handlers(t *testing.T) {
	at := time.Date(2030, 5, 6, 7, 8, 9, 0, time.UTC)

	tests := []struct {
		name       string
		run        func(m *ActivityModule) error
		wantUserID string
	}{
		{
			name: "user online",
			run: func(m *ActivityModule) error {
				return m.handlePresence(context.Background(), events.PresenceEvent{UserID: "alice", Timestamp: at}, nil)
			},
			wantUserID: "alice",
		},
		{
			name: "user offline",
			run: func(m *ActivityModule) error {
				return m.handlePresence(context.Background(), events.PresenceEvent{UserID: "bob", Timestamp: at}, nil)
			},
			wantUserID: "bob",
		},
		{
			name: "message posted",
			run: func(m *ActivityModule) error {
				return m.handleMessagePosted(context.Background(), events.MessagePostedEvent{SenderID: "carol", Timestamp: at}, nil)
			},
			wantUserID: "carol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &mockRecorder{}
			m := &ActivityModule{recorder: recorder, logger: &mockLogger{}}

			if err := tt.run(m); err != nil {
				t.Fatalf("handler error = %v", err)
			}
			if len(recorder.calls) != 1 {
				t.Fatalf("TouchLastSeen called %d times, want 1", len(recorder.calls))
			}
			if got := recorder.calls[0]; got.userID != tt.wantUserID || !got.at.Equal(at) {
				t.Errorf("TouchLastSeen(%q, %v), want (%q, %v)", got.userID, got.at, tt.wantUserID, at)
			}
		})
	}
}

func TestActivityModule_FailuresAreNotRetried(t *testing.T) {
	recorder := &mockRecorder{err: errors.New("identity unavailable")}
	m := &ActivityModule{recorder: recorder, logger: &mockLogger{}}

	if err := m.handlePresence(context.Background(), events.PresenceEvent{UserID: "alice"}, nil); err != nil {
		t.Errorf("handlePresence() error = %v, want nil", err)
	}
	if len(recorder.calls) != 1 || recorder.calls[0].at.IsZero() {
		t.Errorf("expected one call with a filled-in timestamp, got %+v", recorder.calls)
	}
}

func TestActivityModule_StartRequiresIdentity(t *testing.T) {
	m := NewModule(&mockLogger{})
	if err := m.Start(context.Background()); err == nil {
		t.Error("Start() without identity dependency should fail")
	}
	if got := m.Dependencies(); len(got) != 1 || got[0] != "identity" {
		t.Errorf("Dependencies() = %v", got)
	}
}
