package chat

import (
	"context"

	"github.com/example/realtime-chat/modules/broadcast"
)

// Session is the inbound side of one connection. The transport feeds it
// frames from a single read loop and closes it when the connection ends.
type Session struct {
	id      string
	service *Service
}

// Open attaches conn under connID and returns its session.
func (s *Service) Open(connID string, conn broadcast.Conn) (*Session, error) {
	if err := s.Connect(connID, conn); err != nil {
		return nil, err
	}
	s.logger.Debug("Session opened", "connID", connID)
	return &Session{id: connID, service: s}, nil
}

// ID returns the connection id.
func (s *Session) ID() string {
	return s.id
}

// Handle dispatches one inbound frame.
func (s *Session) Handle(ctx context.Context, frame []byte) {
	s.service.Dispatch(ctx, s.id, frame)
}

// Close disconnects the session. It is safe to call more than once.
func (s *Session) Close() {
	s.service.Disconnect(s.id)
}
