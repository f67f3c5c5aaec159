package api

import (
	"context"
	"errors"

	"github.com/example/realtime-chat/modules/broadcast"
	"github.com/example/realtime-chat/modules/chat"
	"github.com/gofiber/contrib/websocket"
)

// maxFrameSize bounds inbound frames; a base64 attachment at the size limit fits.
const maxFrameSize = 8 << 20

var errRealtimeUnavailable = errors.New("realtime service is not running")

// handleWebSocket is the read loop of one connection. Frames are handled
// in arrival order; the session is closed when the loop ends.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	connID := m.newConnID()
	session, err := m.openSession(connID, c)
	if err != nil {
		m.logger.Error("Failed to open session", "connID", connID, "error", err)
		_ = c.Close()
		return
	}
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.SetReadLimit(maxFrameSize)
	m.logger.Info("WebSocket connected", "connID", connID, "remote", c.RemoteAddr().String())

	for {
		messageType, frame, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Warn("WebSocket read failed", "connID", connID, "error", err)
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		session.Handle(ctx, frame)
	}

	m.logger.Info("WebSocket disconnected", "connID", connID)
}

// openSession resolves the chat service at connection time, since it is
// built when the chat module starts.
func (m *APIModule) openSession(connID string, conn broadcast.Conn) (*chat.Session, error) {
	if m.chat == nil || m.chat.Service() == nil {
		return nil, errRealtimeUnavailable
	}
	return m.chat.Service().Open(connID, conn)
}
