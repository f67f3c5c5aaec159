package broadcast

import (
	"errors"
	"sort"
	"sync"

	"github.com/go-monolith/mono/pkg/types"
)

var (
	// ErrHubClosed is returned when attaching to a hub that has shut down.
	ErrHubClosed = errors.New("hub is closed")
	// ErrDuplicateConnection is returned when a connection id is attached twice.
	ErrDuplicateConnection = errors.New("connection already attached")
	// ErrUnknownConnection is returned for operations on a detached connection.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrAlreadyBound is returned when binding a connection that has an identity.
	ErrAlreadyBound = errors.New("connection already bound")
)

// Client is the server-side record of one connection.
type Client struct {
	ID       string
	UserID   string
	Username string
	rooms    map[string]struct{}
	out      *outbox
}

// Hub is the arena of live connections and the room router.
// Connections are addressed by id; the transport object carries no domain state.
type Hub struct {
	clients    map[string]*Client             // connID -> Client
	rooms      map[string]map[string]struct{} // roomID -> set of connIDs
	outboxSize int
	closed     bool
	logger     types.Logger
	mu         sync.RWMutex
}

// NewHub creates a new Hub whose connections queue up to outboxSize frames.
func NewHub(outboxSize int, logger types.Logger) *Hub {
	if outboxSize <= 0 {
		outboxSize = DefaultOutboxSize
	}
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]struct{}),
		outboxSize: outboxSize,
		logger:     logger,
	}
}

// Attach adds an anonymous connection to the hub.
func (h *Hub) Attach(connID string, conn Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	if _, ok := h.clients[connID]; ok {
		return ErrDuplicateConnection
	}
	h.clients[connID] = &Client{
		ID:    connID,
		rooms: make(map[string]struct{}),
		out:   newOutbox(connID, conn, h.outboxSize, h.logger),
	}
	h.logger.Debug("Connection attached", "connID", connID)
	return nil
}

// Bind attaches an identity to a connection. A bound connection keeps its identity.
func (h *Hub) Bind(connID, userID, username string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if client.UserID != "" {
		return ErrAlreadyBound
	}
	client.UserID = userID
	client.Username = username
	return nil
}

// Identity returns the bound identity of a connection.
func (h *Hub) Identity(connID string) (userID, username string, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[connID]
	if !exists || client.UserID == "" {
		return "", "", false
	}
	return client.UserID, client.Username, true
}

// Detach removes a connection and stops its writer. It returns after the
// writer has exited, so the caller may release the transport. It reports
// whether the connection was present.
func (h *Hub) Detach(connID string) bool {
	h.mu.Lock()
	client, ok := h.clients[connID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	h.leaveAllLocked(client)
	delete(h.clients, connID)
	h.mu.Unlock()

	client.out.close()
	h.logger.Debug("Connection detached", "connID", connID, "userID", client.UserID)
	return true
}

// Join subscribes a connection to a room. Joining twice is a no-op.
func (h *Hub) Join(connID, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return false
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]struct{})
	}
	h.rooms[roomID][connID] = struct{}{}
	client.rooms[roomID] = struct{}{}
	return true
}

// Leave unsubscribes a connection from a room.
func (h *Hub) Leave(connID, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return false
	}
	if _, in := client.rooms[roomID]; !in {
		return false
	}
	h.removeFromRoomLocked(client, roomID)
	return true
}

// LeaveAll unsubscribes a connection from every room and returns the rooms left.
func (h *Hub) LeaveAll(connID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return nil
	}
	return h.leaveAllLocked(client)
}

func (h *Hub) leaveAllLocked(client *Client) []string {
	left := make([]string, 0, len(client.rooms))
	for roomID := range client.rooms {
		h.removeFromRoomLocked(client, roomID)
		left = append(left, roomID)
	}
	sort.Strings(left)
	return left
}

func (h *Hub) removeFromRoomLocked(client *Client, roomID string) {
	delete(client.rooms, roomID)
	if members := h.rooms[roomID]; members != nil {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// InRoom reports whether a connection is subscribed to a room.
func (h *Hub) InRoom(connID, roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[roomID][connID]
	return ok
}

// Rooms returns the rooms a connection is subscribed to.
func (h *Hub) Rooms(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[connID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(client.rooms))
	for roomID := range client.rooms {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

// Send queues a frame for one connection.
func (h *Hub) Send(connID string, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[connID]
	if !ok {
		return false
	}
	return client.out.enqueue(frame)
}

// SendToRoom queues a frame for every subscriber of a room except the
// connection named by except. It returns the number of frames queued.
func (h *Hub) SendToRoom(roomID string, frame []byte, except string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for connID := range h.rooms[roomID] {
		if connID == except {
			continue
		}
		if client, ok := h.clients[connID]; ok && client.out.enqueue(frame) {
			sent++
		}
	}
	return sent
}

// SendToConns queues a frame once for each distinct connection id.
func (h *Hub) SendToConns(connIDs []string, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{}, len(connIDs))
	sent := 0
	for _, connID := range connIDs {
		if _, dup := seen[connID]; dup {
			continue
		}
		seen[connID] = struct{}{}
		if client, ok := h.clients[connID]; ok && client.out.enqueue(frame) {
			sent++
		}
	}
	return sent
}

// BroadcastBound queues a frame for every authenticated connection except one.
func (h *Hub) BroadcastBound(frame []byte, except string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for connID, client := range h.clients {
		if connID == except || client.UserID == "" {
			continue
		}
		if client.out.enqueue(frame) {
			sent++
		}
	}
	return sent
}

// ClientCount returns the number of attached connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of rooms with at least one subscriber.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// RoomClientCount returns the number of connections subscribed to a room.
func (h *Hub) RoomClientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Close stops every writer, closes every transport and refuses new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, client := range clients {
		client.out.stop()
		_ = client.out.conn.Close()
	}
	for _, client := range clients {
		client.out.close()
	}
	h.logger.Info("Hub closed")
}
