package broadcast

import (
	"sort"
	"sync"
)

// Transition describes a presence edge for one user, triggered by one connection.
type Transition struct {
	UserID   string
	Username string
	ConnID   string
}

// PresenceListener observes registry changes. Callbacks run while the
// registry lock is held, so they see edges in the order they happened and
// must not call back into the registry.
type PresenceListener interface {
	// Registered is called for every successful registration, after
	// UserOnline when the registration brought the user online.
	Registered(t Transition, online []string)
	UserOnline(t Transition)
	UserOffline(t Transition)
}

// ConnectionRegistry tracks the active connections of every user.
// A user is online iff it has at least one registered connection.
type ConnectionRegistry struct {
	users     map[string]map[string]struct{} // userID -> set of connIDs
	conns     map[string]string              // connID -> userID
	names     map[string]string              // userID -> username
	listeners []PresenceListener
	mu        sync.Mutex
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		users: make(map[string]map[string]struct{}),
		conns: make(map[string]string),
		names: make(map[string]string),
	}
}

// AddListener subscribes l to presence changes.
func (r *ConnectionRegistry) AddListener(l PresenceListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Register adds connID to userID's connection set and reports whether the
// user went from offline to online. Registering a known connection is a no-op.
func (r *ConnectionRegistry) Register(userID, username, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[connID]; exists {
		return false
	}

	set, online := r.users[userID]
	if !online {
		set = make(map[string]struct{})
		r.users[userID] = set
	}
	set[connID] = struct{}{}
	r.conns[connID] = userID
	r.names[userID] = username

	t := Transition{UserID: userID, Username: username, ConnID: connID}
	if !online {
		for _, l := range r.listeners {
			l.UserOnline(t)
		}
	}
	snapshot := r.onlineLocked()
	for _, l := range r.listeners {
		l.Registered(t, snapshot)
	}
	return !online
}

// Unregister removes connID and reports whether its user went offline.
// Unknown connections are ignored.
func (r *ConnectionRegistry) Unregister(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.conns[connID]
	if !ok {
		return false
	}
	delete(r.conns, connID)

	set := r.users[userID]
	delete(set, connID)
	if len(set) > 0 {
		return false
	}
	delete(r.users, userID)
	username := r.names[userID]
	delete(r.names, userID)

	t := Transition{UserID: userID, Username: username, ConnID: connID}
	for _, l := range r.listeners {
		l.UserOffline(t)
	}
	return true
}

// IsOnline reports whether userID has at least one connection.
func (r *ConnectionRegistry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[userID]
	return ok
}

// OnlineUserIDs returns a sorted snapshot of online user ids.
func (r *ConnectionRegistry) OnlineUserIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.onlineLocked()
}

// Connections returns the connection ids of userID.
func (r *ConnectionRegistry) Connections(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.users[userID]
	ids := make([]string, 0, len(set))
	for connID := range set {
		ids = append(ids, connID)
	}
	sort.Strings(ids)
	return ids
}

// UserOf returns the user bound to connID.
func (r *ConnectionRegistry) UserOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.conns[connID]
	return userID, ok
}

// OnlineCount returns the number of online users.
func (r *ConnectionRegistry) OnlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

func (r *ConnectionRegistry) onlineLocked() []string {
	ids := make([]string, 0, len(r.users))
	for userID := range r.users {
		ids = append(ids, userID)
	}
	sort.Strings(ids)
	return ids
}
