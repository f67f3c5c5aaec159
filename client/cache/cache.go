// Package cache keeps a client-side copy of conversations and decides when a
// local copy can be served instead of querying the message store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/singleflight"
)

// Kind distinguishes channel conversations from private ones.
type Kind string

const (
	// KindChannel keys a conversation by channel id.
	KindChannel Kind = "channel"
	// KindDirect keys a private conversation by the peer's user id.
	KindDirect Kind = "direct"
)

// Key identifies one cached conversation.
type Key struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// ChannelKey returns the key of a channel conversation.
func ChannelKey(channelID string) Key {
	return Key{Kind: KindChannel, ID: channelID}
}

// DirectKey returns the key of the private conversation with peerID.
func DirectKey(peerID string) Key {
	return Key{Kind: KindDirect, ID: peerID}
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.ID
}

// Query narrows a conversation fetch.
type Query struct {
	Search string
	Since  *time.Time
}

// Fetcher reads conversation history from the message store.
type Fetcher interface {
	FetchConversation(ctx context.Context, key Key, q Query) ([]*domain.Message, error)
}

type entry struct {
	messages []*domain.Message
	index    map[string]int
	unread   bool
	lastSeen time.Time
}

func newEntry() *entry {
	return &entry{index: make(map[string]int)}
}

// add inserts msg at its creation-time position unless its id is already
// cached. Messages with equal timestamps are ordered by id, and a new
// message goes after any that compare equal to it.
func (e *entry) add(msg *domain.Message) bool {
	if _, ok := e.index[msg.ID]; ok {
		return false
	}
	m := *msg
	i := sort.Search(len(e.messages), func(i int) bool {
		return olderThan(&m, e.messages[i])
	})
	e.messages = slices.Insert(e.messages, i, &m)
	for j := i; j < len(e.messages); j++ {
		e.index[e.messages[j].ID] = j
	}
	return true
}

func olderThan(a, b *domain.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// replace swaps the cached copy of msg in place.
func (e *entry) replace(msg *domain.Message) bool {
	i, ok := e.index[msg.ID]
	if !ok {
		return false
	}
	m := *msg
	e.messages[i] = &m
	return true
}

func (e *entry) snapshot() []*domain.Message {
	out := make([]*domain.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// Cache is a per-conversation, id-deduplicated message cache for one user.
type Cache struct {
	mu      sync.Mutex
	selfID  string
	fetcher Fetcher
	entries map[Key]*entry
	active  Key
	loads   singleflight.Group
	logger  types.Logger
}

// New creates a cache for the user selfID.
func New(selfID string, fetcher Fetcher, logger types.Logger) *Cache {
	return &Cache{
		selfID:  selfID,
		fetcher: fetcher,
		entries: make(map[Key]*entry),
		logger:  logger,
	}
}

type loadOptions struct {
	search string
	force  bool
}

// LoadOption configures LoadConversation.
type LoadOption func(*loadOptions)

// WithSearch filters by substring. Searches always query the store and
// never touch the cache.
func WithSearch(text string) LoadOption {
	return func(o *loadOptions) {
		o.search = text
	}
}

// WithForceRefresh queries the store even when the cached copy is current.
func WithForceRefresh() LoadOption {
	return func(o *loadOptions) {
		o.force = true
	}
}

// LoadConversation returns the messages of key, oldest first.
//
// A non-empty cached copy with the unread flag clear is served without a
// store query. Otherwise new messages since the newest fetched timestamp
// are merged by id in creation order. When that fetch fails the cached copy
// is served and the unread flag is left as it was; the error is returned
// only when nothing is cached.
func (c *Cache) LoadConversation(ctx context.Context, key Key, opts ...LoadOption) ([]*domain.Message, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.search != "" {
		return c.fetcher.FetchConversation(ctx, key, Query{Search: o.search})
	}

	c.mu.Lock()
	e := c.entries[key]
	if e != nil && len(e.messages) > 0 && !e.unread && !o.force {
		out := e.snapshot()
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	v, err, _ := c.loads.Do(key.String(), func() (any, error) {
		return c.refresh(ctx, key)
	})
	if err != nil {
		c.logger.Warn("Conversation fetch failed, serving cache", "conversation", key.String(), "error", err)
		c.mu.Lock()
		defer c.mu.Unlock()
		if e := c.entries[key]; e != nil && len(e.messages) > 0 {
			return e.snapshot(), nil
		}
		return nil, err
	}
	return v.([]*domain.Message), nil
}

func (c *Cache) refresh(ctx context.Context, key Key) ([]*domain.Message, error) {
	var q Query
	c.mu.Lock()
	if e := c.entries[key]; e != nil && !e.lastSeen.IsZero() {
		since := e.lastSeen
		q.Since = &since
	}
	c.mu.Unlock()

	fetched, err := c.fetcher.FetchConversation(ctx, key, q)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(key)
	for _, msg := range fetched {
		e.add(msg)
		if msg.CreatedAt.After(e.lastSeen) {
			e.lastSeen = msg.CreatedAt
		}
	}
	e.unread = false
	return e.snapshot(), nil
}

// entry returns the entry of key, creating it. Callers hold c.mu.
func (c *Cache) entry(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = newEntry()
		c.entries[key] = e
	}
	return e
}

// SetActive records the conversation currently on screen. New messages for
// other conversations mark them unread.
func (c *Cache) SetActive(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = key
}

// MarkUnread forces the next load of key to query the store.
func (c *Cache) MarkUnread(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry(key).unread = true
}

// Unread reports the unread flag of key.
func (c *Cache) Unread(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key]
	return e != nil && e.unread
}

// Messages returns the cached messages of key without querying the store.
func (c *Cache) Messages(key Key) []*domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key]
	if e == nil {
		return nil
	}
	return e.snapshot()
}

// KeyOf returns the conversation key of msg as seen by the cache owner.
func (c *Cache) KeyOf(msg *domain.Message) Key {
	if msg.IsPrivate() {
		return DirectKey(msg.ConversationKey(c.selfID))
	}
	return ChannelKey(msg.ChannelID)
}

// ApplyNewMessage merges a pushed message if its id is not cached yet.
// It reports whether the message was added.
func (c *Cache) ApplyNewMessage(msg *domain.Message) bool {
	key := c.KeyOf(msg)

	c.mu.Lock()
	defer c.mu.Unlock()
	if key != c.active {
		c.entry(key).unread = true
	}
	e := c.entries[key]
	if e == nil {
		return false
	}
	return e.add(msg)
}

// ApplyMutation replaces a cached message with its edited or deleted form.
// It reports whether the message was cached.
func (c *Cache) ApplyMutation(msg *domain.Message) bool {
	key := c.KeyOf(msg)

	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key]
	if e == nil {
		return false
	}
	return e.replace(msg)
}

// HandleEvent applies a pushed frame to the cache. Frames that carry no
// message are ignored.
func (c *Cache) HandleEvent(eventType string, data json.RawMessage) error {
	var apply func(*domain.Message) bool
	switch eventType {
	case domain.EventNewMessage, domain.EventPrivateMessage:
		apply = c.ApplyNewMessage
	case domain.EventMessageEdited, domain.EventMessageDeleted:
		apply = c.ApplyMutation
	default:
		return nil
	}

	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to decode %s: %w", eventType, err)
	}
	if msg.ID == "" {
		return fmt.Errorf("%s without message id", eventType)
	}
	apply(&msg)
	return nil
}
