package broadcast

import (
	"sync"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
)

// Conn is the transport handle of a single client connection.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// stopWait bounds how long close waits for an in-flight write before it
// closes the transport to unblock the writer.
const stopWait = time.Second

// outbox is the outbound queue of one connection. A dedicated writer
// goroutine drains it, so enqueue never blocks on a slow client.
type outbox struct {
	connID    string
	conn      Conn
	queue     chan []byte
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	logger    types.Logger
}

func newOutbox(connID string, conn Conn, size int, logger types.Logger) *outbox {
	o := &outbox{
		connID:  connID,
		conn:    conn,
		queue:   make(chan []byte, size),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  logger,
	}
	go o.run()
	return o
}

// enqueue queues a frame and reports whether it was accepted.
// Frames are dropped when the queue is full or the outbox is closed.
func (o *outbox) enqueue(frame []byte) bool {
	select {
	case <-o.done:
		return false
	default:
	}

	select {
	case o.queue <- frame:
		return true
	default:
		o.logger.Warn("Outbox full, dropping frame", "connID", o.connID)
		return false
	}
}

func (o *outbox) run() {
	defer close(o.stopped)
	for {
		select {
		case <-o.done:
			return
		case frame := <-o.queue:
			// select picks randomly among ready cases; never write once stopped.
			select {
			case <-o.done:
				return
			default:
			}
			if err := o.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				o.logger.Warn("Failed to write frame", "connID", o.connID, "error", err)
				o.stop()
				// Unblock the reader so the transport notices the dead connection.
				_ = o.conn.Close()
				return
			}
		}
	}
}

// stop signals the writer without waiting for it.
func (o *outbox) stop() {
	o.closeOnce.Do(func() {
		close(o.done)
	})
}

// close stops the writer and returns once it has exited, so the transport
// is not written to afterwards. Safe to call more than once.
func (o *outbox) close() {
	o.stop()
	select {
	case <-o.stopped:
		return
	case <-time.After(stopWait):
	}
	o.logger.Warn("Writer still busy, closing transport", "connID", o.connID)
	_ = o.conn.Close()
	<-o.stopped
}
