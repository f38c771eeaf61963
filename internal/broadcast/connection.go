// internal/broadcast/connection.go
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jason-s-yu/carpool/internal/room"
)

// Connection is a single user's live session in a room. Events are queued on
// OutChan and drained by the transport's write pump.
type Connection struct {
	UserID  uuid.UUID
	RoomID  uuid.UUID
	OutChan chan room.Event

	cancel    func()
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewConnection allocates a session with a queue of size buffer. cancel, if set,
// is called on Close to stop the session's goroutines.
func NewConnection(roomID, userID uuid.UUID, buffer int, cancel func()) *Connection {
	return &Connection{
		UserID:  userID,
		RoomID:  roomID,
		OutChan: make(chan room.Event, buffer),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Send queues ev without blocking. It reports false when the queue is full or the
// connection is closed.
func (c *Connection) Send(ev room.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.OutChan <- ev:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Close marks the connection closed and cancels its goroutines. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// Dropped reports how many events were discarded because the queue was full.
func (c *Connection) Dropped() int64 { return c.dropped.Load() }
