// internal/room/collaborators.go
package room

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -source=collaborators.go -destination=../mocks/mock_collaborators.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrUserNotFound is returned by an IdentityProvider for unknown users.
var ErrUserNotFound = errors.New("user not found")

// Identity is what the room needs to know about a rider.
type Identity struct {
	UserID          uuid.UUID `json:"user_id"`
	DisplayName     string    `json:"display_name"`
	PaymentLinkBase string    `json:"payment_link_base"`
}

// IdentityProvider resolves riders. Implementations return ErrUserNotFound for unknown ids.
type IdentityProvider interface {
	LookupUser(ctx context.Context, userID uuid.UUID) (Identity, error)
}

// RecordStore keeps audit history. Rooms never read from it.
type RecordStore interface {
	AppendMessage(ctx context.Context, msg ChatMessage) error
	PersistRoomSnapshot(ctx context.Context, snap Snapshot) error
}

// Subscriber is one connected session as seen by the gateway.
type Subscriber interface {
	// Send enqueues ev without blocking and reports whether it was accepted.
	Send(ev Event) bool
}

// Gateway fans room events out to subscribed sessions.
type Gateway interface {
	Subscribe(roomID, userID uuid.UUID, sub Subscriber)
	Unsubscribe(roomID, userID uuid.UUID, sub Subscriber) bool
	Publish(roomID uuid.UUID, ev Event)
	DropRoom(roomID uuid.UUID)
}

// retryPolicy bounds collaborator calls so a slow dependency never holds a room.
type retryPolicy struct {
	timeout  time.Duration
	attempts int
	backoff  time.Duration
}

// call runs fn with a per-attempt timeout. Errors matching stop are returned immediately.
func (rp retryPolicy) call(ctx context.Context, stop error, fn func(ctx context.Context) error) error {
	attempts := rp.attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(rp.backoff * time.Duration(i)):
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, rp.timeout)
		err = fn(callCtx)
		cancel()
		if err == nil || (stop != nil && errors.Is(err, stop)) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
