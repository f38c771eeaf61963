// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/carpool/internal/database"
	"github.com/jason-s-yu/carpool/internal/room"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list the historian drains.
const DefaultQueueName = "carpool_records"

// Connect opens a client for addr and pings it.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// QueuedRecordStore hands room history to the historian through a Redis list
// instead of writing to Postgres on the request path.
type QueuedRecordStore struct {
	rdb   redis.Cmdable
	queue string
	now   func() time.Time
}

// NewQueuedRecordStore pushes onto queue, or DefaultQueueName when empty.
func NewQueuedRecordStore(rdb redis.Cmdable, queue string) *QueuedRecordStore {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &QueuedRecordStore{rdb: rdb, queue: queue, now: time.Now}
}

func (q *QueuedRecordStore) AppendMessage(ctx context.Context, msg room.ChatMessage) error {
	return q.push(ctx, database.HistoryRecord{Kind: database.KindMessage, Message: &msg})
}

func (q *QueuedRecordStore) PersistRoomSnapshot(ctx context.Context, snap room.Snapshot) error {
	return q.push(ctx, database.HistoryRecord{Kind: database.KindSnapshot, Snapshot: &snap})
}

func (q *QueuedRecordStore) push(ctx context.Context, rec database.HistoryRecord) error {
	rec.QueuedAt = q.now()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", rec.Kind, err)
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.queue, err)
	}
	return nil
}
