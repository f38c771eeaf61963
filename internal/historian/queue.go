// internal/historian/queue.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/carpool/internal/database"
	"github.com/redis/go-redis/v9"
)

// RedisQueue pops history records pushed by cache.QueuedRecordStore.
type RedisQueue struct {
	rdb     redis.Cmdable
	name    string
	timeout time.Duration
}

func NewRedisQueue(rdb redis.Cmdable, name string) *RedisQueue {
	return &RedisQueue{rdb: rdb, name: name, timeout: 3 * time.Second}
}

// Pop blocks for up to the queue timeout. ok is false when nothing arrived.
func (q *RedisQueue) Pop(ctx context.Context) (rec database.HistoryRecord, ok bool, err error) {
	res, err := q.rdb.BLPop(ctx, q.timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	// res[0] is the queue name and res[1] the payload.
	if len(res) < 2 {
		return rec, false, nil
	}
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		return rec, false, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return rec, true, nil
}
