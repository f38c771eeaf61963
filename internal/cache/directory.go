// internal/cache/directory.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/carpool/internal/room"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const identityKeyPrefix = "carpool:identity:"

func identityKey(userID uuid.UUID) string {
	return identityKeyPrefix + userID.String()
}

// CachedDirectory memoizes identity lookups in Redis for ttl.
// Cache failures fall through to the wrapped provider.
type CachedDirectory struct {
	next room.IdentityProvider
	rdb  redis.Cmdable
	ttl  time.Duration
	log  *logrus.Entry
}

func NewCachedDirectory(next room.IdentityProvider, rdb redis.Cmdable, ttl time.Duration, log *logrus.Entry) *CachedDirectory {
	return &CachedDirectory{next: next, rdb: rdb, ttl: ttl, log: log}
}

func (d *CachedDirectory) LookupUser(ctx context.Context, userID uuid.UUID) (room.Identity, error) {
	key := identityKey(userID)

	raw, err := d.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var id room.Identity
		if jerr := json.Unmarshal(raw, &id); jerr == nil {
			return id, nil
		}
		d.log.WithField("user_id", userID).Warn("discarding malformed cached identity")
	case !errors.Is(err, redis.Nil):
		d.log.WithError(err).Debug("identity cache read failed")
	}

	id, err := d.next.LookupUser(ctx, userID)
	if err != nil {
		return room.Identity{}, err
	}

	if data, jerr := json.Marshal(id); jerr == nil {
		if serr := d.rdb.Set(ctx, key, data, d.ttl).Err(); serr != nil {
			d.log.WithError(serr).Debug("identity cache write failed")
		}
	}
	return id, nil
}

// Forget drops a cached identity, e.g. after a profile change.
func (d *CachedDirectory) Forget(ctx context.Context, userID uuid.UUID) error {
	return d.rdb.Del(ctx, identityKey(userID)).Err()
}
