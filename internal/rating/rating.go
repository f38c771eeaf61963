// internal/rating/rating.go
package rating

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/carpool/internal/room"
	"github.com/samber/lo"
)

const (
	// MinScore and MaxScore bound a single review.
	MinScore = 1
	MaxScore = 5
)

// Entry is one score a rider hands out after a ride.
type Entry struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Score  int       `json:"rating" validate:"gte=1,lte=5"`
}

// Review is a stored rating of one final participant by another.
type Review struct {
	ID         uuid.UUID `json:"id"`
	RoomID     uuid.UUID `json:"room_id"`
	ReviewerID uuid.UUID `json:"reviewer_id"`
	RevieweeID uuid.UUID `json:"reviewee_id"`
	Score      int       `json:"rating"`
	CreatedAt  time.Time `json:"created_at"`
}

// Summary is the aggregate shown on a rider's profile.
type Summary struct {
	UserID  uuid.UUID `json:"user_id"`
	Count   int       `json:"count"`
	Average float64   `json:"average_rating"`
}

// Prepare turns a reviewer's entries for a finished room into reviews.
// The room must be settled, the reviewer and every reviewee must be final
// participants, and nobody reviews themselves. A reviewee named twice keeps
// the first score.
func Prepare(snap room.Snapshot, reviewer uuid.UUID, entries []Entry) ([]Review, error) {
	if snap.State < room.StateSettled {
		return nil, room.Errorf(room.ErrSettlementRequired, "room %s is %s, reviews open after settlement", snap.ID, snap.State)
	}
	final := lo.SliceToMap(snap.FinalParticipants, func(p room.Participant) (uuid.UUID, struct{}) {
		return p.UserID, struct{}{}
	})
	if _, ok := final[reviewer]; !ok {
		return nil, room.Errorf(room.ErrNotFound, "user %s is not a final participant", reviewer)
	}
	if len(entries) == 0 {
		return nil, room.Errorf(room.ErrInvalidRequest, "no ratings given")
	}

	now := time.Now()
	reviews := make([]Review, 0, len(entries))
	for _, e := range lo.UniqBy(entries, func(e Entry) uuid.UUID { return e.UserID }) {
		switch _, ok := final[e.UserID]; {
		case !ok:
			return nil, room.Errorf(room.ErrInvalidRequest, "user %s is not a valid participant", e.UserID)
		case e.UserID == reviewer:
			return nil, room.Errorf(room.ErrInvalidRequest, "riders cannot rate themselves")
		case e.Score < MinScore || e.Score > MaxScore:
			return nil, room.Errorf(room.ErrInvalidRequest, "rating %d is outside %d..%d", e.Score, MinScore, MaxScore)
		}
		reviews = append(reviews, Review{
			ID:         uuid.New(),
			RoomID:     snap.ID,
			ReviewerID: reviewer,
			RevieweeID: e.UserID,
			Score:      e.Score,
			CreatedAt:  now,
		})
	}
	return reviews, nil
}

// Summarize averages total over count, rounded to two decimals. No reviews
// averages to zero.
func Summarize(userID uuid.UUID, count int, total int64) Summary {
	s := Summary{UserID: userID, Count: count}
	if count > 0 {
		s.Average = math.Round(float64(total)/float64(count)*100) / 100
	}
	return s
}
