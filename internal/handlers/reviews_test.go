// internal/handlers/reviews_test.go
package handlers

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/carpool/internal/rating"
	"github.com/jason-s-yu/carpool/internal/room"
	"github.com/stretchr/testify/require"
)

// fakeReviews skips a repeated (room, reviewer, reviewee) like the unique index does.
type fakeReviews struct {
	mu      sync.Mutex
	reviews map[[3]uuid.UUID]rating.Review
	rooms   map[uuid.UUID]room.Snapshot
}

func newFakeReviews() *fakeReviews {
	return &fakeReviews{reviews: make(map[[3]uuid.UUID]rating.Review), rooms: make(map[uuid.UUID]room.Snapshot)}
}

func (f *fakeReviews) SaveReviews(_ context.Context, reviews []rating.Review) ([]rating.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var saved []rating.Review
	for _, rv := range reviews {
		key := [3]uuid.UUID{rv.RoomID, rv.ReviewerID, rv.RevieweeID}
		if _, ok := f.reviews[key]; ok {
			continue
		}
		f.reviews[key] = rv
		saved = append(saved, rv)
	}
	return saved, nil
}

func (f *fakeReviews) Summary(_ context.Context, userID uuid.UUID) (rating.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var (
		count int
		total int64
	)
	for _, rv := range f.reviews {
		if rv.RevieweeID == userID {
			count++
			total += int64(rv.Score)
		}
	}
	return rating.Summarize(userID, count, total), nil
}

func (f *fakeReviews) RoomSnapshot(_ context.Context, roomID uuid.UUID) (room.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.rooms[roomID]
	if !ok {
		return room.Snapshot{}, room.ErrNotFound
	}
	return snap, nil
}

func TestSubmitReviews(t *testing.T) {
	is := require.New(t)
	ts := newTestServer(t)
	reviews := newFakeReviews()
	ts.Reviews = reviews
	ctx := context.Background()

	ana, tokenA := ts.rider(t, "ana")
	ben, tokenB := ts.rider(t, "ben")
	route := map[string]string{"departure": "Station", "destination": "Campus"}
	snap := decode[room.Snapshot](t, ts.do(t, http.MethodPost, "/rooms/match", tokenA, route))
	ts.do(t, http.MethodPost, "/rooms/match", tokenB, route)
	path := "/rooms/" + snap.ID.String() + "/reviews"

	rm, err := ts.Rooms.Get(snap.ID)
	is.NoError(err)
	_, err = rm.RequestCompleteRecruitment(ctx, ana)
	is.NoError(err)

	// Given a room that has not settled yet
	body := map[string]any{"ratings": []map[string]any{{"user_id": ben, "rating": 5}}}
	is.Equal(http.StatusConflict, ts.do(t, http.MethodPost, path, tokenA, body).Code)

	// When the ride is settled and ana rates ben
	_, err = rm.RequestSettlement(ctx, ana, 20000)
	is.NoError(err)
	rr := ts.do(t, http.MethodPost, path, tokenA, body)
	is.Equal(http.StatusOK, rr.Code, rr.Body.String())
	res := decode[submitReviewsResponse](t, rr)
	is.Len(res.Saved, 1)
	is.Empty(res.Skipped)

	// Then a second submission is skipped, not double counted
	res = decode[submitReviewsResponse](t, ts.do(t, http.MethodPost, path, tokenA, body))
	is.Empty(res.Saved)
	is.Equal([]uuid.UUID{ben}, res.Skipped)

	// And outsiders, bad scores and anonymous callers are refused
	outsider := map[string]any{"ratings": []map[string]any{{"user_id": uuid.New(), "rating": 3}}}
	is.Equal(http.StatusBadRequest, ts.do(t, http.MethodPost, path, tokenA, outsider).Code)
	tooHigh := map[string]any{"ratings": []map[string]any{{"user_id": ben, "rating": 9}}}
	is.Equal(http.StatusBadRequest, ts.do(t, http.MethodPost, path, tokenA, tooHigh).Code)
	is.Equal(http.StatusUnauthorized, ts.do(t, http.MethodPost, path, "", body).Code)

	// When the room closes and leaves memory, its stored snapshot is used
	_, err = rm.Close(ctx)
	is.NoError(err)
	reviews.rooms[snap.ID] = rm.Snapshot()
	back := map[string]any{"ratings": []map[string]any{{"user_id": ana, "rating": 4}}}
	rr = ts.do(t, http.MethodPost, path, tokenB, back)
	is.Equal(http.StatusOK, rr.Code, rr.Body.String())

	// Unknown rooms are not found
	is.Equal(http.StatusNotFound, ts.do(t, http.MethodPost, "/rooms/"+uuid.NewString()+"/reviews", tokenA, body).Code)
}

func TestUserRating(t *testing.T) {
	is := require.New(t)
	ts := newTestServer(t)
	reviews := newFakeReviews()
	ts.Reviews = reviews

	rider, roomID := uuid.New(), uuid.New()
	_, err := reviews.SaveReviews(context.Background(), []rating.Review{
		{RoomID: roomID, ReviewerID: uuid.New(), RevieweeID: rider, Score: 5},
		{RoomID: roomID, ReviewerID: uuid.New(), RevieweeID: rider, Score: 4},
		{RoomID: roomID, ReviewerID: uuid.New(), RevieweeID: rider, Score: 4},
	})
	is.NoError(err)

	rr := ts.do(t, http.MethodGet, "/user/"+rider.String()+"/rating", "", nil)
	is.Equal(http.StatusOK, rr.Code)
	summary := decode[rating.Summary](t, rr)
	is.Equal(3, summary.Count)
	is.Equal(4.33, summary.Average)

	// A rider with no reviews averages zero
	summary = decode[rating.Summary](t, ts.do(t, http.MethodGet, "/user/"+uuid.NewString()+"/rating", "", nil))
	is.Zero(summary.Average)

	is.Equal(http.StatusBadRequest, ts.do(t, http.MethodGet, "/user/nope/rating", "", nil).Code)
}
