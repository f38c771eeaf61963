// internal/database/reviews.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/carpool/internal/rating"
	"github.com/jason-s-yu/carpool/internal/room"
)

// ReviewStore keeps post-ride reviews.
type ReviewStore struct {
	pool *pgxpool.Pool
}

func NewReviewStore(pool *pgxpool.Pool) *ReviewStore {
	return &ReviewStore{pool: pool}
}

// SaveReviews inserts reviews in one transaction and returns the ones stored.
// A reviewer who already rated someone in the same room is skipped.
func (s *ReviewStore) SaveReviews(ctx context.Context, reviews []rating.Review) ([]rating.Review, error) {
	var saved []rating.Review
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO reviews (id, room_id, reviewer_id, reviewee_id, score, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (room_id, reviewer_id, reviewee_id) DO NOTHING
		`
		for _, rv := range reviews {
			tag, err := tx.Exec(ctx, q, rv.ID, rv.RoomID, rv.ReviewerID, rv.RevieweeID, rv.Score, rv.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert review of %s: %w", rv.RevieweeID, err)
			}
			if tag.RowsAffected() > 0 {
				saved = append(saved, rv)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Summary aggregates every review a rider has received.
func (s *ReviewStore) Summary(ctx context.Context, userID uuid.UUID) (rating.Summary, error) {
	var (
		count int
		total int64
	)
	q := `SELECT COUNT(*), COALESCE(SUM(score), 0) FROM reviews WHERE reviewee_id = $1`
	if err := s.pool.QueryRow(ctx, q, userID).Scan(&count, &total); err != nil {
		return rating.Summary{}, fmt.Errorf("failed to load rating: %w", err)
	}
	return rating.Summarize(userID, count, total), nil
}

// RoomSnapshot loads the last stored snapshot of a room that is no longer live.
func (s *ReviewStore) RoomSnapshot(ctx context.Context, roomID uuid.UUID) (room.Snapshot, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT snapshot FROM rooms WHERE id = $1`, roomID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return room.Snapshot{}, room.Errorf(room.ErrNotFound, "room %s not found", roomID)
	}
	if err != nil {
		return room.Snapshot{}, fmt.Errorf("failed to load room snapshot: %w", err)
	}
	var snap room.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return room.Snapshot{}, fmt.Errorf("failed to decode room snapshot: %w", err)
	}
	return snap, nil
}
