// internal/database/records.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/carpool/internal/room"
)

// Record kinds carried through the history queue.
const (
	KindMessage  = "message"
	KindSnapshot = "snapshot"
)

// HistoryRecord is one audit write. Exactly one of Message or Snapshot is set.
type HistoryRecord struct {
	Kind     string            `json:"kind"`
	Message  *room.ChatMessage `json:"message,omitempty"`
	Snapshot *room.Snapshot    `json:"snapshot,omitempty"`
	QueuedAt time.Time         `json:"queued_at"`
}

// RoomID returns the room the record belongs to.
func (r HistoryRecord) RoomID() uuid.UUID {
	switch {
	case r.Message != nil:
		return r.Message.RoomID
	case r.Snapshot != nil:
		return r.Snapshot.ID
	}
	return uuid.Nil
}

// Valid reports whether the record carries the payload its kind names.
func (r HistoryRecord) Valid() bool {
	switch r.Kind {
	case KindMessage:
		return r.Message != nil
	case KindSnapshot:
		return r.Snapshot != nil
	}
	return false
}

// RecordStore writes room history straight to Postgres.
type RecordStore struct {
	pool *pgxpool.Pool
}

// NewRecordStore wraps pool.
func NewRecordStore(pool *pgxpool.Pool) *RecordStore {
	return &RecordStore{pool: pool}
}

func (s *RecordStore) AppendMessage(ctx context.Context, msg room.ChatMessage) error {
	return s.WriteBatch(ctx, []HistoryRecord{{Kind: KindMessage, Message: &msg}})
}

func (s *RecordStore) PersistRoomSnapshot(ctx context.Context, snap room.Snapshot) error {
	return s.WriteBatch(ctx, []HistoryRecord{{Kind: KindSnapshot, Snapshot: &snap}})
}

// WriteBatch stores records in a single transaction.
func (s *RecordStore) WriteBatch(ctx context.Context, records []HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			if err := insertRecordTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insert %s record: %w", rec.Kind, err)
			}
		}
		return nil
	})
}

// MarkAbandoned flags a room that went quiet before closing.
func (s *RecordStore) MarkAbandoned(ctx context.Context, roomID uuid.UUID) (bool, error) {
	var marked bool
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE rooms
			SET abandoned = TRUE, updated_at = NOW()
			WHERE id = $1 AND state <> 'closed' AND NOT abandoned
		`
		tag, err := tx.Exec(ctx, q, roomID)
		marked = tag.RowsAffected() > 0
		return err
	})
	return marked, err
}

func insertRecordTx(ctx context.Context, tx pgx.Tx, rec HistoryRecord) error {
	if !rec.Valid() {
		return fmt.Errorf("malformed history record of kind %q", rec.Kind)
	}
	switch rec.Kind {
	case KindMessage:
		m := rec.Message
		q := `
			INSERT INTO chat_messages (id, room_id, user_id, display_name, text, sent_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`
		_, err := tx.Exec(ctx, q, m.ID, m.RoomID, m.UserID, m.DisplayName, m.Text, m.Timestamp)
		return err

	case KindSnapshot:
		snap := rec.Snapshot
		payload, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		// A snapshot older than the stored one is dropped.
		q := `
			INSERT INTO rooms (id, name, departure, destination, state, seq, snapshot, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id)
			DO UPDATE SET state = EXCLUDED.state, seq = EXCLUDED.seq, snapshot = EXCLUDED.snapshot, updated_at = NOW()
			WHERE rooms.seq <= EXCLUDED.seq
		`
		_, err = tx.Exec(ctx, q,
			snap.ID, snap.Name, snap.Route.Departure, snap.Route.Destination,
			snap.State.String(), int64(snap.Seq), payload, snap.CreatedAt,
		)
		return err
	}
	return nil
}
