// internal/historian/historian.go
package historian

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/carpool/internal/database"
	"github.com/jason-s-yu/carpool/internal/room"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrMalformedRecord is returned by a Source for a payload that cannot be decoded.
var ErrMalformedRecord = errors.New("malformed history record")

// Source yields queued history records.
type Source interface {
	Pop(ctx context.Context) (database.HistoryRecord, bool, error)
}

// Sink persists batches and flags idle rooms.
type Sink interface {
	WriteBatch(ctx context.Context, records []database.HistoryRecord) error
	MarkAbandoned(ctx context.Context, roomID uuid.UUID) (bool, error)
}

type Options struct {
	BatchSize int
	// FlushEvery bounds how long a partial batch waits.
	FlushEvery time.Duration
	// RoomIdle is the silence after which an unclosed room is marked abandoned.
	RoomIdle time.Duration
	// SweepEvery is how often idle rooms are checked. Defaults to one minute.
	SweepEvery time.Duration
	// MaxPending caps records kept across failed flushes; the oldest go first.
	MaxPending int
}

// Service drains the history queue into Postgres in batches.
type Service struct {
	source Source
	sink   Sink
	opts   Options
	log    *logrus.Entry
	now    func() time.Time

	batchMu sync.Mutex
	batch   []database.HistoryRecord

	lastActivity sync.Map // map[uuid.UUID]time.Time
}

func New(source Source, sink Sink, opts Options, log *logrus.Entry) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = 500 * time.Millisecond
	}
	if opts.SweepEvery <= 0 {
		opts.SweepEvery = time.Minute
	}
	if opts.MaxPending < opts.BatchSize {
		opts.MaxPending = 50 * opts.BatchSize
	}
	return &Service{
		source: source,
		sink:   sink,
		opts:   opts,
		log:    log,
		now:    time.Now,
		batch:  make([]database.HistoryRecord, 0, opts.BatchSize),
	}
}

// Run blocks until ctx is cancelled, then flushes whatever is still buffered.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("historian started")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { s.readLoop(gctx); return nil })
	g.Go(func() error { s.flushLoop(gctx); return nil })
	if s.opts.RoomIdle > 0 {
		g.Go(func() error { s.inactivityLoop(gctx); return nil })
	}
	err := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Flush(flushCtx)
	s.log.Info("historian stopped")
	return err
}

func (s *Service) readLoop(ctx context.Context) {
	for ctx.Err() == nil {
		rec, ok, err := s.source.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.WithError(err).Error("queue pop failed")
			if !errors.Is(err, ErrMalformedRecord) {
				sleepCtx(ctx, s.opts.FlushEvery)
			}
			continue
		}
		if ok {
			s.Accept(ctx, rec)
		}
	}
}

func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.FlushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

// Accept buffers rec and flushes once the batch is full. Records without a
// payload are dropped here so they can never wedge a batch.
func (s *Service) Accept(ctx context.Context, rec database.HistoryRecord) {
	if !rec.Valid() {
		s.log.WithField("kind", rec.Kind).Warn("dropping malformed history record")
		return
	}
	if id := rec.RoomID(); id != uuid.Nil {
		if rec.Snapshot != nil && rec.Snapshot.State == room.StateClosed {
			s.lastActivity.Delete(id)
		} else {
			s.lastActivity.Store(id, s.now())
		}
	}

	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.batch = append(s.batch, rec)
	if len(s.batch) >= s.opts.BatchSize {
		s.flushLocked(ctx)
	}
}

// Flush writes any buffered records.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.flushLocked(ctx)
}

func (s *Service) flushLocked(ctx context.Context) {
	if len(s.batch) == 0 {
		return
	}
	batch := make([]database.HistoryRecord, len(s.batch))
	copy(batch, s.batch)
	s.batch = s.batch[:0]

	if err := s.sink.WriteBatch(ctx, batch); err != nil {
		s.log.WithError(err).WithField("records", len(batch)).Error("failed to flush history batch, keeping it for the next flush")
		s.batch = append(batch, s.batch...)
		if over := len(s.batch) - s.opts.MaxPending; over > 0 {
			s.log.WithField("records", over).Error("history backlog full, dropping oldest records")
			s.batch = s.batch[over:]
		}
		return
	}
	s.log.WithField("records", len(batch)).Debug("flushed history batch")
}

func (s *Service) inactivityLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep marks rooms idle for longer than RoomIdle as abandoned.
func (s *Service) Sweep(ctx context.Context) {
	now := s.now()
	s.lastActivity.Range(func(key, val any) bool {
		roomID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= s.opts.RoomIdle {
			return true
		}
		// Pending records for the room must land before the flag.
		s.Flush(ctx)
		marked, err := s.sink.MarkAbandoned(ctx, roomID)
		if err != nil {
			s.log.WithError(err).WithField("room_id", roomID).Error("failed to mark room abandoned")
			return true
		}
		s.lastActivity.Delete(roomID)
		if marked {
			s.log.WithField("room_id", roomID).Info("marked room abandoned after inactivity")
		}
		return true
	})
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
