// internal/room/fakes_test.go
package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// recordingGateway collects published events instead of sending them over WS.
type recordingGateway struct {
	mu     sync.Mutex
	events []Event
	subs   map[uuid.UUID]Subscriber
	drops  int
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{subs: make(map[uuid.UUID]Subscriber)}
}

func (g *recordingGateway) Subscribe(_, userID uuid.UUID, sub Subscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs[userID] = sub
}

func (g *recordingGateway) Unsubscribe(_, userID uuid.UUID, sub Subscriber) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.subs[userID] != sub {
		return false
	}
	delete(g.subs, userID)
	return true
}

func (g *recordingGateway) Publish(_ uuid.UUID, ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, ev)
}

func (g *recordingGateway) DropRoom(uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drops++
	g.subs = make(map[uuid.UUID]Subscriber)
}

func (g *recordingGateway) all() []Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Event(nil), g.events...)
}

func (g *recordingGateway) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range g.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (g *recordingGateway) count(t EventType) int { return len(g.ofType(t)) }

func (g *recordingGateway) subscribed(userID uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.subs[userID]
	return ok
}

// chanSub is a session stand-in that keeps everything it is sent.
type chanSub struct {
	mu     sync.Mutex
	events []Event
}

func (s *chanSub) Send(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return true
}

func (s *chanSub) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// staticIdentity resolves every user to a generated name.
type staticIdentity struct {
	mu      sync.Mutex
	known   map[uuid.UUID]Identity
	lookups int
}

func newStaticIdentity() *staticIdentity {
	return &staticIdentity{known: make(map[uuid.UUID]Identity)}
}

func (s *staticIdentity) add(name, link string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.known[id] = Identity{UserID: id, DisplayName: name, PaymentLinkBase: link}
	return id
}

func (s *staticIdentity) LookupUser(_ context.Context, userID uuid.UUID) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	id, ok := s.known[userID]
	if !ok {
		return Identity{}, ErrUserNotFound
	}
	return id, nil
}

// memoryRecords keeps appended messages and snapshots.
type memoryRecords struct {
	mu        sync.Mutex
	messages  []ChatMessage
	snapshots []Snapshot
	failWith  error
}

func (m *memoryRecords) AppendMessage(_ context.Context, msg ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memoryRecords) PersistRoomSnapshot(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *memoryRecords) messageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func (m *memoryRecords) lastSnapshot() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snapshots) == 0 {
		return Snapshot{}, false
	}
	return m.snapshots[len(m.snapshots)-1], true
}

type harness struct {
	room     *Room
	gateway  *recordingGateway
	identity *staticIdentity
	records  *memoryRecords
	logs     *test.Hook
}

// testOptions keeps the countdown fast enough for unit tests.
func testOptions() Options {
	opts := DefaultOptions()
	opts.CountdownTick = 5 * time.Millisecond
	opts.SettleDelay = 0
	opts.CollaboratorTimeout = 100 * time.Millisecond
	opts.CollaboratorRetries = -1
	return opts
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	h := &harness{
		gateway:  newRecordingGateway(),
		identity: newStaticIdentity(),
		records:  &memoryRecords{},
		logs:     hook,
	}
	h.room = New(uuid.New(), Route{Departure: "Station", Destination: "Campus"}, nil, opts, Deps{
		Identity: h.identity,
		Records:  h.records,
		Gateway:  h.gateway,
		Log:      logrus.NewEntry(logger),
	})
	t.Cleanup(h.room.Shutdown)
	return h
}

// riders registers n identities and returns their ids in order.
func (h *harness) riders(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = h.identity.add("rider"+string(rune('A'+i)), "https://pay.example/send/")
	}
	return ids
}

// gatedRecords blocks the first call of the gated kind until release is closed.
type gatedRecords struct {
	memoryRecords
	gateMessages bool
	once         sync.Once
	entered      chan struct{}
	release      chan struct{}
}

func newGatedRecords(gateMessages bool) *gatedRecords {
	return &gatedRecords{gateMessages: gateMessages, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedRecords) wait() {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
}

func (g *gatedRecords) AppendMessage(ctx context.Context, msg ChatMessage) error {
	if g.gateMessages {
		g.wait()
	}
	return g.memoryRecords.AppendMessage(ctx, msg)
}

func (g *gatedRecords) PersistRoomSnapshot(ctx context.Context, snap Snapshot) error {
	if !g.gateMessages {
		g.wait()
	}
	return g.memoryRecords.PersistRoomSnapshot(ctx, snap)
}

func (m *memoryRecords) snapshotStates() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, len(m.snapshots))
	for i, s := range m.snapshots {
		out[i] = s.State
	}
	return out
}
