// internal/room/room.go
package room

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Deps are the collaborators a room calls out to.
type Deps struct {
	Identity IdentityProvider
	Records  RecordStore
	Gateway  Gateway
	Log      *logrus.Entry
}

// Room owns one carpool room. Every read and write of its state happens under mu,
// so operations against one room never interleave while different rooms proceed
// in parallel. Collaborator calls are made with the lock released.
type Room struct {
	ID            uuid.UUID
	Name          string
	Route         Route
	DepartureTime *time.Time
	CreatedAt     time.Time

	// OnDestroy is called once, outside the lock, after the room empties out or closes.
	// Typically assigned by the RoomStore to drop its index entry.
	OnDestroy func(roomID uuid.UUID)

	mu        sync.Mutex
	opts      Options
	deps      Deps
	log       *logrus.Entry
	state     State
	members   *Membership
	final     []Participant
	sessions  map[uuid.UUID]Subscriber
	countdown countdown
	settle    *Settlement
	exited    []uuid.UUID
	lastChat  map[uuid.UUID]ChatMessage
	seq       uint64
	active    time.Time
	destroyed bool
	deferred  []func()

	// persistMu orders snapshot writes; persistedSeq is the newest one attempted.
	persistMu    sync.Mutex
	persistedSeq uint64
}

// New builds an open room. opts is expected to have passed Validate.
func New(id uuid.UUID, route Route, departure *time.Time, opts Options, deps Deps) *Room {
	opts = opts.withDefaults()
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	now := time.Now()
	return &Room{
		ID:            id,
		Name:          route.String(),
		Route:         route,
		DepartureTime: departure,
		CreatedAt:     now,
		active:        now,
		opts:          opts,
		deps:          deps,
		log:           log.WithField("room_id", id),
		state:         StateOpen,
		members:       NewMembership(opts.CapacityMax),
		sessions:      make(map[uuid.UUID]Subscriber),
		countdown:     newCountdown(opts.CountdownWindow),
		lastChat:      make(map[uuid.UUID]ChatMessage),
	}
}

// unlock releases mu and then runs work queued with afterUnlock.
func (r *Room) unlock() {
	deferred := r.deferred
	r.deferred = nil
	r.mu.Unlock()
	for _, fn := range deferred {
		fn()
	}
}

// afterUnlock queues fn to run once the lock is released. Assumes lock is held.
func (r *Room) afterUnlock(fn func()) {
	r.deferred = append(r.deferred, fn)
}

// publishUnsafe stamps and fans out ev. Publishing under the lock keeps the
// delivery order equal to the order operations were applied.
func (r *Room) publishUnsafe(ev Event) {
	r.seq++
	ev.RoomID = r.ID
	ev.Seq = r.seq
	ev.At = time.Now()
	if ev.Type != EventCountdownTick {
		r.active = ev.At
	}
	if r.deps.Gateway != nil {
		r.deps.Gateway.Publish(r.ID, ev)
	}
}

// Snapshot returns a consistent copy of the room.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.unlock()
	return r.snapshotUnsafe()
}

// State reports the lifecycle stage.
func (r *Room) State() State {
	r.mu.Lock()
	defer r.unlock()
	return r.state
}

// Destroyed reports whether the room has been torn down.
func (r *Room) Destroyed() bool {
	r.mu.Lock()
	defer r.unlock()
	return r.destroyed
}

func (r *Room) snapshotUnsafe() Snapshot {
	snap := Snapshot{
		ID:                 r.ID,
		Seq:                r.seq,
		Name:               r.Name,
		Route:              r.Route,
		DepartureTime:      r.DepartureTime,
		State:              r.state,
		Participants:       r.members.List(),
		CapacityMin:        r.opts.CapacityMin,
		CapacityMax:        r.opts.CapacityMax,
		CreatedAt:          r.CreatedAt,
		CountdownRemaining: r.countdown.remaining,
		CountdownRunning:   r.countdown.running(),
	}
	if r.final != nil {
		snap.FinalParticipants = append([]Participant(nil), r.final...)
	}
	if r.settle != nil {
		s := *r.settle
		snap.Settlement = &s
	}
	if len(r.exited) > 0 {
		snap.Exited = append([]uuid.UUID(nil), r.exited...)
	}
	return snap
}

// lookupIdentity resolves userID without holding the lock.
func (r *Room) lookupIdentity(ctx context.Context, userID uuid.UUID) (Identity, error) {
	if r.deps.Identity == nil {
		return Identity{UserID: userID}, nil
	}
	var id Identity
	err := r.opts.retry().call(ctx, ErrUserNotFound, func(ctx context.Context) error {
		var err error
		id, err = r.deps.Identity.LookupUser(ctx, userID)
		return err
	})
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, ErrUserNotFound):
		return Identity{}, newError(ErrNotFound, "user %s not found", userID)
	default:
		r.log.WithError(err).WithField("user_id", userID).Warn("identity lookup failed")
		return Identity{}, unavailable("identity lookup", err)
	}
}

// persistSnapshot writes an audit snapshot. Failures are logged, never surfaced:
// the in-memory room is authoritative. Writes happen one at a time per room and a
// snapshot older than one already written is skipped.
func (r *Room) persistSnapshot(snap Snapshot) {
	if r.deps.Records == nil {
		return
	}
	r.persistMu.Lock()
	defer r.persistMu.Unlock()
	if snap.Seq < r.persistedSeq {
		r.log.WithField("seq", snap.Seq).Debug("skipping superseded room snapshot")
		return
	}
	r.persistedSeq = snap.Seq
	err := r.opts.retry().call(context.Background(), nil, func(ctx context.Context) error {
		return r.deps.Records.PersistRoomSnapshot(ctx, snap)
	})
	if err != nil {
		r.log.WithError(err).WithField("state", snap.State).Error("failed to persist room snapshot")
	}
}

// queuePersistUnsafe schedules a snapshot write for after the lock is released.
func (r *Room) queuePersistUnsafe() {
	snap := r.snapshotUnsafe()
	r.afterUnlock(func() { r.persistSnapshot(snap) })
}

// attachUnsafe registers sub as the live session of userID. The session receives
// a private room_state before any room-wide event. Assumes lock is held.
func (r *Room) attachUnsafe(userID uuid.UUID, sub Subscriber) {
	if sub == nil {
		return
	}
	if old, ok := r.sessions[userID]; ok && old != sub && r.deps.Gateway != nil {
		r.deps.Gateway.Unsubscribe(r.ID, userID, old)
	}
	r.sessions[userID] = sub
	r.members.SetReady(userID, true)
	r.active = time.Now()

	snap := r.snapshotUnsafe()
	sub.Send(Event{
		Type:     EventRoomState,
		RoomID:   r.ID,
		Seq:      r.seq,
		At:       time.Now(),
		Snapshot: &snap,
	})
	if r.deps.Gateway != nil {
		r.deps.Gateway.Subscribe(r.ID, userID, sub)
	}
}

// detachUnsafe drops the live session of userID. Assumes lock is held.
func (r *Room) detachUnsafe(userID uuid.UUID) {
	sub, ok := r.sessions[userID]
	if !ok {
		return
	}
	delete(r.sessions, userID)
	r.members.SetReady(userID, false)
	if r.deps.Gateway != nil {
		r.deps.Gateway.Unsubscribe(r.ID, userID, sub)
	}
}

// afterMembershipChangeUnsafe re-runs election and the countdown policy.
// Assumes lock is held and the room is open.
func (r *Room) afterMembershipChangeUnsafe() {
	change := reelect(r.members)
	if change.Changed() && change.Current != uuid.Nil && !r.state.RosterFrozen() {
		leader, _ := r.members.Get(change.Current)
		r.log.WithField("user_id", change.Current).Info("leader changed")
		r.publishUnsafe(Event{Type: EventLeaderChanged, User: eventUser(leader)})
	}
	r.evaluateCountdownUnsafe()
}

// Join adds userID to the room, or attaches a new session for an existing member.
// sub may be nil to reserve a seat without a live session.
func (r *Room) Join(ctx context.Context, userID uuid.UUID, sub Subscriber) (Snapshot, error) {
	identity, err := r.lookupIdentity(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}

	r.mu.Lock()
	defer r.unlock()

	if r.destroyed {
		return Snapshot{}, newError(ErrNotFound, "room %s no longer exists", r.ID)
	}
	entry := r.log.WithField("user_id", userID)

	if r.members.Contains(userID) {
		_, live := r.sessions[userID]
		if !live || sub == nil {
			r.attachUnsafe(userID, sub)
			return r.snapshotUnsafe(), nil
		}
		switch r.opts.Reconnect {
		case ReconnectReject:
			return Snapshot{}, ErrAlreadyMember
		case ReconnectFresh:
			if !r.state.RosterFrozen() {
				entry.Info("rejoining as a fresh participant")
				r.detachUnsafe(userID)
				left, _ := r.members.Remove(userID)
				r.publishUnsafe(Event{Type: EventParticipantLeft, User: eventUser(left), Participants: r.members.List()})
				r.afterMembershipChangeUnsafe()
				return r.addUnsafe(identity, userID, sub)
			}
		}
		entry.Debug("resuming session")
		r.attachUnsafe(userID, sub)
		return r.snapshotUnsafe(), nil
	}

	if !r.state.AcceptsJoins() {
		return Snapshot{}, newError(ErrRecruitmentClosed, "room %s is %s", r.ID, r.state)
	}
	return r.addUnsafe(identity, userID, sub)
}

func (r *Room) addUnsafe(identity Identity, userID uuid.UUID, sub Subscriber) (Snapshot, error) {
	name := identity.DisplayName
	if name == "" {
		name = "rider-" + userID.String()[:4]
	}
	p, err := r.members.Add(userID, name)
	if err != nil {
		return Snapshot{}, err
	}
	r.log.WithFields(logrus.Fields{"user_id": userID, "participants": r.members.Count()}).Info("participant joined")

	r.attachUnsafe(userID, sub)
	p, _ = r.members.Get(p.UserID)
	r.publishUnsafe(Event{Type: EventParticipantJoined, User: eventUser(p), Participants: r.members.List()})
	r.afterMembershipChangeUnsafe()
	return r.snapshotUnsafe(), nil
}

// Leave removes userID. sub identifies the departing session; a session that was
// already replaced by a reconnect only unsubscribes itself. Once recruitment is
// complete the roster is frozen and leaving only detaches the session.
// Leaving twice is a no-op.
func (r *Room) Leave(ctx context.Context, userID uuid.UUID, sub Subscriber) (Snapshot, error) {
	r.mu.Lock()
	defer r.unlock()

	if r.destroyed {
		return Snapshot{}, newError(ErrNotFound, "room %s no longer exists", r.ID)
	}
	if sub != nil {
		if current, ok := r.sessions[userID]; !ok || current != sub {
			if r.deps.Gateway != nil {
				r.deps.Gateway.Unsubscribe(r.ID, userID, sub)
			}
			if ok || !r.members.Contains(userID) || r.state.RosterFrozen() {
				return r.snapshotUnsafe(), nil
			}
		}
	}
	if !r.members.Contains(userID) {
		return r.snapshotUnsafe(), nil
	}

	r.detachUnsafe(userID)
	if r.state.RosterFrozen() {
		r.log.WithField("user_id", userID).Debug("session detached from frozen roster")
		return r.snapshotUnsafe(), nil
	}

	left, _ := r.members.Remove(userID)
	delete(r.lastChat, userID)
	r.log.WithFields(logrus.Fields{"user_id": userID, "participants": r.members.Count()}).Info("participant left")
	r.publishUnsafe(Event{Type: EventParticipantLeft, User: eventUser(left), Participants: r.members.List()})

	if r.members.Count() == 0 {
		r.destroyUnsafe("empty")
		return r.snapshotUnsafe(), nil
	}
	r.afterMembershipChangeUnsafe()
	return r.snapshotUnsafe(), nil
}

// SendMessage records text and broadcasts it. A message identical to the sender's
// previous one inside DuplicateWindow is dropped and the earlier message returned.
// The message is held as the sender's last chat while it is being recorded, so a
// concurrent identical send collapses onto it.
func (r *Room) SendMessage(ctx context.Context, userID uuid.UUID, text string) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, newError(ErrInvalidRequest, "message text is empty")
	}

	r.mu.Lock()
	if r.destroyed {
		r.unlock()
		return ChatMessage{}, newError(ErrNotFound, "room %s no longer exists", r.ID)
	}
	sender, ok := r.members.Get(userID)
	if !ok {
		r.unlock()
		return ChatMessage{}, newError(ErrNotFound, "user %s is not in room %s", userID, r.ID)
	}
	now := time.Now()
	prev, hadPrev := r.lastChat[userID]
	if hadPrev && prev.Text == text && now.Sub(prev.Timestamp) < r.opts.DuplicateWindow {
		r.unlock()
		return prev, nil
	}
	msg := ChatMessage{
		ID:          uuid.New(),
		RoomID:      r.ID,
		UserID:      userID,
		DisplayName: sender.DisplayName,
		Text:        text,
		Timestamp:   now,
	}
	r.lastChat[userID] = msg
	r.unlock()

	var recordErr error
	if r.deps.Records != nil {
		recordErr = r.opts.retry().call(ctx, nil, func(ctx context.Context) error {
			return r.deps.Records.AppendMessage(ctx, msg)
		})
	}

	r.mu.Lock()
	defer r.unlock()
	pending, still := r.lastChat[userID]
	still = still && pending.ID == msg.ID
	if recordErr != nil {
		if still {
			if hadPrev {
				r.lastChat[userID] = prev
			} else {
				delete(r.lastChat, userID)
			}
		}
		r.log.WithError(recordErr).WithField("user_id", userID).Warn("failed to record chat message")
		return ChatMessage{}, unavailable("append message", recordErr)
	}
	if r.destroyed {
		return ChatMessage{}, newError(ErrNotFound, "room %s no longer exists", r.ID)
	}
	// The sender may have left, or left and rejoined, while unlocked.
	if current, ok := r.members.Get(userID); !ok || !current.JoinedAt.Equal(sender.JoinedAt) {
		return ChatMessage{}, newError(ErrNotFound, "user %s is not in room %s", userID, r.ID)
	}
	r.publishUnsafe(Event{Type: EventChatMessage, Message: &msg})
	return msg, nil
}

// RequestCompleteRecruitment lets the leader close recruitment early.
func (r *Room) RequestCompleteRecruitment(ctx context.Context, userID uuid.UUID) (Snapshot, error) {
	r.mu.Lock()
	defer r.unlock()

	if err := CheckTransition(r.state, StateRecruitmentComplete); err != nil {
		return Snapshot{}, err
	}
	if r.destroyed {
		return Snapshot{}, newError(ErrNotFound, "room %s no longer exists", r.ID)
	}
	if r.members.LeaderID() != userID {
		return Snapshot{}, ErrNotLeader
	}
	if n, q := r.members.Count(), r.opts.Quorum(); n < q {
		return Snapshot{}, newError(ErrInsufficientParticipants, "need %d participants, have %d", q, n)
	}
	r.log.WithField("user_id", userID).Info("leader completed recruitment")
	r.completeRecruitmentUnsafe()
	return r.snapshotUnsafe(), nil
}

// completeRecruitmentUnsafe freezes the roster. A second call is a no-op.
// Assumes lock is held.
func (r *Room) completeRecruitmentUnsafe() {
	if r.state != StateOpen || r.final != nil {
		return
	}
	r.cancelCountdownUnsafe()
	r.final = r.members.List()
	r.state = StateRecruitmentComplete
	r.publishUnsafe(Event{Type: EventRecruitmentComplete, Participants: append([]Participant(nil), r.final...)})
	r.queuePersistUnsafe()
}

// RequestSettlement splits totalAmount between the final participants and builds
// the requester's payment link. A room settles once; later requests fail with
// ErrAlreadySettled alongside a snapshot carrying the original settlement.
func (r *Room) RequestSettlement(ctx context.Context, userID uuid.UUID, totalAmount int64) (Snapshot, error) {
	if totalAmount <= 0 {
		return Snapshot{}, newError(ErrInvalidRequest, "total amount must be positive, got %d", totalAmount)
	}
	if snap, err := r.checkSettleable(userID); err != nil {
		return snap, err
	}

	identity, err := r.lookupIdentity(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}

	r.mu.Lock()
	defer r.unlock()
	// Another request may have settled the room while the lock was released.
	if snap, err := r.checkSettleableUnsafe(userID); err != nil {
		return snap, err
	}

	perPerson, amountHex, err := SplitAmount(totalAmount, len(r.final))
	if err != nil {
		return Snapshot{}, err
	}
	r.settle = &Settlement{
		TotalAmount:      totalAmount,
		ParticipantCount: len(r.final),
		PerPersonAmount:  perPerson,
		AmountHex:        amountHex,
		Deeplink:         BuildDeeplink(identity.PaymentLinkBase, amountHex),
		RequestedBy:      userID,
		SettledAt:        time.Now(),
	}
	r.state = StateSettled
	r.log.WithFields(logrus.Fields{"user_id": userID, "per_person": perPerson}).Info("room settled")

	s := *r.settle
	r.publishUnsafe(Event{Type: EventSettlementComplete, Settlement: &s})
	r.queuePersistUnsafe()
	return r.snapshotUnsafe(), nil
}

func (r *Room) checkSettleable(userID uuid.UUID) (Snapshot, error) {
	r.mu.Lock()
	defer r.unlock()
	return r.checkSettleableUnsafe(userID)
}

func (r *Room) checkSettleableUnsafe(userID uuid.UUID) (Snapshot, error) {
	if r.state >= StateSettled {
		return r.snapshotUnsafe(), newError(ErrAlreadySettled, "room %s was settled at %s", r.ID, r.settle.SettledAt.Format(time.RFC3339))
	}
	if err := CheckTransition(r.state, StateSettled); err != nil {
		return Snapshot{}, err
	}
	if r.destroyed {
		return Snapshot{}, newError(ErrNotFound, "room %s no longer exists", r.ID)
	}
	if !r.isFinalUnsafe(userID) {
		return Snapshot{}, newError(ErrNotFound, "user %s is not a final participant", userID)
	}
	return Snapshot{}, nil
}

func (r *Room) isFinalUnsafe(userID uuid.UUID) bool {
	return lo.ContainsBy(r.final, func(p Participant) bool { return p.UserID == userID })
}

// RequestExit moves userID to post-ride review and returns who they can review.
// Repeating the call returns the same roster. The room closes after every final
// participant has exited.
func (r *Room) RequestExit(ctx context.Context, userID uuid.UUID) (ExitResult, error) {
	r.mu.Lock()
	defer r.unlock()

	alreadyExited := lo.Contains(r.exited, userID)
	switch {
	case r.state == StateClosed && alreadyExited:
		return r.exitResultUnsafe(userID), nil
	case r.state == StateClosed:
		return ExitResult{}, newError(ErrIllegalTransition, "room %s is already closed", r.ID)
	case r.state < StateSettled:
		return ExitResult{}, CheckTransition(r.state, StateClosed)
	case r.destroyed:
		return ExitResult{}, newError(ErrNotFound, "room %s no longer exists", r.ID)
	case !r.isFinalUnsafe(userID):
		return ExitResult{}, newError(ErrNotFound, "user %s is not a final participant", userID)
	}

	if !alreadyExited {
		r.exited = append(r.exited, userID)
		p, _ := lo.Find(r.final, func(p Participant) bool { return p.UserID == userID })
		r.log.WithField("user_id", userID).Info("participant exited to review")
		r.publishUnsafe(Event{Type: EventParticipantExited, User: eventUser(p)})
		r.detachUnsafe(userID)

		if len(r.exited) == len(r.final) {
			r.closeUnsafe()
		}
	}
	return r.exitResultUnsafe(userID), nil
}

func (r *Room) exitResultUnsafe(userID uuid.UUID) ExitResult {
	return ExitResult{
		Snapshot:           r.snapshotUnsafe(),
		ReviewParticipants: lo.Filter(r.final, func(p Participant, _ int) bool { return p.UserID != userID }),
	}
}

// Close is the administrative Settled -> Closed transition.
func (r *Room) Close(ctx context.Context) (Snapshot, error) {
	r.mu.Lock()
	defer r.unlock()

	if err := CheckTransition(r.state, StateClosed); err != nil {
		return Snapshot{}, err
	}
	r.closeUnsafe()
	return r.snapshotUnsafe(), nil
}

func (r *Room) closeUnsafe() {
	r.state = StateClosed
	r.log.Info("room closed")
	r.publishUnsafe(Event{Type: EventRoomClosed})
	r.destroyUnsafe("closed")
}

// Reap cleans up a room that finished recruiting and then saw no activity for
// idle. A settled room is closed; a room still waiting on settlement is torn down
// without a state change. Open rooms are never reaped. Reports what it did.
func (r *Room) Reap(now time.Time, idle time.Duration) (string, bool) {
	r.mu.Lock()
	defer r.unlock()

	if r.destroyed || now.Sub(r.active) < idle {
		return "", false
	}
	switch r.state {
	case StateSettled:
		r.log.WithField("idle", now.Sub(r.active).Round(time.Second)).Info("closing idle settled room")
		r.closeUnsafe()
		return "closed", true
	case StateRecruitmentComplete:
		r.destroyUnsafe("idle")
		return "expired", true
	}
	return "", false
}

// Shutdown tears the room down without changing its state. Used on server stop.
func (r *Room) Shutdown() {
	r.mu.Lock()
	defer r.unlock()
	r.destroyUnsafe("shutdown")
}

// destroyUnsafe cancels the countdown before releasing anything else, then drops
// sessions. OnDestroy and the final snapshot run after the lock is released.
// Assumes lock is held.
func (r *Room) destroyUnsafe(reason string) {
	if r.destroyed {
		return
	}
	r.cancelCountdownUnsafe()
	r.destroyed = true
	for userID := range r.sessions {
		delete(r.sessions, userID)
	}
	if r.deps.Gateway != nil {
		r.deps.Gateway.DropRoom(r.ID)
	}
	r.log.WithField("reason", reason).Info("room destroyed")

	r.queuePersistUnsafe()
	if onDestroy := r.OnDestroy; onDestroy != nil {
		id := r.ID
		r.afterUnlock(func() { onDestroy(id) })
	}
}
