package internal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// subscriber is one attached connection from the room's point of view. The
// engine only needs a stable id and a non-blocking send; the websocket
// client implements this, and tests swap in fakes so the whole fan-out
// path runs without a live socket.
type subscriber interface {
	ID() string
	trySend(payload []byte) bool
	closeSend()
}

// member tracks per-connection join state. A connection starts unjoined,
// becomes joined when the room admits it, and goes back to unjoined on a
// manual leave.
type member struct {
	user *User
}

type intentKind int

const (
	attachIntent intentKind = iota
	detachIntent
	joinIntent
	rejoinIntent
	messageIntent
	fileMessageIntent
	typingIntent
	leaveIntent
	pruneIntent
	snapshotIntent
)

type intent struct {
	kind intentKind
	sub  subscriber

	displayName string
	sessionID   string
	content     string
	file        *FileRef
	typing      bool
	cutoff      time.Time

	replyInt  chan int
	replySnap chan RoomSnapshot
}

// RoomSnapshot is a consistent read of the room taken inside the event
// loop, used by tests and the stats endpoint.
type RoomSnapshot struct {
	Users    []User
	Typing   []string
	Messages int
}

// Room owns the State and fans events out to subscribers. All intents are
// funneled through a single event loop, so each one is handled to
// completion before the next: no locks, no partial application, at-most-
// once delivery. Subscribers that cannot keep up are dropped.
type Room struct {
	state   *State
	metrics *Metrics
	now     func() time.Time

	subs    map[subscriber]*member
	intents chan intent

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRoom wires a room around the given store. Call Run in a goroutine and
// Close when shutting down.
func NewRoom(state *State, metrics *Metrics) *Room {
	return &Room{
		state:   state,
		metrics: metrics,
		now:     time.Now,
		subs:    make(map[subscriber]*member),
		intents: make(chan intent, 64),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run processes intents until Close is called.
func (r *Room) Run() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case in := <-r.intents:
			r.handle(in)
		}
	}
}

// Close stops the event loop. Pending submitters are released.
func (r *Room) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Room) submit(in intent) {
	select {
	case r.intents <- in:
	case <-r.done:
	}
}

func (r *Room) attach(sub subscriber)  { r.submit(intent{kind: attachIntent, sub: sub}) }
func (r *Room) detach(sub subscriber)  { r.submit(intent{kind: detachIntent, sub: sub}) }
func (r *Room) leave(sub subscriber)   { r.submit(intent{kind: leaveIntent, sub: sub}) }
func (r *Room) join(sub subscriber, name string) {
	r.submit(intent{kind: joinIntent, sub: sub, displayName: name})
}

func (r *Room) rejoin(sub subscriber, sessionID, name string) {
	r.submit(intent{kind: rejoinIntent, sub: sub, sessionID: sessionID, displayName: name})
}

func (r *Room) sendText(sub subscriber, content string) {
	r.submit(intent{kind: messageIntent, sub: sub, content: content})
}

func (r *Room) sendFile(sub subscriber, file FileRef) {
	r.submit(intent{kind: fileMessageIntent, sub: sub, file: &file})
}

func (r *Room) setTyping(sub subscriber, typing bool) {
	r.submit(intent{kind: typingIntent, sub: sub, typing: typing})
}

// PruneMessages runs a retention prune through the event loop so the sweep
// never races the single writer. Returns the number of dropped messages.
func (r *Room) PruneMessages(cutoff time.Time) int {
	reply := make(chan int, 1)
	r.submit(intent{kind: pruneIntent, cutoff: cutoff, replyInt: reply})
	select {
	case n := <-reply:
		return n
	case <-r.done:
		return 0
	}
}

// Snapshot reads the room state from inside the loop.
func (r *Room) Snapshot() RoomSnapshot {
	reply := make(chan RoomSnapshot, 1)
	r.submit(intent{kind: snapshotIntent, replySnap: reply})
	select {
	case snap := <-reply:
		return snap
	case <-r.done:
		return RoomSnapshot{}
	}
}

func (r *Room) handle(in intent) {
	switch in.kind {
	case attachIntent:
		r.subs[in.sub] = &member{}
		r.metrics.ConnectedClients.Inc()
	case detachIntent:
		r.removeMember(in.sub, true)
	case joinIntent:
		r.handleJoin(in, false)
	case rejoinIntent:
		r.handleJoin(in, true)
	case messageIntent:
		if m := r.joinedMember(in.sub); m != nil {
			r.appendAndBroadcast(Message{
				ID:          uuid.NewString(),
				UserID:      m.user.ID,
				DisplayName: m.user.DisplayName,
				Timestamp:   r.now(),
				Type:        MessageTypeText,
				Content:     in.content,
			})
		}
	case fileMessageIntent:
		if m := r.joinedMember(in.sub); m != nil {
			r.appendAndBroadcast(Message{
				ID:          uuid.NewString(),
				UserID:      m.user.ID,
				DisplayName: m.user.DisplayName,
				Timestamp:   r.now(),
				Type:        MessageTypeFile,
				File:        in.file,
			})
		}
	case typingIntent:
		if m := r.joinedMember(in.sub); m != nil {
			r.state.SetTyping(m.user.DisplayName, in.typing)
			r.broadcast(in.sub, mustEncodeEvent(EventTypingUpdate, r.state.TypingNames()))
		}
	case leaveIntent:
		r.removeMember(in.sub, false)
	case pruneIntent:
		n := r.state.PruneMessages(in.cutoff)
		r.metrics.MessagesPrunedTotal.Add(float64(n))
		in.replyInt <- n
	case snapshotIntent:
		in.replySnap <- RoomSnapshot{
			Users:    r.state.Users(),
			Typing:   r.state.TypingNames(),
			Messages: r.state.MessageCount(),
		}
	}
}

func (r *Room) joinedMember(sub subscriber) *member {
	m, ok := r.subs[sub]
	if !ok || m.user == nil {
		return nil
	}
	return m
}

func (r *Room) handleJoin(in intent, rejoin bool) {
	m, ok := r.subs[in.sub]
	if !ok || m.user != nil {
		return
	}
	name, err := NormalizeDisplayName(in.displayName)
	if err != nil || (rejoin && in.sessionID == "") {
		// Validation failures answer the requester only; nothing changed
		// and the other members hear nothing.
		if rejoin {
			in.sub.trySend(mustEncodeEvent(EventRejoinFailed, nil))
		} else {
			in.sub.trySend(mustEncodeEvent(EventJoinFailed, nil))
		}
		return
	}

	user := User{ID: in.sub.ID(), DisplayName: name, JoinedAt: r.now()}
	if err := r.state.AddUser(user); err != nil {
		// Room full: reply to the requester only, nothing changed and the
		// existing members hear nothing.
		in.sub.trySend(mustEncodeEvent(EventRoomFull, nil))
		r.metrics.JoinsRejectedTotal.Inc()
		return
	}
	m.user = &user

	replyEvent := EventJoinSuccess
	if rejoin {
		replyEvent = EventRejoinSuccess
	}
	in.sub.trySend(mustEncodeEvent(replyEvent, JoinReply{
		User:     user,
		Messages: r.state.RecentMessages(r.now()),
	}))
	r.broadcast(in.sub, mustEncodeEvent(EventUserJoined, user))
	r.broadcast(nil, mustEncodeEvent(EventUsersUpdate, r.state.Users()))
	slog.Info("user_joined", "displayName", name, "rejoin", rejoin, "members", r.state.Size())
}

func (r *Room) appendAndBroadcast(msg Message) {
	r.state.AppendMessage(msg)
	r.metrics.MessagesTotal.WithLabelValues(msg.Type).Inc()
	r.broadcast(nil, mustEncodeEvent(EventMessage, msg))
}

// removeMember handles both a manual leave (connection stays attached,
// back to unjoined) and a detach (connection gone). The member removal and
// the typing-set removal happen in the same step, so no observer ever sees
// a departed user still marked as typing.
func (r *Room) removeMember(sub subscriber, detach bool) {
	m, ok := r.subs[sub]
	if !ok {
		return
	}
	var left *User
	if m.user != nil {
		if u, removed := r.state.RemoveUser(m.user.ID); removed {
			left = &u
		}
		m.user = nil
	}
	if detach {
		delete(r.subs, sub)
		sub.closeSend()
		r.metrics.ConnectedClients.Dec()
	}
	if left != nil {
		r.broadcast(sub, mustEncodeEvent(EventUserLeft, *left))
		r.broadcast(nil, mustEncodeEvent(EventUsersUpdate, r.state.Users()))
		r.broadcast(nil, mustEncodeEvent(EventTypingUpdate, r.state.TypingNames()))
		slog.Info("user_left", "displayName", left.DisplayName, "members", r.state.Size())
	}
}

// broadcast fans a payload out to every subscriber except the given one.
// A subscriber whose send buffer is full is removed rather than letting it
// back-pressure the room.
func (r *Room) broadcast(except subscriber, payload []byte) {
	var dropped []subscriber
	for sub := range r.subs {
		if sub == except {
			continue
		}
		if !sub.trySend(payload) {
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		slog.Warn("subscriber_dropped", "id", sub.ID())
		r.removeMember(sub, true)
	}
}
