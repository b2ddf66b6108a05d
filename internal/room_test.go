package internal

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// fakeSub stands in for a websocket client so the whole fan-out path runs
// without a live socket. Payloads are recorded; Room.Snapshot acts as the
// barrier that guarantees earlier intents were handled before we look.
type fakeSub struct {
	id string

	mu     sync.Mutex
	sent   [][]byte
	closed bool
	full   bool
}

func newFakeSub(id string) *fakeSub {
	return &fakeSub{id: id}
}

func (f *fakeSub) ID() string { return f.id }

func (f *fakeSub) trySend(payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return true
}

func (f *fakeSub) closeSend() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSub) events(t *testing.T) []Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, 0, len(f.sent))
	for _, payload := range f.sent {
		env, err := decodeEnvelope(payload)
		if err != nil {
			t.Fatalf("bad payload %q: %v", payload, err)
		}
		out = append(out, env)
	}
	return out
}

func (f *fakeSub) eventNames(t *testing.T) []string {
	t.Helper()
	envs := f.events(t)
	names := make([]string, len(envs))
	for i, env := range envs {
		names[i] = env.Event
	}
	return names
}

func (f *fakeSub) lastEvent(t *testing.T, name string) (Envelope, bool) {
	t.Helper()
	envs := f.events(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Event == name {
			return envs[i], true
		}
	}
	return Envelope{}, false
}

func startRoom(t *testing.T, capacity int) *Room {
	t.Helper()
	room := NewRoom(NewState(capacity, time.Hour), NewMetrics())
	go room.Run()
	t.Cleanup(room.Close)
	return room
}

func joinAs(t *testing.T, room *Room, sub *fakeSub, name string) {
	t.Helper()
	room.attach(sub)
	room.join(sub, name)
	room.Snapshot()
}

func TestRoomJoinAndBroadcast(t *testing.T) {
	room := startRoom(t, 4)

	alice := newFakeSub("conn-a")
	bob := newFakeSub("conn-b")

	joinAs(t, room, alice, "Alice")
	joinAs(t, room, bob, "Bob")

	// Alice sends "hi"; both members see the same broadcast, sender included.
	room.sendText(alice, "hi")
	snap := room.Snapshot()
	if snap.Messages != 1 {
		t.Fatalf("expected 1 message in history, got %d", snap.Messages)
	}

	for _, sub := range []*fakeSub{alice, bob} {
		env, ok := sub.lastEvent(t, EventMessage)
		if !ok {
			t.Fatalf("%s never received the message", sub.id)
		}
		var msg Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Content != "hi" || msg.DisplayName != "Alice" || msg.Type != MessageTypeText {
			t.Errorf("unexpected message for %s: %+v", sub.id, msg)
		}
		if msg.ID == "" || msg.UserID == "" {
			t.Errorf("message missing ids: %+v", msg)
		}
	}

	// Bob heard about Alice only through user-joined; Alice got her reply
	// plus Bob's arrival.
	if _, ok := bob.lastEvent(t, EventJoinSuccess); !ok {
		t.Error("Bob never got his join reply")
	}
	if _, ok := alice.lastEvent(t, EventUserJoined); !ok {
		t.Error("Alice never heard that Bob joined")
	}
	for _, env := range bob.events(t) {
		if env.Event == EventUserJoined {
			var u User
			if err := json.Unmarshal(env.Data, &u); err != nil {
				t.Fatal(err)
			}
			if u.DisplayName == "Bob" {
				t.Error("user-joined must not echo back to the joiner")
			}
		}
	}
}

func TestRoomJoinReplyCarriesHistory(t *testing.T) {
	room := startRoom(t, 4)

	alice := newFakeSub("conn-a")
	joinAs(t, room, alice, "Alice")
	room.sendText(alice, "first")
	room.sendText(alice, "second")
	room.Snapshot()

	bob := newFakeSub("conn-b")
	joinAs(t, room, bob, "Bob")

	env, ok := bob.lastEvent(t, EventJoinSuccess)
	if !ok {
		t.Fatal("no join reply")
	}
	var reply JoinReply
	if err := json.Unmarshal(env.Data, &reply); err != nil {
		t.Fatal(err)
	}
	if reply.User.DisplayName != "Bob" || reply.User.ID != "conn-b" {
		t.Errorf("unexpected user in reply: %+v", reply.User)
	}
	if len(reply.Messages) != 2 || reply.Messages[0].Content != "first" || reply.Messages[1].Content != "second" {
		t.Errorf("expected history oldest-first, got %+v", reply.Messages)
	}
}

func TestRoomFullRejectsQuietly(t *testing.T) {
	room := startRoom(t, 2)

	alice := newFakeSub("conn-a")
	bob := newFakeSub("conn-b")
	carol := newFakeSub("conn-c")

	joinAs(t, room, alice, "Alice")
	joinAs(t, room, bob, "Bob")

	aliceBefore := len(alice.events(t))
	bobBefore := len(bob.events(t))

	joinAs(t, room, carol, "Carol")

	if _, ok := carol.lastEvent(t, EventRoomFull); !ok {
		t.Fatal("expected room-full reply")
	}
	snap := room.Snapshot()
	if len(snap.Users) != 2 {
		t.Errorf("rejected join must not change membership, got %d users", len(snap.Users))
	}
	// Existing members hear nothing about the rejected attempt.
	if n := len(alice.events(t)); n != aliceBefore {
		t.Errorf("Alice received %d extra events", n-aliceBefore)
	}
	if n := len(bob.events(t)); n != bobBefore {
		t.Errorf("Bob received %d extra events", n-bobBefore)
	}

	// The rejected connection is still attached and may retry later.
	room.detach(alice)
	room.Snapshot()
	room.join(carol, "Carol")
	room.Snapshot()
	if _, ok := carol.lastEvent(t, EventJoinSuccess); !ok {
		t.Error("expected retry to succeed after a slot freed")
	}
}

func TestRoomRejectsBlankName(t *testing.T) {
	room := startRoom(t, 4)

	other := newFakeSub("conn-b")
	joinAs(t, room, other, "Bystander")
	otherBefore := len(other.events(t))

	sub := newFakeSub("conn-a")
	room.attach(sub)
	room.join(sub, "   ")
	snap := room.Snapshot()

	if len(snap.Users) != 1 {
		t.Errorf("blank name must not join, got %d users", len(snap.Users))
	}
	if _, ok := sub.lastEvent(t, EventJoinSuccess); ok {
		t.Error("unexpected join reply for blank name")
	}
	// The requester hears why, synchronously; nobody else hears anything.
	if _, ok := sub.lastEvent(t, EventJoinFailed); !ok {
		t.Error("expected join-failed reply for blank name")
	}
	if n := len(other.events(t)); n != otherBefore {
		t.Errorf("validation failure leaked %d events to other members", n-otherBefore)
	}

	// The connection stays attached and a valid retry succeeds.
	room.join(sub, "Alice")
	room.Snapshot()
	if _, ok := sub.lastEvent(t, EventJoinSuccess); !ok {
		t.Error("expected retry with a valid name to succeed")
	}
}

func TestRoomRejoin(t *testing.T) {
	room := startRoom(t, 4)

	sub := newFakeSub("conn-a")
	room.attach(sub)
	room.rejoin(sub, "session-123", "Alice")
	room.Snapshot()

	env, ok := sub.lastEvent(t, EventRejoinSuccess)
	if !ok {
		t.Fatal("expected rejoin-success")
	}
	var reply JoinReply
	if err := json.Unmarshal(env.Data, &reply); err != nil {
		t.Fatal(err)
	}
	if reply.User.DisplayName != "Alice" {
		t.Errorf("unexpected user: %+v", reply.User)
	}

	// A rejoin without a session id fails explicitly.
	other := newFakeSub("conn-b")
	room.attach(other)
	room.rejoin(other, "", "Bob")
	room.Snapshot()
	if _, ok := other.lastEvent(t, EventRejoinFailed); !ok {
		t.Error("expected rejoin-failed for missing session id")
	}
}

func TestRoomTypingUpdate(t *testing.T) {
	room := startRoom(t, 4)

	alice := newFakeSub("conn-a")
	bob := newFakeSub("conn-b")
	joinAs(t, room, alice, "Alice")
	joinAs(t, room, bob, "Bob")

	aliceBefore := len(alice.events(t))
	room.setTyping(alice, true)
	room.Snapshot()

	// The typist does not get their own update echoed back.
	if n := len(alice.events(t)); n != aliceBefore {
		t.Errorf("typing update echoed to sender, %d extra events", n-aliceBefore)
	}
	env, ok := bob.lastEvent(t, EventTypingUpdate)
	if !ok {
		t.Fatal("Bob never got the typing update")
	}
	var names []string
	if err := json.Unmarshal(env.Data, &names); err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "Alice" {
		t.Errorf("expected [Alice], got %v", names)
	}

	room.setTyping(alice, false)
	room.Snapshot()
	env, _ = bob.lastEvent(t, EventTypingUpdate)
	names = nil
	if err := json.Unmarshal(env.Data, &names); err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("expected empty typing set, got %v", names)
	}
}

func TestRoomDisconnectClearsUserAndTyping(t *testing.T) {
	room := startRoom(t, 4)

	alice := newFakeSub("conn-a")
	bob := newFakeSub("conn-b")
	joinAs(t, room, alice, "Alice")
	joinAs(t, room, bob, "Bob")

	room.setTyping(alice, true)
	room.Snapshot()

	room.detach(alice)
	snap := room.Snapshot()

	if len(snap.Users) != 1 || snap.Users[0].DisplayName != "Bob" {
		t.Errorf("expected only Bob left, got %+v", snap.Users)
	}
	if len(snap.Typing) != 0 {
		t.Errorf("typing entry survived the disconnect: %v", snap.Typing)
	}

	env, ok := bob.lastEvent(t, EventUserLeft)
	if !ok {
		t.Fatal("Bob never heard that Alice left")
	}
	var left User
	if err := json.Unmarshal(env.Data, &left); err != nil {
		t.Fatal(err)
	}
	if left.DisplayName != "Alice" {
		t.Errorf("unexpected departed user: %+v", left)
	}

	alice.mu.Lock()
	closed := alice.closed
	alice.mu.Unlock()
	if !closed {
		t.Error("detached subscriber's send channel was not closed")
	}
}

func TestRoomManualLeaveKeepsConnection(t *testing.T) {
	room := startRoom(t, 4)

	sub := newFakeSub("conn-a")
	joinAs(t, room, sub, "Alice")

	room.leave(sub)
	snap := room.Snapshot()
	if len(snap.Users) != 0 {
		t.Fatalf("expected empty room after leave, got %+v", snap.Users)
	}

	sub.mu.Lock()
	closed := sub.closed
	sub.mu.Unlock()
	if closed {
		t.Error("manual leave must keep the connection attached")
	}

	// The connection can join again without reattaching.
	room.join(sub, "Alice")
	room.Snapshot()
	if _, ok := sub.lastEvent(t, EventJoinSuccess); !ok {
		t.Error("expected a second join on the same connection to succeed")
	}
}

func TestRoomDropsSlowSubscriber(t *testing.T) {
	room := startRoom(t, 4)

	alice := newFakeSub("conn-a")
	slow := newFakeSub("conn-slow")
	joinAs(t, room, alice, "Alice")
	joinAs(t, room, slow, "Slowpoke")

	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	room.sendText(alice, "hello?")
	snap := room.Snapshot()

	if len(snap.Users) != 1 || snap.Users[0].DisplayName != "Alice" {
		t.Errorf("slow subscriber should have been dropped, users: %+v", snap.Users)
	}
}

func TestRoomPruneMessages(t *testing.T) {
	state := NewState(4, time.Hour)
	now := time.Now()
	// Seed history before the loop starts so the timestamps are in the past.
	state.AppendMessage(Message{ID: "stale", Timestamp: now.Add(-2 * time.Hour)})
	state.AppendMessage(Message{ID: "fresh", Timestamp: now})

	room := NewRoom(state, NewMetrics())
	go room.Run()
	t.Cleanup(room.Close)

	removed := room.PruneMessages(now.Add(-time.Hour))
	if removed != 1 {
		t.Errorf("expected 1 pruned, got %d", removed)
	}
	snap := room.Snapshot()
	if snap.Messages != 1 {
		t.Errorf("expected 1 message retained, got %d", snap.Messages)
	}
}
