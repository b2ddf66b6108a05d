package internal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startTestServer(t *testing.T, capacity int) (*httptest.Server, *Room) {
	t.Helper()
	room := NewRoom(NewState(capacity, time.Hour), NewMetrics())
	go room.Run()
	t.Cleanup(room.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWS(room, w, r)
	})
	mux.HandleFunc("/healthz", HandleHealthz)
	mux.HandleFunc("/stats", NewStatsHandler(room))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, room
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendWS(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	payload, err := encodeEvent(event, data)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// readWSUntil reads frames until the named event arrives, skipping
// interleaved broadcasts like users-update.
func readWSUntil(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read while waiting for %s: %v", event, err)
		}
		env, err := decodeEnvelope(payload)
		if err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		if env.Event == event {
			return env
		}
	}
	t.Fatalf("timed out waiting for %s", event)
	return Envelope{}
}

func TestWebSocketJoinAndChat(t *testing.T) {
	server, _ := startTestServer(t, 4)

	alice := dialWS(t, server)
	sendWS(t, alice, EventJoin, JoinRequest{DisplayName: "Alice"})

	env := readWSUntil(t, alice, EventJoinSuccess)
	var reply JoinReply
	if err := json.Unmarshal(env.Data, &reply); err != nil {
		t.Fatal(err)
	}
	if reply.User.DisplayName != "Alice" || reply.User.ID == "" {
		t.Fatalf("unexpected join reply: %+v", reply.User)
	}
	if reply.Messages == nil || len(reply.Messages) != 0 {
		t.Errorf("expected empty history, got %v", reply.Messages)
	}

	bob := dialWS(t, server)
	sendWS(t, bob, EventJoin, JoinRequest{DisplayName: "Bob"})
	readWSUntil(t, bob, EventJoinSuccess)

	// Alice hears that Bob arrived.
	env = readWSUntil(t, alice, EventUserJoined)
	var joined User
	if err := json.Unmarshal(env.Data, &joined); err != nil {
		t.Fatal(err)
	}
	if joined.DisplayName != "Bob" {
		t.Errorf("expected Bob, got %+v", joined)
	}

	// Alice sends a message; both sides receive the same broadcast.
	sendWS(t, alice, EventMessage, MessageRequest{Content: "hi"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		env := readWSUntil(t, conn, EventMessage)
		var msg Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Content != "hi" || msg.DisplayName != "Alice" {
			t.Errorf("unexpected message: %+v", msg)
		}
	}

	// Typing indicator reaches Bob but is not echoed to Alice.
	sendWS(t, alice, EventTyping, true)
	env = readWSUntil(t, bob, EventTypingUpdate)
	var typing []string
	if err := json.Unmarshal(env.Data, &typing); err != nil {
		t.Fatal(err)
	}
	if len(typing) != 1 || typing[0] != "Alice" {
		t.Errorf("expected [Alice], got %v", typing)
	}
}

func TestWebSocketRoomFull(t *testing.T) {
	server, _ := startTestServer(t, 1)

	first := dialWS(t, server)
	sendWS(t, first, EventJoin, JoinRequest{DisplayName: "First"})
	readWSUntil(t, first, EventJoinSuccess)

	second := dialWS(t, server)
	sendWS(t, second, EventJoin, JoinRequest{DisplayName: "Second"})
	readWSUntil(t, second, EventRoomFull)
}

func TestWebSocketDisconnectBroadcastsLeave(t *testing.T) {
	server, room := startTestServer(t, 4)

	alice := dialWS(t, server)
	sendWS(t, alice, EventJoin, JoinRequest{DisplayName: "Alice"})
	readWSUntil(t, alice, EventJoinSuccess)

	bob := dialWS(t, server)
	sendWS(t, bob, EventJoin, JoinRequest{DisplayName: "Bob"})
	readWSUntil(t, bob, EventJoinSuccess)
	readWSUntil(t, alice, EventUserJoined)

	bob.Close()

	env := readWSUntil(t, alice, EventUserLeft)
	var left User
	if err := json.Unmarshal(env.Data, &left); err != nil {
		t.Fatal(err)
	}
	if left.DisplayName != "Bob" {
		t.Errorf("expected Bob to leave, got %+v", left)
	}

	// The slot frees up for the next join.
	deadline := time.Now().Add(5 * time.Second)
	for {
		snap := room.Snapshot()
		if len(snap.Users) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 1 user after disconnect, got %d", len(snap.Users))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketRejoin(t *testing.T) {
	server, _ := startTestServer(t, 4)

	alice := dialWS(t, server)
	sendWS(t, alice, EventJoin, JoinRequest{DisplayName: "Alice"})
	readWSUntil(t, alice, EventJoinSuccess)
	sendWS(t, alice, EventMessage, MessageRequest{Content: "before reload"})
	readWSUntil(t, alice, EventMessage)
	alice.Close()

	// A reconnect with the stored session lands back in the room with the
	// history intact.
	again := dialWS(t, server)
	sendWS(t, again, EventRejoin, RejoinRequest{SessionID: "stored-session", DisplayName: "Alice"})
	env := readWSUntil(t, again, EventRejoinSuccess)
	var reply JoinReply
	if err := json.Unmarshal(env.Data, &reply); err != nil {
		t.Fatal(err)
	}
	if len(reply.Messages) != 1 || reply.Messages[0].Content != "before reload" {
		t.Errorf("expected history to survive the reconnect, got %+v", reply.Messages)
	}
}

func TestHealthzAndStats(t *testing.T) {
	server, _ := startTestServer(t, 4)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var stats map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if _, ok := stats["users"]; !ok {
		t.Errorf("stats missing users field: %v", stats)
	}
}
