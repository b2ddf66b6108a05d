package internal

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The room is anonymous and capacity-gated; origin is not part of
		// the access model.
		return true
	},
}

// ServeWS upgrades the request and attaches the connection to the room in
// the unjoined state. Membership only changes once the client sends a join
// or rejoin event.
func ServeWS(room *Room, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	client := newClient(room, conn)
	room.attach(client)

	go client.writePump()
	go client.readPump()
}
