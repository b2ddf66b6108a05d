// Package internal implements the quadchat server and terminal client: a
// single shared room with a small capacity, text and file messages, typing
// indicators, and a rolling retention window for history and uploads.
package internal

import (
	"encoding/json"
	"time"
)

// Limits shared by server and client.
const (
	MaxDisplayNameLen = 20
	DefaultCapacity   = 4
	DefaultRetention  = 7 * 24 * time.Hour
	FileSizeLimit     = 100 << 20 // 100 MiB
)

// Client -> server events.
const (
	EventJoin        = "join"
	EventRejoin      = "rejoin"
	EventMessage     = "message"
	EventFileMessage = "file-message"
	EventTyping      = "typing"
	EventManualLeave = "manual-leave"
)

// Server -> client events. EventMessage is reused for the broadcast of an
// accepted message.
const (
	EventJoinSuccess   = "join-success"
	EventJoinFailed    = "join-failed"
	EventRejoinSuccess = "rejoin-success"
	EventRejoinFailed  = "rejoin-failed"
	EventRoomFull      = "room-full"
	EventUserJoined    = "user-joined"
	EventUserLeft      = "user-left"
	EventUsersUpdate   = "users-update"
	EventTypingUpdate  = "typing-update"
)

// Envelope is the json frame both sides exchange on the websocket. Data is
// left raw so each event can carry its own payload shape.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// User is a connected room member. The ID is connection-scoped and dies
// with the connection; the display name is what everyone sees.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// FileRef is the metadata returned by the upload endpoint and embedded in
// file messages. Filename is the stored on-disk name, OriginalName the name
// the uploader picked.
type FileRef struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	Mimetype     string    `json:"mimetype"`
	UploadedAt   time.Time `json:"uploadedAt"`
	URL          string    `json:"url"`
}

// Message types.
const (
	MessageTypeText = "text"
	MessageTypeFile = "file"
)

// Message is one chat entry. Immutable once created; the display name is
// denormalized at creation time so history survives the author leaving.
type Message struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	Content     string    `json:"content,omitempty"`
	File        *FileRef  `json:"file,omitempty"`
}

// JoinRequest is the payload of "join".
type JoinRequest struct {
	DisplayName string `json:"displayName"`
}

// RejoinRequest is the payload of "rejoin". The session id is minted by the
// client and persisted across reloads; the server does not verify it.
type RejoinRequest struct {
	SessionID   string `json:"sessionId"`
	DisplayName string `json:"displayName"`
}

// MessageRequest is the payload of "message".
type MessageRequest struct {
	Content string `json:"content"`
}

// FileMessageRequest is the payload of "file-message", carrying the
// metadata previously returned by POST /upload.
type FileMessageRequest struct {
	FileInfo FileRef `json:"fileInfo"`
}

// JoinReply is the payload of "join-success" and "rejoin-success": the
// caller's own user record plus the retained message history.
type JoinReply struct {
	User     User      `json:"user"`
	Messages []Message `json:"messages"`
}

// encodeEvent marshals an envelope with the given payload.
func encodeEvent(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		buf, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = buf
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// mustEncodeEvent is encodeEvent for payloads built from our own types,
// where a marshal failure is a programming error.
func mustEncodeEvent(event string, data any) []byte {
	buf, err := encodeEvent(event, data)
	if err != nil {
		panic("encode " + event + ": " + err.Error())
	}
	return buf
}

// decodeEnvelope parses one websocket frame.
func decodeEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(payload, &env)
	return env, err
}
