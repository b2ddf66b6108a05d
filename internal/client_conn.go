package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

// bubbletea messages produced by the connection commands.
type (
	connectedMsg     struct{}
	connectFailedMsg struct{ err error }
	socketClosedMsg  struct{ err error }

	joinAcceptedMsg struct {
		reply  JoinReply
		rejoin bool
	}
	joinFailedMsg    struct{}
	rejoinFailedMsg  struct{}
	roomFullMsg      struct{}
	chatMessageMsg   Message
	userJoinedMsg    User
	userLeftMsg      User
	usersUpdateMsg   []User
	typingUpdateMsg  []string
	typingExpiredMsg struct{}

	uploadDoneMsg   FileRef
	uploadFailedMsg struct{ err error }
)

// connectCmd dials the websocket endpoint.
func (m *TUIModel) connectCmd() tea.Cmd {
	return func() tea.Msg {
		wsURL, err := buildWSURL(m.serverURL)
		if err != nil {
			return connectFailedMsg{err: err}
		}
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{})
		if err != nil {
			return connectFailedMsg{err: err}
		}
		m.setConn(conn)
		return connectedMsg{}
	}
}

// sendEventCmd writes one envelope. Writes are serialized with the mutex
// because the typing timer and the input handler can both emit.
func (m *TUIModel) sendEventCmd(event string, data any) tea.Cmd {
	return func() tea.Msg {
		payload, err := encodeEvent(event, data)
		if err != nil {
			return socketClosedMsg{err: err}
		}
		m.writeMutex.Lock()
		if m.conn == nil {
			m.writeMutex.Unlock()
			return socketClosedMsg{err: fmt.Errorf("not connected")}
		}
		err = m.conn.WriteMessage(websocket.TextMessage, payload)
		m.writeMutex.Unlock()
		if err != nil {
			return socketClosedMsg{err: err}
		}
		return nil
	}
}

// readOnceCmd reads a single frame and maps it to a typed message. Update
// re-arms it after every delivery, which keeps all model mutation on the
// bubbletea goroutine.
func (m *TUIModel) readOnceCmd() tea.Cmd {
	return func() tea.Msg {
		conn := m.currentConn()
		if conn == nil {
			return socketClosedMsg{err: fmt.Errorf("not connected")}
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return socketClosedMsg{err: err}
		}
		env, err := decodeEnvelope(payload)
		if err != nil {
			return nil
		}
		return decodeServerEvent(env)
	}
}

func decodeServerEvent(env Envelope) tea.Msg {
	switch env.Event {
	case EventJoinSuccess, EventRejoinSuccess:
		var reply JoinReply
		if err := json.Unmarshal(env.Data, &reply); err != nil {
			return nil
		}
		return joinAcceptedMsg{reply: reply, rejoin: env.Event == EventRejoinSuccess}
	case EventJoinFailed:
		return joinFailedMsg{}
	case EventRejoinFailed:
		return rejoinFailedMsg{}
	case EventRoomFull:
		return roomFullMsg{}
	case EventMessage:
		var msg Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil
		}
		return chatMessageMsg(msg)
	case EventUserJoined:
		var u User
		if err := json.Unmarshal(env.Data, &u); err != nil {
			return nil
		}
		return userJoinedMsg(u)
	case EventUserLeft:
		var u User
		if err := json.Unmarshal(env.Data, &u); err != nil {
			return nil
		}
		return userLeftMsg(u)
	case EventUsersUpdate:
		var users []User
		if err := json.Unmarshal(env.Data, &users); err != nil {
			return nil
		}
		return usersUpdateMsg(users)
	case EventTypingUpdate:
		var names []string
		if err := json.Unmarshal(env.Data, &names); err != nil {
			return nil
		}
		return typingUpdateMsg(names)
	}
	return nil
}

// uploadCmd posts a local file to /upload and reports the stored metadata.
// The follow-up file-message event is sent from Update on uploadDoneMsg.
func (m *TUIModel) uploadCmd(path string) tea.Cmd {
	return func() tea.Msg {
		base, err := httpBaseFromWSURL(m.serverURL)
		if err != nil {
			return uploadFailedMsg{err: err}
		}
		file, err := os.Open(path)
		if err != nil {
			return uploadFailedMsg{err: err}
		}
		defer file.Close()

		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			return uploadFailedMsg{err: err}
		}
		if _, err := io.Copy(part, file); err != nil {
			return uploadFailedMsg{err: err}
		}
		if err := writer.Close(); err != nil {
			return uploadFailedMsg{err: err}
		}

		req, err := http.NewRequest(http.MethodPost, base+"/upload", body)
		if err != nil {
			return uploadFailedMsg{err: err}
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		client := &http.Client{Timeout: 2 * time.Minute}
		resp, err := client.Do(req)
		if err != nil {
			return uploadFailedMsg{err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return uploadFailedMsg{err: fmt.Errorf("upload failed: %s", readErrorBody(resp.Body))}
		}
		var ref FileRef
		if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
			return uploadFailedMsg{err: err}
		}
		return uploadDoneMsg(ref)
	}
}

func readErrorBody(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg, ok := parsed["error"]; ok {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}

// typingExpiryCmd pokes Update after the idle window so it can emit
// typing{false}. The expiry is client-driven; the server only clears
// typing on an explicit stop or a disconnect.
func typingExpiryCmd() tea.Cmd {
	return tea.Tick(typingIdleTimeout, func(time.Time) tea.Msg {
		return typingExpiredMsg{}
	})
}

func buildWSURL(base string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = "/ws"
	}
	return parsed.String(), nil
}

func httpBaseFromWSURL(base string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/"), nil
}
