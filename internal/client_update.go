package internal

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

func (m *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		// Ctrl+C always bails out, in any mode.
		if typedMessage.Type == tea.KeyCtrlC {
			m.closeConn("")
			return m, tea.Quit
		}
		switch m.mode {
		case modeNamePrompt:
			return m.updateNamePrompt(typedMessage)
		case modeChat:
			return m.updateChat(typedMessage)
		case modeFatal:
			// Any key leaves the fatal screen.
			return m, tea.Quit
		}

	case connectedMsg:
		m.isConnected = true
		joinCmd := m.joinCmd()
		return m, tea.Batch(joinCmd, m.readOnceCmd())

	case connectFailedMsg:
		m.fatal(fmt.Sprintf("Could not connect: %v", typedMessage.err))
		return m, nil

	case joinAcceptedMsg:
		m.joined = true
		m.self = typedMessage.reply.User
		m.messages = append(m.messages[:0], typedMessage.reply.Messages...)
		if typedMessage.rejoin {
			m.addNotice("Welcome back, " + m.self.DisplayName + ".")
		} else {
			m.addNotice("Joined as " + m.self.DisplayName + ".")
			session := NewSession(m.self.DisplayName)
			m.session = &session
			if err := SaveSession(m.sessionPath, session); err != nil {
				m.addNotice("Could not save session: " + err.Error())
			}
		}
		return m, m.readOnceCmd()

	case joinFailedMsg:
		// The client validates names before sending, so this only fires for
		// input the server judged differently. Back to the prompt.
		m.joined = false
		m.mode = modeNamePrompt
		m.textInput.SetValue("")
		m.textInput.Placeholder = "Enter display name…"
		m.textInput.Prompt = "name> "
		m.addNotice("That display name was rejected. Pick another.")
		return m, tea.Batch(m.textInput.Focus(), m.readOnceCmd())

	case rejoinFailedMsg:
		// Stale session. Forget it and start over with a fresh name prompt.
		_ = DeleteSession(m.sessionPath)
		m.session = nil
		m.joined = false
		m.mode = modeNamePrompt
		m.textInput.SetValue(m.displayName)
		m.textInput.Placeholder = "Enter display name…"
		m.textInput.Prompt = "name> "
		m.addNotice("Previous session expired. Pick a name to join again.")
		return m, tea.Batch(m.textInput.Focus(), m.readOnceCmd())

	case roomFullMsg:
		m.fatal("The room is full. Try again later.")
		return m, nil

	case chatMessageMsg:
		m.messages = append(m.messages, Message(typedMessage))
		return m, m.readOnceCmd()

	case userJoinedMsg:
		m.addNotice(User(typedMessage).DisplayName + " joined the room.")
		return m, m.readOnceCmd()

	case userLeftMsg:
		m.addNotice(User(typedMessage).DisplayName + " left the room.")
		return m, m.readOnceCmd()

	case usersUpdateMsg:
		m.users = []User(typedMessage)
		return m, m.readOnceCmd()

	case typingUpdateMsg:
		m.typingNames = []string(typedMessage)
		return m, m.readOnceCmd()

	case typingExpiredMsg:
		if m.typingActive && time.Since(m.lastKeystroke) >= typingIdleTimeout {
			m.typingActive = false
			return m, m.sendEventCmd(EventTyping, false)
		}
		if m.typingActive {
			return m, typingExpiryCmd()
		}
		return m, nil

	case uploadDoneMsg:
		m.addNotice("Uploaded " + FileRef(typedMessage).OriginalName + ".")
		return m, m.sendEventCmd(EventFileMessage, FileMessageRequest{FileInfo: FileRef(typedMessage)})

	case uploadFailedMsg:
		m.addNotice("Upload failed: " + typedMessage.err.Error())
		return m, nil

	case socketClosedMsg:
		// No automatic reconnect. The session file survives, so restarting
		// the client resumes the identity if the connection slot is free.
		m.isConnected = false
		m.joined = false
		reason := "Connection closed."
		if typedMessage.err != nil {
			reason = "Connection lost: " + typedMessage.err.Error()
		}
		m.fatal(reason)
		return m, nil
	}
	return m, nil
}

func (m *TUIModel) updateNamePrompt(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEnter:
		trimmed := strings.TrimSpace(m.textInput.Value())
		if trimmed == "" {
			m.addNotice("Display name cannot be empty.")
			return m, nil
		}
		if utf8.RuneCountInString(trimmed) > MaxDisplayNameLen {
			m.addNotice(fmt.Sprintf("Display name is limited to %d characters.", MaxDisplayNameLen))
			return m, nil
		}
		m.displayName = trimmed
		m.mode = modeChat
		m.textInput.SetValue("")
		m.textInput.Placeholder = "Type a message…"
		m.textInput.Prompt = "> "
		if m.isConnected {
			// Already connected after a failed rejoin; just send a fresh join.
			return m, m.sendEventCmd(EventJoin, JoinRequest{DisplayName: trimmed})
		}
		return m, m.connectCmd()
	case tea.KeyEsc:
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(key)
	return m, cmd
}

func (m *TUIModel) updateChat(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Type == tea.KeyEnter {
		trimmed := strings.TrimSpace(m.textInput.Value())
		m.textInput.SetValue("")

		if strings.HasPrefix(trimmed, "/") {
			return m.runCommand(trimmed)
		}
		if trimmed == "" || !m.joined {
			return m, nil
		}
		cmds := []tea.Cmd{m.sendEventCmd(EventMessage, MessageRequest{Content: trimmed})}
		if m.typingActive {
			m.typingActive = false
			cmds = append(cmds, m.sendEventCmd(EventTyping, false))
		}
		return m, tea.Batch(cmds...)
	}

	var inputCmd tea.Cmd
	m.textInput, inputCmd = m.textInput.Update(key)

	// A printable keystroke means the user is composing.
	if m.joined && (key.Type == tea.KeyRunes || key.Type == tea.KeySpace) {
		m.lastKeystroke = time.Now()
		if !m.typingActive {
			m.typingActive = true
			return m, tea.Batch(inputCmd, m.sendEventCmd(EventTyping, true), typingExpiryCmd())
		}
	}
	return m, inputCmd
}

// runCommand handles slash commands typed into the chat input.
func (m *TUIModel) runCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit":
		// A deliberate exit ends the session for good.
		_ = DeleteSession(m.sessionPath)
		if m.joined {
			if payload, err := encodeEvent(EventManualLeave, nil); err == nil {
				m.writeMutex.Lock()
				if m.conn != nil {
					_ = m.conn.WriteMessage(websocket.TextMessage, payload)
				}
				m.writeMutex.Unlock()
			}
		}
		m.closeConn("client quit")
		return m, tea.Quit
	case "/upload":
		if len(fields) < 2 {
			m.addNotice("Usage: /upload <path>")
			return m, nil
		}
		if !m.joined {
			m.addNotice("Join the room before uploading.")
			return m, nil
		}
		path := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))
		m.addNotice("Uploading " + path + "…")
		return m, m.uploadCmd(path)
	case "/users":
		if len(m.users) == 0 {
			m.addNotice("Nobody is here.")
			return m, nil
		}
		names := make([]string, 0, len(m.users))
		for _, u := range m.users {
			names = append(names, u.DisplayName)
		}
		m.addNotice("In the room: " + strings.Join(names, ", "))
		return m, nil
	}
	m.addNotice("Unknown command: " + fields[0])
	return m, nil
}

// joinCmd picks rejoin or join based on whether a session survived.
func (m *TUIModel) joinCmd() tea.Cmd {
	if m.session != nil {
		return m.sendEventCmd(EventRejoin, RejoinRequest{
			SessionID:   m.session.SessionID,
			DisplayName: m.session.DisplayName,
		})
	}
	return m.sendEventCmd(EventJoin, JoinRequest{DisplayName: m.displayName})
}

func (m *TUIModel) fatal(reason string) {
	m.mode = modeFatal
	m.fatalReason = reason
	m.closeConn("")
}

func (m *TUIModel) closeConn(reason string) {
	m.writeMutex.Lock()
	conn := m.conn
	m.conn = nil
	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	}
	m.writeMutex.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	m.isConnected = false
}
