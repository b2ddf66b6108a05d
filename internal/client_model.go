package internal

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

// typingIdleTimeout is how long after the last keystroke the client keeps
// advertising that it is typing. The server never expires typing entries
// on its own; this timer is the only thing that clears them.
const typingIdleTimeout = time.Second

// TUIModel holds all terminal client state.
type TUIModel struct {
	textInput   textinput.Model
	serverURL   string
	sessionPath string

	// writeMutex guards conn itself as well as writes to it: commands run
	// on their own goroutines, not the bubbletea loop.
	conn       *websocket.Conn
	writeMutex sync.Mutex

	mode        appMode
	isConnected bool
	joined      bool
	fatalReason string

	self        User
	users       []User
	typingNames []string
	messages    []Message
	notices     []string

	session     *Session
	displayName string

	typingActive  bool
	lastKeystroke time.Time
}

type appMode int

const (
	modeNamePrompt appMode = iota
	modeChat
	modeFatal
)

// NewTUIModel builds the client model. If a stored session exists the
// client goes straight to the chat screen and attempts a rejoin; otherwise
// it asks for a display name first.
func NewTUIModel(serverURL, displayName, sessionPath string) *TUIModel {
	input := textinput.New()
	input.CharLimit = 0
	input.Focus()

	model := &TUIModel{
		textInput:   input,
		serverURL:   serverURL,
		sessionPath: sessionPath,
		displayName: displayName,
		messages:    make([]Message, 0, 64),
	}

	if session, err := LoadSession(sessionPath); err == nil {
		model.session = session
		model.displayName = session.DisplayName
	} else if !os.IsNotExist(err) {
		// Corrupt session file; drop it and start fresh.
		_ = DeleteSession(sessionPath)
	}

	if model.session != nil {
		model.mode = modeChat
		model.textInput.Placeholder = "Type a message…"
		model.textInput.Prompt = "> "
	} else if displayName != "" {
		model.mode = modeChat
		model.textInput.Placeholder = "Type a message…"
		model.textInput.Prompt = "> "
	} else {
		model.mode = modeNamePrompt
		model.textInput.Placeholder = "Enter display name…"
		model.textInput.Prompt = "name> "
	}
	return model
}

func (m *TUIModel) Init() tea.Cmd {
	if m.mode == modeChat {
		return m.connectCmd()
	}
	return nil
}

func (m *TUIModel) setConn(conn *websocket.Conn) {
	m.writeMutex.Lock()
	m.conn = conn
	m.writeMutex.Unlock()
}

func (m *TUIModel) currentConn() *websocket.Conn {
	m.writeMutex.Lock()
	defer m.writeMutex.Unlock()
	return m.conn
}

// addNotice appends a system line to the transcript.
func (m *TUIModel) addNotice(text string) {
	m.notices = append(m.notices, text)
	if len(m.notices) > 5 {
		m.notices = m.notices[len(m.notices)-5:]
	}
}
